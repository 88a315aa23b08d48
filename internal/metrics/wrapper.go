package metrics

import "strconv"

// MetricsWrapper adapts Metrics to the small metrics interfaces declared by
// the ml, server and desk packages.
type MetricsWrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *MetricsWrapper {
	return &MetricsWrapper{m: m}
}

// Model

func (w *MetricsWrapper) MLPredictionsInc() {
	w.m.Predictions.Inc()
}

func (w *MetricsWrapper) MLFailuresInc() {
	w.m.PredictFailures.Inc()
}

func (w *MetricsWrapper) MLTimeoutsInc() {
	w.m.PredictTimeouts.Inc()
}

func (w *MetricsWrapper) MLLatencyObserve(v float64) {
	w.m.PredictLatency.Observe(v)
}

func (w *MetricsWrapper) MLFraudInc() {
	w.m.FraudVerdicts.Inc()
}

func (w *MetricsWrapper) MLModelAgeSet(v float64) {
	w.m.ModelAge.Set(v)
}

func (w *MetricsWrapper) MLWorkerStartInc() {
	w.m.ModelWorkerSpawn.Inc()
}

// Inference endpoint

func (w *MetricsWrapper) RequestObserve(code int, seconds float64) {
	w.m.RequestsTotal.WithLabelValues(strconv.Itoa(code)).Inc()
	w.m.RequestDuration.Observe(seconds)
}

func (w *MetricsWrapper) InvalidInputInc() {
	w.m.InvalidRequests.Inc()
}

func (w *MetricsWrapper) InternalErrorInc() {
	w.m.InternalErrors.Inc()
}

// Transaction desk

func (w *MetricsWrapper) TransactionStoredInc() {
	w.m.TransactionsStored.Inc()
}

func (w *MetricsWrapper) ScoringErrorInc() {
	w.m.ScoringErrors.Inc()
}

func (w *MetricsWrapper) StreamClientsSet(n int) {
	w.m.StreamClients.Set(float64(n))
}
