// Package metrics provides Prometheus metrics collection for the fraud detector.
// It defines the inference, model and transaction desk metrics that are
// exposed via the Prometheus metrics endpoint of both services.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the fraud detector.
type Metrics struct {
	// Inference endpoint metrics
	RequestsTotal   *prometheus.CounterVec // Requests by response status code
	InvalidRequests prometheus.Counter     // Requests rejected as invalid input
	InternalErrors  prometheus.Counter     // Requests that ended in an internal error
	RequestDuration prometheus.Histogram   // End-to-end request duration

	// Model metrics
	Predictions      prometheus.Counter   // Total number of model predictions
	PredictFailures  prometheus.Counter   // Total number of failed model calls
	PredictTimeouts  prometheus.Counter   // Model calls that exceeded their deadline
	PredictLatency   prometheus.Histogram // Model call latency in seconds
	FraudVerdicts    prometheus.Counter   // Predictions that came back as fraud
	ModelAge         prometheus.Gauge     // Age of the loaded artifact in seconds
	ModelWorkerSpawn prometheus.Counter   // Python worker (re)starts

	// Transaction desk metrics
	TransactionsStored prometheus.Counter // Transactions persisted after scoring
	ScoringErrors      prometheus.Counter // Failed calls to the inference endpoint
	StreamClients      prometheus.Gauge   // Connected websocket clients
}

// New creates and registers all Prometheus metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "predict_requests_total",
			Help: "Total number of /predict requests by status code",
		}, []string{"code"}),
		InvalidRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "predict_invalid_requests_total",
			Help: "Total number of /predict requests rejected as invalid input",
		}),
		InternalErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "predict_internal_errors_total",
			Help: "Total number of /predict requests that failed internally",
		}),
		RequestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "predict_request_duration_seconds",
			Help:    "Duration of /predict requests in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		Predictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "model_predictions_total",
			Help: "Total number of model predictions made",
		}),
		PredictFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "model_failures_total",
			Help: "Total number of model prediction failures",
		}),
		PredictTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "model_timeouts_total",
			Help: "Total number of model prediction timeouts",
		}),
		PredictLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "model_latency_seconds",
			Help:    "Model prediction latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		FraudVerdicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "model_fraud_verdicts_total",
			Help: "Total number of predictions classified as fraud",
		}),
		ModelAge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "model_age_seconds",
			Help: "Age of the loaded model artifact in seconds",
		}),
		ModelWorkerSpawn: factory.NewCounter(prometheus.CounterOpts{
			Name: "model_worker_starts_total",
			Help: "Total number of model worker process starts",
		}),
		TransactionsStored: factory.NewCounter(prometheus.CounterOpts{
			Name: "desk_transactions_stored_total",
			Help: "Total number of scored transactions persisted",
		}),
		ScoringErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "desk_scoring_errors_total",
			Help: "Total number of failed calls to the inference endpoint",
		}),
		StreamClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "desk_stream_clients",
			Help: "Number of connected transaction stream clients",
		}),
	}
}
