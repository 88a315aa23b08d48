package ml

import (
	"context"
	"errors"
	"time"
)

// Instrumented records prediction metrics around another Classifier.
type Instrumented struct {
	Classifier
	metrics MetricsInterface
}

// Instrument wraps c so that every Predict call is counted and timed.
// A nil metrics returns c unchanged.
func Instrument(c Classifier, metrics MetricsInterface) Classifier {
	if metrics == nil {
		return c
	}
	return &Instrumented{Classifier: c, metrics: metrics}
}

func (i *Instrumented) Predict(ctx context.Context, rows [][]float64) ([]int, error) {
	start := time.Now()
	labels, err := i.Classifier.Predict(ctx, rows)
	i.metrics.MLLatencyObserve(time.Since(start).Seconds())

	if err != nil {
		i.metrics.MLFailuresInc()
		if errors.Is(err, context.DeadlineExceeded) {
			i.metrics.MLTimeoutsInc()
		}
		return nil, err
	}

	for _, label := range labels {
		i.metrics.MLPredictionsInc()
		if label != 0 {
			i.metrics.MLFraudInc()
		}
	}
	return labels, nil
}
