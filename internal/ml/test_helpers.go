package ml

import (
	"context"
	"sync"
)

// MockMetrics implements MetricsInterface for testing
type MockMetrics struct {
	mu           sync.Mutex
	Predictions  int
	Failures     int
	Timeouts     int
	Frauds       int
	WorkerStarts int
	LatencySum   float64
	LatencyCount int
	ModelAge     float64
}

func (m *MockMetrics) MLPredictionsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Predictions++
}

func (m *MockMetrics) MLFailuresInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Failures++
}

func (m *MockMetrics) MLTimeoutsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Timeouts++
}

func (m *MockMetrics) MLLatencyObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LatencySum += v
	m.LatencyCount++
}

func (m *MockMetrics) MLFraudInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Frauds++
}

func (m *MockMetrics) MLModelAgeSet(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ModelAge = v
}

func (m *MockMetrics) MLWorkerStartInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WorkerStarts++
}

// StubClassifier is a Classifier backed by a function, for tests of code
// that consumes a model handle.
type StubClassifier struct {
	Width     int
	PredictFn func(ctx context.Context, rows [][]float64) ([]int, error)

	mu    sync.Mutex
	calls [][][]float64
}

func (s *StubClassifier) Predict(ctx context.Context, rows [][]float64) ([]int, error) {
	s.mu.Lock()
	s.calls = append(s.calls, rows)
	s.mu.Unlock()
	return s.PredictFn(ctx, rows)
}

func (s *StubClassifier) NumFeatures() int { return s.Width }

func (s *StubClassifier) Close() error { return nil }

// Calls returns the batches passed to Predict so far.
func (s *StubClassifier) Calls() [][][]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][][]float64(nil), s.calls...)
}
