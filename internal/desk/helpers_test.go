package desk

import (
	"context"
	"sync"
	"testing"

	"fraud-detector/internal/storage"

	"github.com/stretchr/testify/require"
)

type fakeScorer struct {
	mu    sync.Mutex
	calls [][]float64
	fn    func(features []float64) (bool, error)
}

func (f *fakeScorer) Predict(ctx context.Context, features []float64) (bool, error) {
	f.mu.Lock()
	f.calls = append(f.calls, features)
	f.mu.Unlock()
	return f.fn(features)
}

// firstPositive flags a vector as fraud when its first value is positive.
func firstPositive() *fakeScorer {
	return &fakeScorer{fn: func(features []float64) (bool, error) {
		return len(features) > 0 && features[0] > 0, nil
	}}
}

type fakeMetrics struct {
	mu      sync.Mutex
	stored  int
	errors  int
	clients int
}

func (m *fakeMetrics) TransactionStoredInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stored++
}

func (m *fakeMetrics) ScoringErrorInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors++
}

func (m *fakeMetrics) StreamClientsSet(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients = n
}

func (m *fakeMetrics) clientCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clients
}

type recordingPublisher struct {
	published []storage.Transaction
}

func (p *recordingPublisher) Publish(t storage.Transaction) {
	p.published = append(p.published, t)
}

func newStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}
