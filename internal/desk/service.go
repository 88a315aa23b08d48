// Package desk is the transaction desk: it scores feature vectors through the
// inference service, keeps every verdict, and serves the history, a summary
// and a live stream of new verdicts.
package desk

import (
	"context"
	"fmt"
	"io"
	"time"

	"fraud-detector/internal/storage"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Scorer returns a fraud verdict for a feature vector.
type Scorer interface {
	Predict(ctx context.Context, features []float64) (bool, error)
}

// Repository persists transactions.
type Repository interface {
	SaveTransaction(t storage.Transaction) error
	ListTransactions() ([]storage.Transaction, error)
	Summary() (storage.Summary, error)
	ExportTrainingCSV(w io.Writer, names []string, start, end time.Time) (int, error)
}

// Publisher receives every stored transaction.
type Publisher interface {
	Publish(t storage.Transaction)
}

// MetricsInterface defines metrics methods needed by the desk
type MetricsInterface interface {
	TransactionStoredInc()
	ScoringErrorInc()
	StreamClientsSet(n int)
}

// ScoringError wraps a failed call to the Scorer.
type ScoringError struct {
	Err error
}

func (e *ScoringError) Error() string { return "score transaction: " + e.Err.Error() }

func (e *ScoringError) Unwrap() error { return e.Err }

type Service struct {
	scorer    Scorer
	repo      Repository
	publisher Publisher
	metrics   MetricsInterface
	now       func() time.Time
}

// NewService wires a desk. publisher and metrics may be nil.
func NewService(scorer Scorer, repo Repository, publisher Publisher, metrics MetricsInterface) *Service {
	return &Service{
		scorer:    scorer,
		repo:      repo,
		publisher: publisher,
		metrics:   metrics,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CheckFraud scores features, stores the result and publishes it.
func (s *Service) CheckFraud(ctx context.Context, features []float64) (storage.Transaction, error) {
	fraud, err := s.scorer.Predict(ctx, features)
	if err != nil {
		if s.metrics != nil {
			s.metrics.ScoringErrorInc()
		}
		return storage.Transaction{}, &ScoringError{Err: err}
	}

	t := storage.Transaction{
		ID:        uuid.NewString(),
		Features:  features,
		Fraud:     fraud,
		Timestamp: s.now(),
	}
	if err := s.repo.SaveTransaction(t); err != nil {
		return storage.Transaction{}, fmt.Errorf("save transaction: %w", err)
	}
	if s.metrics != nil {
		s.metrics.TransactionStoredInc()
	}

	log.Info().
		Str("transaction_id", t.ID).
		Bool("fraud", t.Fraud).
		Int("features", len(features)).
		Msg("Transaction scored")

	if s.publisher != nil {
		s.publisher.Publish(t)
	}
	return t, nil
}

// All returns every stored transaction, oldest first.
func (s *Service) All() ([]storage.Transaction, error) {
	return s.repo.ListTransactions()
}

// Dashboard returns the verdict counts.
func (s *Service) Dashboard() (storage.Summary, error) {
	return s.repo.Summary()
}

// Export writes the transactions stored in [start, end] as a training CSV.
func (s *Service) Export(w io.Writer, start, end time.Time) (int, error) {
	return s.repo.ExportTrainingCSV(w, FeatureNames, start, end)
}
