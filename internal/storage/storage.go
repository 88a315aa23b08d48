// Package storage persists scored transactions for the transaction desk.
// It uses BoltDB as the underlying storage engine; records are JSON values
// keyed by a zero-padded timestamp so a cursor walks them oldest first.
package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const (
	transactionsBucket = "transactions" // Bucket name for scored transactions
	dbFile             = "transactions.db"
)

// Transaction is one scored feature vector.
type Transaction struct {
	ID        string    `json:"id"`
	Features  []float64 `json:"features"`
	Fraud     bool      `json:"fraud"`
	Timestamp time.Time `json:"timestamp"`
}

// Summary counts stored transactions by verdict.
type Summary struct {
	Total int `json:"total"`
	Fraud int `json:"fraudCount"`
	Safe  int `json:"safeCount"`
}

// Store provides persistent storage for transactions using BoltDB.
type Store struct {
	db *bbolt.DB
}

// New opens (creating if needed) the database under dataPath.
func New(dataPath string) (*Store, error) {
	if err := os.MkdirAll(dataPath, 0o750); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	dbPath := filepath.Join(dataPath, dbFile)

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(transactionsBucket)); err != nil {
			return fmt.Errorf("create transactions bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database. Calling it twice is harmless.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func txKey(ts time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%020d_%s", ts.UnixNano(), id))
}

func timeKey(ts time.Time) []byte {
	return []byte(fmt.Sprintf("%020d", ts.UnixNano()))
}

// SaveTransaction stores t. ID and Timestamp must be set.
func (s *Store) SaveTransaction(t Transaction) error {
	if t.ID == "" || t.Timestamp.IsZero() {
		return fmt.Errorf("transaction needs an id and a timestamp")
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(transactionsBucket))

		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("marshal transaction: %w", err)
		}

		return b.Put(txKey(t.Timestamp, t.ID), data)
	})
}

// ListTransactions returns every stored transaction, oldest first.
func (s *Store) ListTransactions() ([]Transaction, error) {
	return s.scan(nil, nil)
}

// TransactionsInRange returns transactions with start <= Timestamp <= end,
// oldest first.
func (s *Store) TransactionsInRange(start, end time.Time) ([]Transaction, error) {
	return s.scan(timeKey(start), timeKey(end.Add(time.Nanosecond)))
}

// Summary counts all stored transactions by verdict.
func (s *Store) Summary() (Summary, error) {
	var sum Summary
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(transactionsBucket)).ForEach(func(k, v []byte) error {
			var t struct {
				Fraud bool `json:"fraud"`
			}
			if err := json.Unmarshal(v, &t); err != nil {
				return nil // Skip malformed records
			}
			sum.Total++
			if t.Fraud {
				sum.Fraud++
			} else {
				sum.Safe++
			}
			return nil
		})
	})
	return sum, err
}

// scan walks keys in [from, to); nil bounds are open.
func (s *Store) scan(from, to []byte) ([]Transaction, error) {
	records := []Transaction{}

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(transactionsBucket)).Cursor()

		k, v := c.First()
		if from != nil {
			k, v = c.Seek(from)
		}
		for ; k != nil && (to == nil || bytes.Compare(k, to) < 0); k, v = c.Next() {
			var t Transaction
			if err := json.Unmarshal(v, &t); err != nil {
				continue // Skip malformed records
			}
			records = append(records, t)
		}
		return nil
	})

	return records, err
}
