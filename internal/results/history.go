package results

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const bucketSweeps = "sweeps"

// HistoryEntry is one completed sweep as persisted in the history store.
type HistoryEntry struct {
	SweepID   string      `json:"sweep_id"`
	Timestamp time.Time   `json:"timestamp"`
	Kind      string      `json:"kind"`
	Records   []RunRecord `json:"records"`
}

// HistoryStore keeps past sweeps in a local bbolt database so curves from
// different days can be compared without hunting for old CSVs. Persistence
// is a convenience: callers treat store failures as log-and-continue.
type HistoryStore struct {
	db *bbolt.DB
}

// OpenHistory opens (creating if needed) the history database under the
// user's home directory.
func OpenHistory() (*HistoryStore, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	dir := filepath.Join(home, ".attestor-bench")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	db, err := bbolt.Open(filepath.Join(dir, "history.db"), 0o600,
		&bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketSweeps))
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}

	return &HistoryStore{db: db}, nil
}

// OpenHistoryAt opens a history database at an explicit path. Used by
// tests and by operators who keep results on shared storage.
func OpenHistoryAt(path string) (*HistoryStore, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketSweeps))
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &HistoryStore{db: db}, nil
}

// Append stores one completed sweep keyed by its ID.
func (s *HistoryStore) Append(entry HistoryEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal history entry: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketSweeps))
		if b == nil {
			return fmt.Errorf("bucket %q missing", bucketSweeps)
		}
		return b.Put([]byte(entry.SweepID), data)
	})
}

// Load returns the stored sweep with the given ID, or nil if absent.
func (s *HistoryStore) Load(sweepID string) (*HistoryEntry, error) {
	var entry *HistoryEntry
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketSweeps))
		if b == nil {
			return nil
		}
		data := b.Get([]byte(sweepID))
		if data == nil {
			return nil
		}
		entry = &HistoryEntry{}
		return json.Unmarshal(data, entry)
	})
	return entry, err
}

func (s *HistoryStore) Close() error {
	return s.db.Close()
}
