package history

import (
	"encoding/json"
	"fmt"
	"time"

	pebble "github.com/cockroachdb/pebble"
)

// Record is one job's outcome within a batch run.
type Record struct {
	Name          string    `json:"name"`
	Source        string    `json:"source"`
	Status        string    `json:"status"`
	FilesUploaded int       `json:"files_uploaded"`
	Timestamp     time.Time `json:"timestamp"`
}

// Store keeps per-job outcome records across runs in a local Pebble DB.
// Storage failures here must never fail a batch; callers log and move on.
type Store struct {
	db *pebble.DB
}

// Open opens (or creates) the history database at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := pebble.Open(dbPath, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open history store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the store.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Add stores one job outcome. Keys are <unix-nano>#<name> so records sort
// chronologically and repeated runs of the same file don't overwrite.
func (s *Store) Add(record Record) error {
	if s.db == nil {
		return fmt.Errorf("history store not initialized")
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal history record: %w", err)
	}

	key := []byte(fmt.Sprintf("%d#%s", record.Timestamp.UnixNano(), record.Name))
	return s.db.Set(key, data, pebble.Sync)
}

// List returns all records in chronological order.
func (s *Store) List() ([]Record, error) {
	if s.db == nil {
		return nil, fmt.Errorf("history store not initialized")
	}

	var records []Record
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		var record Record
		if err := json.Unmarshal(iter.Value(), &record); err != nil {
			continue // Skip invalid records
		}
		records = append(records, record)
	}

	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iteration error: %w", err)
	}
	return records, nil
}

// CleanupOldRecords removes records older than maxAge.
func (s *Store) CleanupOldRecords(maxAge time.Duration) error {
	if s.db == nil {
		return fmt.Errorf("history store not initialized")
	}

	cutoff := time.Now().Add(-maxAge)
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return err
	}
	defer iter.Close()

	var keysToDelete [][]byte
	for iter.First(); iter.Valid(); iter.Next() {
		var record Record
		if err := json.Unmarshal(iter.Value(), &record); err != nil {
			continue
		}
		if record.Timestamp.Before(cutoff) {
			key := make([]byte, len(iter.Key()))
			copy(key, iter.Key())
			keysToDelete = append(keysToDelete, key)
		}
	}

	for _, key := range keysToDelete {
		if err := s.db.Delete(key, pebble.Sync); err != nil {
			return fmt.Errorf("failed to delete old history record: %w", err)
		}
	}
	return nil
}
