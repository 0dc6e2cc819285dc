package store

import (
	"context"
	"sync"
	"time"

	"github.com/kjstillabower/currentweather-service/internal/models"
)

// MemoryStore keeps records in an append-only slice. Safe for concurrent use.
// Records are lost on restart; intended for tests and local development.
type MemoryStore struct {
	mu      sync.RWMutex
	records []models.WeatherRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// FindFresh scans records in insertion order and returns the first fresh match.
func (s *MemoryStore) FindFresh(ctx context.Context, city string, notOlderThan time.Time) (models.WeatherRecord, error) {
	if err := ctx.Err(); err != nil {
		return models.WeatherRecord{}, err
	}
	cutoff := notOlderThan.UnixMilli()

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.records {
		if rec.City == city && rec.Timestamp.UnixMilli() >= cutoff {
			return rec, nil
		}
	}
	return models.WeatherRecord{}, ErrNotFound
}

// Save appends rec.
func (s *MemoryStore) Save(ctx context.Context, rec models.WeatherRecord) (models.WeatherRecord, error) {
	if err := ctx.Err(); err != nil {
		return models.WeatherRecord{}, err
	}
	rec = prepareInsert(rec)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return rec, nil
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStore) Close() error {
	return nil
}
