package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/kjstillabower/currentweather-service/internal/models"
)

// ErrNotFound is returned by FindFresh when no record for the city is fresh enough.
var ErrNotFound = errors.New("weather record not found")

// Store persists weather records. Any error other than ErrNotFound means the store
// itself failed (unreachable, query or write error).
type Store interface {
	// FindFresh returns a record for exactly city with timestamp >= notOlderThan.
	// When several qualify, which one is returned is unspecified.
	FindFresh(ctx context.Context, city string, notOlderThan time.Time) (models.WeatherRecord, error)
	// Save inserts rec (never updates) and returns it with ID assigned.
	Save(ctx context.Context, rec models.WeatherRecord) (models.WeatherRecord, error)
	Ping(ctx context.Context) error
	Close() error
}

// prepareInsert assigns an ID and truncates the timestamp to the millisecond precision
// every backend persists, so the returned record matches what a later read yields.
func prepareInsert(rec models.WeatherRecord) models.WeatherRecord {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.Timestamp = fromMillis(rec.Timestamp.UnixMilli())
	return rec
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
