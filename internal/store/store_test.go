package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kjstillabower/currentweather-service/internal/models"
)

// testStoreContract runs the behaviour every backend must share against s.
// s must be empty.
func testStoreContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	cutoff := now.Add(-time.Hour)

	t.Run("empty store misses", func(t *testing.T) {
		_, err := s.FindFresh(ctx, "London", cutoff)
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("FindFresh() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("save assigns id and finds it", func(t *testing.T) {
		saved, err := s.Save(ctx, models.WeatherRecord{
			City:        "London",
			Timestamp:   now,
			Temperature: 17,
			Humidity:    60,
			Description: "clear sky",
		})
		if err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		if saved.ID == "" {
			t.Fatal("Save() returned record without ID")
		}
		got, err := s.FindFresh(ctx, "London", cutoff)
		if err != nil {
			t.Fatalf("FindFresh() error = %v", err)
		}
		if got.ID != saved.ID || got.Temperature != 17 || got.Humidity != 60 || got.Description != "clear sky" {
			t.Errorf("FindFresh() = %+v, want %+v", got, saved)
		}
		if !got.Timestamp.Equal(now) {
			t.Errorf("Timestamp = %v, want %v", got.Timestamp, now)
		}
	})

	t.Run("city match is exact", func(t *testing.T) {
		for _, city := range []string{"london", "London ", "LONDON"} {
			if _, err := s.FindFresh(ctx, city, cutoff); !errors.Is(err, ErrNotFound) {
				t.Errorf("FindFresh(%q) error = %v, want ErrNotFound", city, err)
			}
		}
	})

	t.Run("cutoff is inclusive", func(t *testing.T) {
		if _, err := s.Save(ctx, models.WeatherRecord{City: "Oslo", Timestamp: cutoff, Temperature: 3}); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		if _, err := s.FindFresh(ctx, "Oslo", cutoff); err != nil {
			t.Errorf("record at exactly the cutoff should be fresh, got %v", err)
		}
		if _, err := s.FindFresh(ctx, "Oslo", cutoff.Add(time.Millisecond)); !errors.Is(err, ErrNotFound) {
			t.Errorf("record 1ms before the cutoff should be stale, got %v", err)
		}
	})

	t.Run("saves append", func(t *testing.T) {
		first, err := s.Save(ctx, models.WeatherRecord{City: "Rome", Timestamp: now.Add(-2 * time.Hour), Temperature: 20})
		if err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		second, err := s.Save(ctx, models.WeatherRecord{City: "Rome", Timestamp: now, Temperature: 22})
		if err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		if first.ID == second.ID {
			t.Fatal("Save() reused an ID")
		}
		got, err := s.FindFresh(ctx, "Rome", cutoff)
		if err != nil {
			t.Fatalf("FindFresh() error = %v", err)
		}
		if got.ID != second.ID {
			t.Errorf("FindFresh() returned %s, want the fresh record %s", got.ID, second.ID)
		}
		if _, err := s.FindFresh(ctx, "Rome", now.Add(-3*time.Hour)); err != nil {
			t.Errorf("older cutoff should still find a record, got %v", err)
		}
	})

	t.Run("ping", func(t *testing.T) {
		if err := s.Ping(ctx); err != nil {
			t.Errorf("Ping() error = %v", err)
		}
	})
}
