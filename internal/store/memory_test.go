package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kjstillabower/currentweather-service/internal/models"
)

func TestMemoryStore_Contract(t *testing.T) {
	testStoreContract(t, NewMemoryStore())
}

func TestMemoryStore_TruncatesToMillis(t *testing.T) {
	s := NewMemoryStore()
	ts := time.Date(2024, 5, 1, 12, 0, 0, 1_500_999, time.FixedZone("CEST", 2*3600))

	saved, err := s.Save(context.Background(), models.WeatherRecord{City: "Paris", Timestamp: ts})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	want := time.UnixMilli(ts.UnixMilli()).UTC()
	if !saved.Timestamp.Equal(want) || saved.Timestamp.Location() != time.UTC {
		t.Errorf("Timestamp = %v, want %v", saved.Timestamp, want)
	}
}

func TestMemoryStore_KeepsProvidedID(t *testing.T) {
	s := NewMemoryStore()
	saved, err := s.Save(context.Background(), models.WeatherRecord{ID: "fixed", City: "Paris", Timestamp: time.Now()})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if saved.ID != "fixed" {
		t.Errorf("ID = %q, want fixed", saved.ID)
	}
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Save(ctx, models.WeatherRecord{City: "Paris", Timestamp: time.Now()}); err == nil {
		t.Error("Save() with cancelled context should fail")
	}
	if _, err := s.FindFresh(ctx, "Paris", time.Now()); err == nil || err == ErrNotFound {
		t.Errorf("FindFresh() with cancelled context error = %v, want context error", err)
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
}

func TestMemoryStore_ConcurrentSaves(t *testing.T) {
	s := NewMemoryStore()
	now := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			city := fmt.Sprintf("city-%d", i%5)
			if _, err := s.Save(context.Background(), models.WeatherRecord{City: city, Timestamp: now}); err != nil {
				t.Errorf("Save() error = %v", err)
			}
			_, _ = s.FindFresh(context.Background(), city, now.Add(-time.Hour))
		}(i)
	}
	wg.Wait()
	if s.Len() != 50 {
		t.Errorf("Len() = %d, want 50", s.Len())
	}
}
