package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/currentweather-service/internal/models"
	"github.com/kjstillabower/currentweather-service/internal/store"
)

type recordingLookup struct {
	mu     sync.Mutex
	cities []string
	failOn string
}

func (r *recordingLookup) GetCurrentWeather(ctx context.Context, city string, now time.Time) (models.WeatherRecord, error) {
	r.mu.Lock()
	r.cities = append(r.cities, city)
	r.mu.Unlock()
	if city == r.failOn {
		return models.WeatherRecord{}, ErrUpstream
	}
	return models.WeatherRecord{City: city, Timestamp: now}, nil
}

func (r *recordingLookup) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cities)
}

func TestWarmer_Warm_LooksUpEveryCity(t *testing.T) {
	lookup := &recordingLookup{}
	w := NewWarmer(lookup, nil)

	if err := w.Warm(context.Background(), []string{"London", "Paris", "Rome"}); err != nil {
		t.Fatalf("Warm() error = %v", err)
	}
	if lookup.calls() != 3 {
		t.Errorf("lookups = %d, want 3", lookup.calls())
	}
}

func TestWarmer_Warm_Empty(t *testing.T) {
	lookup := &recordingLookup{}
	w := NewWarmer(lookup, nil)

	if err := w.Warm(context.Background(), nil); err != nil {
		t.Fatalf("Warm(nil) error = %v", err)
	}
	if lookup.calls() != 0 {
		t.Errorf("lookups = %d, want 0", lookup.calls())
	}
}

func TestWarmer_Warm_JoinsFailures(t *testing.T) {
	lookup := &recordingLookup{failOn: "Nowhereville"}
	core, logs := observer.New(zapcore.InfoLevel)
	w := NewWarmer(lookup, zap.New(core))

	err := w.Warm(context.Background(), []string{"London", "Nowhereville"})
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("Warm() error = %v, want wrapping ErrUpstream", err)
	}
	if lookup.calls() != 2 {
		t.Errorf("lookups = %d, want 2: a failure must not stop the other cities", lookup.calls())
	}
	if logs.FilterMessage("warming complete").Len() != 1 {
		t.Error("expected a warming complete log entry")
	}
}

func TestWarmer_Warm_FreshRecordSkipsUpstream(t *testing.T) {
	mc := newTestClient()
	svc := NewWeatherService(mc, store.NewMemoryStore(), Options{})
	w := NewWarmer(svc, nil)
	ctx := context.Background()

	if err := w.Warm(ctx, []string{"London"}); err != nil {
		t.Fatalf("first Warm() error = %v", err)
	}
	if err := w.Warm(ctx, []string{"London"}); err != nil {
		t.Fatalf("second Warm() error = %v", err)
	}
	if mc.callCount() != 1 {
		t.Errorf("upstream calls = %d, want 1", mc.callCount())
	}
}

func TestWarmer_WarmPeriodic_StopsOnCancel(t *testing.T) {
	lookup := &recordingLookup{}
	w := NewWarmer(lookup, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- w.WarmPeriodic(ctx, []string{"London"}, 10*time.Millisecond) }()

	deadline := time.Now().Add(2 * time.Second)
	for lookup.calls() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("WarmPeriodic() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("WarmPeriodic did not return after cancel")
	}
	if lookup.calls() < 2 {
		t.Errorf("lookups = %d, want at least 2 (initial plus one tick)", lookup.calls())
	}
}

func TestWarmer_WarmPeriodic_ZeroIntervalWarmsOnce(t *testing.T) {
	lookup := &recordingLookup{}
	w := NewWarmer(lookup, nil)

	if err := w.WarmPeriodic(context.Background(), []string{"London"}, 0); err != nil {
		t.Fatalf("WarmPeriodic() error = %v", err)
	}
	if lookup.calls() != 1 {
		t.Errorf("lookups = %d, want 1", lookup.calls())
	}
}

func TestWarmer_Warm_ServiceLogsReachWarmerLogger(t *testing.T) {
	fs := &failingStore{MemoryStore: store.NewMemoryStore(), findErr: errors.New("connection refused")}
	svc := NewWeatherService(newTestClient(), fs, Options{})
	core, logs := observer.New(zapcore.InfoLevel)
	w := NewWarmer(svc, zap.New(core))

	if err := w.Warm(context.Background(), []string{"London"}); !errors.Is(err, ErrStore) {
		t.Fatalf("Warm() error = %v, want wrapping ErrStore", err)
	}
	entries := logs.FilterMessage("store lookup failed").All()
	if len(entries) != 1 {
		t.Fatalf("store lookup failed logs = %d, want 1", len(entries))
	}
	if got := entries[0].ContextMap()["component"]; got != "warmer" {
		t.Errorf("component = %v, want warmer", got)
	}
}
