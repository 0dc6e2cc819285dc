package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/currentweather-service/internal/models"
)

// unreachableMemcached points at a port nothing listens on so every memcached
// call fails fast and the front falls through.
const unreachableMemcached = "127.0.0.1:1"

func TestMemcachedStore_FallsThroughWhenUnavailable(t *testing.T) {
	backing := NewMemoryStore()
	s := NewMemcachedStore(backing, unreachableMemcached, time.Hour, 50*time.Millisecond, 1, zap.NewNop())
	ctx := context.Background()
	now := time.Now()

	saved, err := s.Save(ctx, models.WeatherRecord{City: "Berlin", Timestamp: now, Temperature: 12})
	if err != nil {
		t.Fatalf("Save() should succeed when memcached is down, got %v", err)
	}
	if backing.Len() != 1 {
		t.Errorf("backing Len() = %d, want 1", backing.Len())
	}
	got, err := s.FindFresh(ctx, "Berlin", now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("FindFresh() error = %v", err)
	}
	if got.ID != saved.ID {
		t.Errorf("FindFresh() ID = %s, want %s", got.ID, saved.ID)
	}
	if _, err := s.FindFresh(ctx, "Madrid", now.Add(-time.Hour)); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindFresh(Madrid) error = %v, want ErrNotFound", err)
	}
	if err := s.Ping(ctx); err != nil {
		t.Errorf("Ping() = %v, want nil: the backing store is up", err)
	}
	if err := s.PingMemcached(ctx); err == nil {
		t.Error("PingMemcached() should report memcached failure")
	}
}

func TestMemcachedStore_KeysAreStable(t *testing.T) {
	s := NewMemcachedStore(NewMemoryStore(), "", time.Hour, 0, 0, nil)
	a := s.key("New York")
	if a != s.key("New York") {
		t.Error("key() should be deterministic")
	}
	if a == s.key("new york") {
		t.Error("key() should be case-sensitive")
	}
	if len(a) > 250 {
		t.Errorf("key length %d exceeds memcached limit", len(a))
	}
}

func TestParseAddrs(t *testing.T) {
	got := parseAddrs(" host1:11211, ,host2:11211 ")
	if len(got) != 2 || got[0] != "host1:11211" || got[1] != "host2:11211" {
		t.Errorf("parseAddrs() = %v", got)
	}
}
