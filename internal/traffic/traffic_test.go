package traffic

import (
	"sync"
	"testing"
	"time"
)

// fakeClock lets tests move time forward without sleeping.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestTracker(retention time.Duration) (*Tracker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	tr := NewTracker(retention)
	tr.now = clock.now
	return tr, clock
}

func TestTracker_EmptyWindow(t *testing.T) {
	tr, _ := newTestTracker(time.Minute)
	if s := tr.Window(time.Minute); s != (Snapshot{}) {
		t.Errorf("Window() = %+v, want zero", s)
	}
}

func TestTracker_CountsByOutcome(t *testing.T) {
	tr, _ := newTestTracker(time.Minute)
	tr.Record(Success)
	tr.Record(Success)
	tr.Record(Failure)
	tr.Record(Denied)

	s := tr.Window(time.Minute)
	want := Snapshot{Successes: 2, Failures: 1, Denied: 1}
	if s != want {
		t.Errorf("Window() = %+v, want %+v", s, want)
	}
	if s.Total() != 4 {
		t.Errorf("Total() = %d, want 4", s.Total())
	}
}

func TestTracker_WindowExcludesOlderOutcomes(t *testing.T) {
	tr, clock := newTestTracker(5 * time.Minute)
	tr.Record(Failure)
	clock.advance(2 * time.Minute)
	tr.Record(Success)

	if s := tr.Window(time.Minute); s.Failures != 0 || s.Successes != 1 {
		t.Errorf("Window(1m) = %+v, want only the recent success", s)
	}
	if s := tr.Window(3 * time.Minute); s.Failures != 1 || s.Successes != 1 {
		t.Errorf("Window(3m) = %+v, want both outcomes", s)
	}
}

func TestTracker_ForgetsPastRetention(t *testing.T) {
	tr, clock := newTestTracker(time.Minute)
	tr.Record(Success)
	tr.Record(Success)
	clock.advance(2 * time.Minute)
	tr.Record(Failure)

	if s := tr.Window(10 * time.Minute); s != (Snapshot{Failures: 1}) {
		t.Errorf("Window(10m) = %+v, want only the recent failure", s)
	}
}

func TestTracker_MemoryIsBoundedByRetention(t *testing.T) {
	tr, clock := newTestTracker(time.Minute)
	for i := 0; i < 10000; i++ {
		tr.Record(Success)
		if i%100 == 0 {
			clock.advance(time.Second)
		}
	}
	if len(tr.buckets) != 60 {
		t.Errorf("buckets = %d, want 60", len(tr.buckets))
	}
	if got := tr.Retention(); got != time.Minute {
		t.Errorf("Retention() = %v, want 1m", got)
	}
	if s := tr.Window(time.Minute); s.Successes > 60*100 || s.Successes < 59*100 {
		t.Errorf("Window(1m) successes = %d, want about 6000", s.Successes)
	}
}

func TestTracker_BucketReusedAfterWrap(t *testing.T) {
	tr, clock := newTestTracker(10 * time.Second)
	tr.Record(Failure)
	clock.advance(10 * time.Second) // same ring slot, new second
	tr.Record(Success)

	if s := tr.Window(10 * time.Second); s != (Snapshot{Successes: 1}) {
		t.Errorf("Window() = %+v, want the stale slot reset", s)
	}
}

func TestSnapshot_FailurePct(t *testing.T) {
	tests := []struct {
		s    Snapshot
		want float64
	}{
		{Snapshot{}, 0},
		{Snapshot{Successes: 3, Failures: 1}, 25},
		{Snapshot{Failures: 2}, 100},
		{Snapshot{Successes: 1, Denied: 10}, 0},
	}
	for _, tc := range tests {
		if got := tc.s.FailurePct(); got != tc.want {
			t.Errorf("%+v.FailurePct() = %v, want %v", tc.s, got, tc.want)
		}
	}
}

func TestTracker_Reset(t *testing.T) {
	tr, _ := newTestTracker(time.Minute)
	tr.Record(Denied)
	tr.Reset()
	if s := tr.Window(time.Minute); s.Total() != 0 {
		t.Errorf("after Reset Window() = %+v, want zero", s)
	}
}

func TestDefaultTracker(t *testing.T) {
	Reset()
	defer Reset()
	Record(Success)
	Record(Failure)
	if s := Window(time.Minute); s.Successes != 1 || s.Failures != 1 {
		t.Errorf("Window() = %+v", s)
	}
}

func TestTracker_Concurrent(t *testing.T) {
	tr := NewTracker(time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tr.Record(Outcome(i % 3))
			_ = tr.Window(time.Minute)
		}(i)
	}
	wg.Wait()
	if s := tr.Window(time.Minute); s.Total() != 20 {
		t.Errorf("Total() = %d, want 20", s.Total())
	}
}
