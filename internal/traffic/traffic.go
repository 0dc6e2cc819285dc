// Package traffic keeps a short sliding window of request outcomes. /health reads it to
// report overload (many rate-limit denials) and degradation (high server-side error rate).
package traffic

import (
	"sync"
	"time"
)

// Outcome classifies a finished request.
type Outcome uint8

const (
	// Success is any request answered without a server-side failure (2xx, 400, 404).
	Success Outcome = iota
	// Failure is a request that ended in 5xx because the upstream or the store failed.
	Failure
	// Denied is a request rejected by the rate limiter.
	Denied
)

// DefaultRetention bounds how far back outcomes are kept.
const DefaultRetention = 5 * time.Minute

// Snapshot is the outcome count within a window.
type Snapshot struct {
	Successes int
	Failures  int
	Denied    int
}

// Total counts every outcome, denials included.
func (s Snapshot) Total() int {
	return s.Successes + s.Failures + s.Denied
}

// FailurePct is the share of served requests that failed, in percent. Denials are not served
// and do not count. Returns 0 when nothing was served.
func (s Snapshot) FailurePct() float64 {
	served := s.Successes + s.Failures
	if served == 0 {
		return 0
	}
	return float64(s.Failures) * 100 / float64(served)
}

// bucket holds the outcome counts of one second.
type bucket struct {
	sec    int64
	counts [3]int
}

// Tracker counts outcomes in a ring of one-second buckets covering its retention.
// Record and Window cost the same regardless of traffic volume.
type Tracker struct {
	mu      sync.Mutex
	buckets []bucket
	now     func() time.Time
}

// NewTracker returns a Tracker keeping outcomes for retention (DefaultRetention if <= 0),
// rounded up to whole seconds.
func NewTracker(retention time.Duration) *Tracker {
	if retention <= 0 {
		retention = DefaultRetention
	}
	n := int((retention + time.Second - 1) / time.Second)
	return &Tracker{buckets: make([]bucket, n), now: time.Now}
}

// Retention is how far back Window can see.
func (t *Tracker) Retention() time.Duration {
	return time.Duration(len(t.buckets)) * time.Second
}

// Record adds an outcome to the current second.
func (t *Tracker) Record(o Outcome) {
	if int(o) >= len(bucket{}.counts) {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	sec := t.now().Unix()
	b := &t.buckets[t.index(sec)]
	if b.sec != sec {
		*b = bucket{sec: sec}
	}
	b.counts[o]++
}

// Window counts outcomes recorded within the last window, in whole seconds including the
// current one. Windows longer than the retention see the whole retention.
func (t *Tracker) Window(window time.Duration) Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	nowSec := t.now().Unix()
	secs := int64((window + time.Second - 1) / time.Second)
	if secs > int64(len(t.buckets)) {
		secs = int64(len(t.buckets))
	}

	var s Snapshot
	for _, b := range t.buckets {
		if b.sec > nowSec-secs && b.sec <= nowSec {
			s.Successes += b.counts[Success]
			s.Failures += b.counts[Failure]
			s.Denied += b.counts[Denied]
		}
	}
	return s
}

// Reset forgets all outcomes.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.buckets)
}

func (t *Tracker) index(sec int64) int {
	i := sec % int64(len(t.buckets))
	if i < 0 {
		i += int64(len(t.buckets))
	}
	return int(i)
}

var defaultTracker = NewTracker(DefaultRetention)

// Record adds an outcome to the process-wide tracker.
func Record(o Outcome) { defaultTracker.Record(o) }

// Window counts outcomes of the process-wide tracker within the last window.
func Window(window time.Duration) Snapshot { return defaultTracker.Window(window) }

// Reset clears the process-wide tracker. For tests.
func Reset() { defaultTracker.Reset() }
