// Package lifecycle holds the process-wide draining state set when shutdown begins.
package lifecycle

import (
	"sync/atomic"
	"time"
)

// startedAt is the Unix nanosecond time shutdown began, 0 while serving.
var startedAt atomic.Int64

// BeginShutdown marks the process as draining. /health answers 503 from then on.
// Returns false if shutdown had already begun.
func BeginShutdown() bool {
	return startedAt.CompareAndSwap(0, time.Now().UnixNano())
}

// IsShuttingDown reports whether BeginShutdown has been called.
func IsShuttingDown() bool {
	return startedAt.Load() != 0
}

// ShuttingDownFor returns how long the process has been draining, 0 while serving.
func ShuttingDownFor() time.Duration {
	ns := startedAt.Load()
	if ns == 0 {
		return 0
	}
	return time.Since(time.Unix(0, ns))
}

// Reset returns to the serving state. For tests.
func Reset() {
	startedAt.Store(0)
}
