package service

import (
	"sync"

	"github.com/kjstillabower/currentweather-service/internal/observability"
)

// missCounter tracks misses in progress per city and reports a stampede whenever a miss
// starts while another one for the same city is still running.
type missCounter struct {
	mu     sync.Mutex
	active map[string]int
}

func newMissCounter() *missCounter {
	return &missCounter{active: make(map[string]int)}
}

// begin registers a miss for city and returns how many are now in progress, with the
// function that ends it. done is safe to call more than once.
func (m *missCounter) begin(city string) (n int, done func()) {
	m.mu.Lock()
	m.active[city]++
	n = m.active[city]
	m.mu.Unlock()

	if n > 1 {
		label := observability.MetricCityLabel(city)
		observability.CacheStampedeDetectedTotal.WithLabelValues(label).Inc()
		observability.CacheStampedeConcurrency.WithLabelValues(label).Observe(float64(n))
	}

	var once sync.Once
	return n, func() { once.Do(func() { m.end(city) }) }
}

func (m *missCounter) end(city string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active[city] <= 1 {
		delete(m.active, city)
		return
	}
	m.active[city]--
}

func (m *missCounter) inProgress(city string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active[city]
}
