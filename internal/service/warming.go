package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/currentweather-service/internal/models"
	"github.com/kjstillabower/currentweather-service/internal/observability"
)

// Lookup is the operation a Warmer drives. *WeatherService implements it.
type Lookup interface {
	GetCurrentWeather(ctx context.Context, city string, now time.Time) (models.WeatherRecord, error)
}

// Warmer keeps a fixed list of cities fresh by looking them up ahead of client traffic.
// A lookup that finds a fresh record does nothing, so warming never adds a second upstream
// call within the freshness window.
type Warmer struct {
	lookup Lookup
	logger *zap.Logger
	now    func() time.Time
}

// NewWarmer creates a Warmer over lookup. A nil logger disables logging.
func NewWarmer(lookup Lookup, logger *zap.Logger) *Warmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Warmer{lookup: lookup, logger: logger, now: time.Now}
}

// Warm looks up every city concurrently. Failures for individual cities are joined into
// the returned error; the other cities are still warmed.
func (w *Warmer) Warm(ctx context.Context, cities []string) error {
	if len(cities) == 0 {
		return nil
	}
	start := time.Now()
	observability.WarmingRunsTotal.Inc()
	w.logger.Info("warming weather store", zap.Int("cities", len(cities)))

	ctx = observability.WithLogger(ctx, w.logger.With(zap.String("component", "warmer")))
	now := w.now()
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, city := range cities {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := w.lookup.GetCurrentWeather(ctx, city, now); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("warm %q: %w", city, err))
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	duration := time.Since(start).Seconds()
	observability.WarmingDurationSeconds.Observe(duration)
	w.logger.Info("warming complete", zap.Int("cities", len(cities)), zap.Int("errors", len(errs)), zap.Float64("duration_seconds", duration))
	if len(errs) > 0 {
		observability.WarmingErrorsTotal.Add(float64(len(errs)))
		return errors.Join(errs...)
	}
	return nil
}

// WarmPeriodic runs Warm once, then again every interval until ctx is done.
// With interval <= 0 it warms once and returns.
func (w *Warmer) WarmPeriodic(ctx context.Context, cities []string, interval time.Duration) error {
	if err := w.Warm(ctx, cities); err != nil {
		w.logger.Warn("initial warm failed", zap.Error(err))
	}
	if interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Warm(ctx, cities); err != nil {
				w.logger.Warn("periodic warm failed", zap.Error(err))
			}
		}
	}
}
