package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/currentweather-service/internal/client"
	"github.com/kjstillabower/currentweather-service/internal/models"
	"github.com/kjstillabower/currentweather-service/internal/observability"
	"github.com/kjstillabower/currentweather-service/internal/store"
	"github.com/kjstillabower/currentweather-service/internal/units"
)

// FreshnessWindow is how long a stored record is served before the upstream is asked again.
const FreshnessWindow = time.Hour

// Errors returned by GetCurrentWeather. Every failure wraps exactly one of them.
var (
	ErrCityNotFound = errors.New("city not found")
	ErrUpstream     = errors.New("weather provider unavailable")
	ErrStore        = errors.New("weather store unavailable")
)

// Options tunes optional behaviour of WeatherService.
type Options struct {
	// Coalesce shares one upstream fetch and save between concurrent misses for the same city.
	// Off by default: concurrent misses each fetch and each insert a record.
	Coalesce bool
	// SharedFetchTimeout bounds a coalesced fetch-and-save, which outlives the request that
	// started it. Zero uses a 15s default.
	SharedFetchTimeout time.Duration
}

// WeatherService answers current weather lookups from the store when a fresh record exists
// and from the upstream provider otherwise, saving what it fetches.
type WeatherService struct {
	client    client.WeatherClient
	store     store.Store
	misses    *missCounter
	coalescer *coalescer // nil unless Options.Coalesce
}

// NewWeatherService creates a WeatherService over the given client and store.
func NewWeatherService(c client.WeatherClient, s store.Store, opts Options) *WeatherService {
	svc := &WeatherService{
		client: c,
		store:  s,
		misses: newMissCounter(),
	}
	if opts.Coalesce {
		svc.coalescer = newCoalescer(opts.SharedFetchTimeout)
	}
	return svc
}

// GetCurrentWeather returns a record for city that is no older than FreshnessWindow relative
// to now. On a miss it fetches upstream, converts the temperature to Celsius, saves a new
// record stamped with now and returns it. city is used exactly as given.
func (s *WeatherService) GetCurrentWeather(ctx context.Context, city string, now time.Time) (models.WeatherRecord, error) {
	start := time.Now()
	logger := observability.LoggerFromContext(ctx)
	observability.RecordWeatherQuery(city)

	cutoff := now.Add(-FreshnessWindow)
	rec, err := s.findFresh(ctx, city, cutoff)
	if err == nil {
		observability.LookupsTotal.WithLabelValues("hit").Inc()
		logger.Debug("weather served", zap.String("city", city), zap.Bool("cached", true), zap.Duration("duration", time.Since(start)))
		return rec, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		logger.Error("store lookup failed", zap.String("city", city), zap.Error(err))
		return models.WeatherRecord{}, fmt.Errorf("%w: find %q: %w", ErrStore, city, err)
	}
	observability.LookupsTotal.WithLabelValues("miss").Inc()

	_, missDone := s.misses.begin(city)
	defer missDone()

	logger.Debug("no fresh record, fetching upstream", zap.String("city", city))

	if s.coalescer != nil {
		var shared bool
		rec, shared, err = s.coalescer.Do(ctx, city, func(sharedCtx context.Context) (models.WeatherRecord, error) {
			return s.fetchAndSave(sharedCtx, city, now)
		})
		if shared {
			observability.RequestCoalescingHitsTotal.WithLabelValues(observability.MetricCityLabel(city)).Inc()
		}
		if err != nil && !isClassified(err) {
			// waiter's context ended before the shared fetch finished
			err = fmt.Errorf("%w: wait for %q: %w", ErrUpstream, city, err)
		}
	} else {
		rec, err = s.fetchAndSave(ctx, city, now)
	}
	if err != nil {
		return models.WeatherRecord{}, err
	}

	logger.Debug("weather served", zap.String("city", city), zap.Bool("cached", false), zap.Duration("duration", time.Since(start)))
	return rec, nil
}

func (s *WeatherService) findFresh(ctx context.Context, city string, cutoff time.Time) (models.WeatherRecord, error) {
	opStart := time.Now()
	rec, err := s.store.FindFresh(ctx, city, cutoff)
	duration := time.Since(opStart).Seconds()
	switch {
	case err == nil:
		observability.StoreOperationDurationSeconds.WithLabelValues("find_fresh", "hit").Observe(duration)
	case errors.Is(err, store.ErrNotFound):
		observability.StoreOperationDurationSeconds.WithLabelValues("find_fresh", "miss").Observe(duration)
	default:
		observability.StoreOperationDurationSeconds.WithLabelValues("find_fresh", "error").Observe(duration)
		observability.StoreErrorsTotal.WithLabelValues("find_fresh", categorizeStoreError(err)).Inc()
	}
	return rec, err
}

// fetchAndSave performs one upstream call and, on success, one store insert.
// Nothing is saved when the upstream fails.
func (s *WeatherService) fetchAndSave(ctx context.Context, city string, now time.Time) (models.WeatherRecord, error) {
	logger := observability.LoggerFromContext(ctx)

	obs, err := s.client.GetCurrentWeather(ctx, city)
	if err != nil {
		if errors.Is(err, client.ErrCityNotFound) {
			logger.Info("city not found upstream", zap.String("city", city))
			return models.WeatherRecord{}, fmt.Errorf("%w: %q: %w", ErrCityNotFound, city, err)
		}
		logger.Warn("upstream fetch failed", zap.String("city", city), zap.Error(err))
		return models.WeatherRecord{}, fmt.Errorf("%w: fetch %q: %w", ErrUpstream, city, err)
	}

	rec := models.WeatherRecord{
		City:        city,
		Timestamp:   now,
		Temperature: units.KelvinToCelsius(obs.Temperature),
		Humidity:    obs.Humidity,
		Description: obs.Description,
	}

	opStart := time.Now()
	saved, err := s.store.Save(ctx, rec)
	duration := time.Since(opStart).Seconds()
	if err != nil {
		observability.StoreOperationDurationSeconds.WithLabelValues("save", "error").Observe(duration)
		observability.StoreErrorsTotal.WithLabelValues("save", categorizeStoreError(err)).Inc()
		logger.Error("store save failed", zap.String("city", city), zap.Error(err))
		return models.WeatherRecord{}, fmt.Errorf("%w: save %q: %w", ErrStore, city, err)
	}
	observability.StoreOperationDurationSeconds.WithLabelValues("save", "success").Observe(duration)
	return saved, nil
}

func isClassified(err error) bool {
	return errors.Is(err, ErrCityNotFound) || errors.Is(err, ErrUpstream) || errors.Is(err, ErrStore)
}

// categorizeStoreError returns a stable label for store error metrics (timeout, connection, cancelled, unknown).
func categorizeStoreError(err error) string {
	if err == nil {
		return "unknown"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "cancelled"
	}
	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "timeout") {
		return "timeout"
	}
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "network") || strings.Contains(errStr, "closed") {
		return "connection"
	}
	return "unknown"
}
