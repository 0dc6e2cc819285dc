package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/currentweather-service/internal/circuitbreaker"
	"github.com/kjstillabower/currentweather-service/internal/client"
	"github.com/kjstillabower/currentweather-service/internal/config"
	httphandler "github.com/kjstillabower/currentweather-service/internal/http"
	"github.com/kjstillabower/currentweather-service/internal/lifecycle"
	"github.com/kjstillabower/currentweather-service/internal/observability"
	"github.com/kjstillabower/currentweather-service/internal/service"
	"github.com/kjstillabower/currentweather-service/internal/store"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// config first: it loads .env, which may carry LOG_LEVEL and LOG_FILE
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	weatherClient, err := client.NewOpenWeatherClient(client.Options{
		APIKey:       cfg.WeatherAPIKey,
		BaseURL:      cfg.WeatherAPIURL,
		RapidAPIHost: cfg.WeatherAPIRapidAPIHost,
		Timeout:      cfg.WeatherAPITimeout,
	})
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}

	if cfg.CircuitBreakerEnabled {
		cb := circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: cfg.CircuitBreakerFailureThreshold,
			SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
			Timeout:          cfg.CircuitBreakerTimeout,
			Component:        "weather_api",
			IsFailure:        client.IsUpstreamFailure,
			OnStateChange: func(from, to circuitbreaker.State) {
				observability.RecordCircuitBreakerTransition("weather_api", from.String(), to.String(), float64(to))
				logger.Warn("circuit breaker state change", zap.String("from", from.String()), zap.String("to", to.String()))
			},
		})
		weatherClient.SetCircuitBreaker(cb)
		observability.CircuitBreakerState.WithLabelValues("weather_api").Set(0)
		logger.Info("circuit breaker enabled", zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold), zap.Duration("timeout", cfg.CircuitBreakerTimeout))
	}

	openCtx, openCancel := context.WithTimeout(context.Background(), 30*time.Second)
	weatherStore, err := openStore(openCtx, cfg, logger)
	openCancel()
	if err != nil {
		logger.Fatal("weather store", zap.Error(err))
	}

	weatherService := service.NewWeatherService(weatherClient, weatherStore, service.Options{
		Coalesce:           cfg.CoalesceEnabled,
		SharedFetchTimeout: cfg.RequestTimeout,
	})
	if len(cfg.TrackedCities) > 0 {
		observability.SetTrackedCities(cfg.TrackedCities)
	}

	healthConfig := &httphandler.HealthConfig{
		Window:               cfg.HealthWindow,
		DegradedErrorPct:     cfg.DegradedErrorPct,
		OverloadThresholdPct: cfg.OverloadThresholdPct,
		RateLimitRPS:         cfg.RateLimitRPS,
		CheckAPIKey:          cfg.HealthCheckAPIKey,
		StorePing:            weatherStore.Ping,
		Version:              version,
	}
	if front, ok := weatherStore.(*store.MemcachedStore); ok {
		healthConfig.CachePing = front.PingMemcached
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(weatherService, weatherClient, healthConfig, logger, cfg.CityMaxLength)
	router := httphandler.NewRouter(handler, httphandler.RouterConfig{
		Logger:         logger,
		Origin:         cfg.Origin,
		Limiter:        limiter,
		RequestTimeout: cfg.RequestTimeout,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env), zap.String("store", cfg.StoreBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	warmCtx, stopWarming := context.WithCancel(context.Background())
	defer stopWarming()
	if len(cfg.WarmCities) > 0 {
		warmer := service.NewWarmer(weatherService, logger)
		go func() {
			_ = warmer.WarmPeriodic(warmCtx, cfg.WarmCities, cfg.WarmInterval)
		}()
	}

	<-ctx.Done()
	stop()
	stopWarming()

	logger.Info("graceful shutdown triggered")
	lifecycle.BeginShutdown()
	inFlight := httphandler.InFlightCount()
	observability.RecordShutdownInFlight(inFlight)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", httphandler.InFlightCount()))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if err := weatherStore.Close(); err != nil {
		logger.Error("store close", zap.Error(err))
	}

	logger.Info("shutdown complete", zap.Duration("drain", lifecycle.ShuttingDownFor()))
	flushCtx, flushCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer flushCancel()
	if err := observability.FlushTelemetry(flushCtx, logger); err != nil {
		fmt.Fprintf(os.Stderr, "telemetry flush: %v\n", err)
	}
}

// openStore builds the configured backend and, when memcached addresses are set,
// puts the memcached front before it.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Store, error) {
	var s store.Store
	switch cfg.StoreBackend {
	case config.StoreMemory:
		logger.Warn("store backend: memory; records are lost on restart")
		s = store.NewMemoryStore()
	case config.StoreSQLite, config.StorePostgres:
		sqlStore, err := store.OpenSQL(ctx, store.Dialect(cfg.StoreBackend), cfg.StoreDSN, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("store backend: sql", zap.String("dialect", cfg.StoreBackend))
		s = sqlStore
	case config.StoreRedis:
		redisStore, err := store.OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		logger.Info("store backend: redis")
		s = redisStore
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	if cfg.MemcachedAddrs != "" {
		logger.Info("memcached front enabled", zap.String("addrs", cfg.MemcachedAddrs), zap.Duration("ttl", cfg.MemcachedTTL))
		s = store.NewMemcachedStore(s, cfg.MemcachedAddrs, cfg.MemcachedTTL, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns, logger)
	}
	return s, nil
}
