package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/currentweather-service/internal/client"
	"github.com/kjstillabower/currentweather-service/internal/lifecycle"
	"github.com/kjstillabower/currentweather-service/internal/models"
	"github.com/kjstillabower/currentweather-service/internal/observability"
	"github.com/kjstillabower/currentweather-service/internal/service"
	"github.com/kjstillabower/currentweather-service/internal/traffic"
	"github.com/kjstillabower/currentweather-service/internal/validation"
)

// maxBodyBytes bounds the POST /currentweather request body.
const maxBodyBytes = 1 << 20

// WeatherLookup is the service behind POST /currentweather.
type WeatherLookup interface {
	GetCurrentWeather(ctx context.Context, city string, now time.Time) (models.WeatherRecord, error)
}

// HealthConfig holds the thresholds and probes used by GET /health.
type HealthConfig struct {
	// Window is the traffic window the overload and degraded checks look at.
	Window time.Duration
	// DegradedErrorPct marks the service degraded when this share of served requests failed. 0 disables.
	DegradedErrorPct int
	// OverloadThresholdPct marks the service overloaded when requests in Window exceed this share
	// of RateLimitRPS*Window. 0 or no rate limit disables.
	OverloadThresholdPct int
	RateLimitRPS         int
	// CheckAPIKey probes the weather provider on each health check.
	CheckAPIKey bool
	// StorePing, when set, checks the weather store. A failure marks the service degraded.
	StorePing func(ctx context.Context) error
	// CachePing, when set, checks the memcached front. It is reported under checks.memcached
	// and never changes the status: lookups fall through to the store when memcached is down.
	CachePing func(ctx context.Context) error
	Version   string
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	lookup       WeatherLookup
	client       client.WeatherClient
	healthConfig *HealthConfig
	logger       *zap.Logger
	maxCityLen   int
	now          func() time.Time

	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. weatherClient and healthConfig may be nil.
// maxCityLen <= 0 uses validation.DefaultMaxCityLen.
func NewHandler(
	lookup WeatherLookup,
	weatherClient client.WeatherClient,
	healthConfig *HealthConfig,
	logger *zap.Logger,
	maxCityLen int,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		lookup:       lookup,
		client:       weatherClient,
		healthConfig: healthConfig,
		logger:       logger,
		maxCityLen:   maxCityLen,
		now:          time.Now,
	}
}

type currentWeatherRequest struct {
	City *string `json:"city"`
}

type currentWeatherResponse struct {
	CurrentWeather models.WeatherRecord `json:"currentWeather"`
}

// PostCurrentWeather handles POST /currentweather.
func (h *Handler) PostCurrentWeather(w http.ResponseWriter, r *http.Request) {
	var req currentWeatherRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		msg := "request body must be a JSON object"
		if errors.Is(err, io.EOF) {
			msg = "request body is required"
		}
		traffic.Record(traffic.Success)
		writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", msg)
		return
	}
	if req.City == nil {
		traffic.Record(traffic.Success)
		writeError(w, r, http.StatusBadRequest, "INVALID_CITY", validation.ErrCityEmpty.Error())
		return
	}
	city := *req.City
	if err := validation.ValidateCity(city, h.maxCityLen); err != nil {
		traffic.Record(traffic.Success)
		writeError(w, r, http.StatusBadRequest, "INVALID_CITY", err.Error())
		return
	}

	rec, err := h.lookup.GetCurrentWeather(r.Context(), city, h.now())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	traffic.Record(traffic.Success)
	writeJSON(w, http.StatusOK, currentWeatherResponse{CurrentWeather: rec})
}

// writeServiceError maps lookup failures to responses. Only city-not-found counts as a
// served request; the rest are server-side failures for the degraded check.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	logger := observability.LoggerFromContext(r.Context())
	switch {
	case errors.Is(err, service.ErrCityNotFound):
		traffic.Record(traffic.Success)
		writeError(w, r, http.StatusNotFound, "CITY_NOT_FOUND", "City not found")
	case errors.Is(err, service.ErrUpstream):
		traffic.Record(traffic.Failure)
		logger.Debug("upstream error", zap.Error(err))
		writeError(w, r, http.StatusBadGateway, "UPSTREAM_ERROR", "Unable to fetch weather data")
	case errors.Is(err, service.ErrStore):
		traffic.Record(traffic.Failure)
		logger.Debug("store error", zap.Error(err))
		writeError(w, r, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Weather store unavailable")
	default:
		traffic.Record(traffic.Failure)
		logger.Error("unexpected lookup error", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
	checks     map[string]string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus(r.Context())
	if h.healthConfig != nil && h.healthConfig.CachePing != nil {
		if err := h.healthConfig.CachePing(r.Context()); err != nil {
			result.checks["memcached"] = "unhealthy"
		} else {
			result.checks["memcached"] = "healthy"
		}
	}

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	version := "dev"
	if h.healthConfig != nil && h.healthConfig.Version != "" {
		version = h.healthConfig.Version
	}
	writeJSON(w, result.statusCode, map[string]interface{}{
		"status":    result.status,
		"service":   "currentweather-service",
		"version":   version,
		"checks":    result.checks,
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > store unreachable > API key invalid > overloaded > degraded > healthy.
func (h *Handler) computeHealthStatus(ctx context.Context) healthResult {
	checks := map[string]string{}
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal", checks}
	}
	cfg := h.healthConfig
	if cfg == nil {
		cfg = &HealthConfig{}
	}

	if cfg.StorePing != nil {
		if err := cfg.StorePing(ctx); err != nil {
			checks["store"] = "unhealthy"
			return healthResult{"degraded", http.StatusServiceUnavailable, "store_unreachable", checks}
		}
		checks["store"] = "healthy"
	}

	if cfg.CheckAPIKey && h.client != nil {
		if err := h.client.ValidateAPIKey(ctx); err != nil {
			checks["weatherApi"] = "unhealthy"
			return healthResult{"degraded", http.StatusServiceUnavailable, "api_key_invalid", checks}
		}
		checks["weatherApi"] = "healthy"
	}

	if cfg.Window <= 0 {
		return healthResult{"healthy", http.StatusOK, "", checks}
	}
	snap := traffic.Window(cfg.Window)

	if cfg.RateLimitRPS > 0 && cfg.OverloadThresholdPct > 0 {
		threshold := float64(cfg.RateLimitRPS) * cfg.Window.Seconds() * float64(cfg.OverloadThresholdPct) / 100
		if float64(snap.Total()) > threshold {
			return healthResult{"overloaded", http.StatusServiceUnavailable, "overload_threshold", checks}
		}
	}
	if cfg.DegradedErrorPct > 0 && snap.FailurePct() >= float64(cfg.DegradedErrorPct) {
		return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach", checks}
	}
	return healthResult{"healthy", http.StatusOK, "", checks}
}

// writeJSON writes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationID(r.Context()),
		},
	})
}
