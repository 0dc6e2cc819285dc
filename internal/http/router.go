package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/currentweather-service/internal/observability"
)

// RouterConfig configures the middleware chain built by NewRouter.
type RouterConfig struct {
	Logger *zap.Logger
	// Origin is the single CORS origin allowed; empty disables CORS headers.
	Origin string
	// Limiter throttles POST /currentweather; nil disables rate limiting.
	Limiter *rate.Limiter
	// RequestTimeout bounds each /currentweather request; 0 disables.
	RequestTimeout time.Duration
}

// NewRouter wires the service routes:
//
//	POST /currentweather  weather lookup (rate limited, with timeout)
//	GET  /health          health status
//	GET  /metrics         Prometheus metrics
func NewRouter(h *Handler, cfg RouterConfig) *mux.Router {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", "Route not found")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
	})

	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.Use(mux.CORSMethodMiddleware(router))
	router.Use(CORSMiddleware(cfg.Origin))

	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	var lookup http.Handler = http.HandlerFunc(h.PostCurrentWeather)
	lookup = TimeoutMiddleware(cfg.RequestTimeout)(lookup)
	lookup = RateLimitMiddleware(cfg.Limiter)(lookup)
	router.Handle("/currentweather", lookup).Methods(http.MethodPost, http.MethodOptions)

	return router
}
