package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kjstillabower/currentweather-service/internal/circuitbreaker"
	"github.com/kjstillabower/currentweather-service/internal/observability"
)

// WeatherClient fetches current conditions for a city from the upstream provider.
// Errors wrap ErrCityNotFound or ErrUpstreamFailure; callers branch with errors.Is.
type WeatherClient interface {
	GetCurrentWeather(ctx context.Context, city string) (Observation, error)
	ValidateAPIKey(ctx context.Context) error
}

var (
	ErrCityNotFound    = errors.New("city not found")
	ErrUpstreamFailure = errors.New("upstream failure")
	ErrInvalidAPIKey   = errors.New("invalid API key")
	ErrRateLimited     = errors.New("rate limited")
)

// Observation is the upstream reading for a city, in upstream units (Kelvin).
type Observation struct {
	City        string
	Description string
	Temperature float64
	Humidity    float64
}

// Options configures an OpenWeatherClient.
type Options struct {
	APIKey  string
	BaseURL string
	// RapidAPIHost, when set, sends the key as RapidAPI headers instead of the appid parameter.
	RapidAPIHost string
	// Timeout bounds each upstream call. Zero leaves the transport default.
	Timeout time.Duration
}

// OpenWeatherClient calls the OpenWeatherMap current weather endpoint.
// It never retries; a failed call is reported to the caller as-is.
type OpenWeatherClient struct {
	apiKey       string
	baseURL      *url.URL
	rapidAPIHost string
	client       *http.Client
	breaker      *circuitbreaker.CircuitBreaker
}

func NewOpenWeatherClient(opts Options) (*OpenWeatherClient, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	base, err := url.Parse(opts.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid weather API URL %q", opts.BaseURL)
	}

	return &OpenWeatherClient{
		apiKey:       opts.APIKey,
		baseURL:      base,
		rapidAPIHost: strings.TrimSpace(opts.RapidAPIHost),
		client: &http.Client{
			Timeout: opts.Timeout,
		},
	}, nil
}

// SetCircuitBreaker wraps upstream calls with cb. City-not-found answers must not trip it;
// configure cb with IsUpstreamFailure.
func (c *OpenWeatherClient) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	c.breaker = cb
}

// IsUpstreamFailure reports whether err should count against the circuit breaker.
func IsUpstreamFailure(err error) bool {
	return err != nil && !errors.Is(err, ErrCityNotFound)
}

type openWeatherResponse struct {
	Main *struct {
		Temp     *float64 `json:"temp"`
		Humidity float64  `json:"humidity"`
	} `json:"main"`
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
	Name string `json:"name"`
}

func (c *OpenWeatherClient) GetCurrentWeather(ctx context.Context, city string) (Observation, error) {
	if c.breaker == nil {
		return c.callAPI(ctx, city)
	}
	var obs Observation
	err := c.breaker.Call(ctx, func() error {
		var callErr error
		obs, callErr = c.callAPI(ctx, city)
		return callErr
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		observability.WeatherAPIErrorsTotal.WithLabelValues(string(ErrorCategoryCircuitOpen)).Inc()
		return Observation{}, fmt.Errorf("%w: %w", ErrUpstreamFailure, err)
	}
	if err != nil && !errors.Is(err, ErrCityNotFound) && !errors.Is(err, ErrUpstreamFailure) {
		// context cancelled before the breaker ran fn
		return Observation{}, fmt.Errorf("%w: %w", ErrUpstreamFailure, err)
	}
	return obs, err
}

func (c *OpenWeatherClient) callAPI(ctx context.Context, city string) (Observation, error) {
	start := time.Now()

	req, err := c.buildRequest(ctx, city)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		return Observation{}, fmt.Errorf("%w: build request: %w", ErrUpstreamFailure, err)
	}

	if corrID := extractCorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		observability.WeatherAPIDuration.WithLabelValues("error").Observe(duration)

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			err = fmt.Errorf("%w: request timeout: %w", ErrUpstreamFailure, err)
		} else {
			err = fmt.Errorf("%w: http request failed: %w", ErrUpstreamFailure, err)
		}
		observability.WeatherAPIErrorsTotal.WithLabelValues(string(CategorizeError(err))).Inc()
		return Observation{}, err
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.WeatherAPICallsTotal.WithLabelValues(status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(status).Observe(duration)

	if err := c.handleErrorResponse(resp); err != nil {
		observability.WeatherAPIErrorsTotal.WithLabelValues(string(CategorizeError(err))).Inc()
		return Observation{}, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Observation{}, fmt.Errorf("%w: read response body: %w", ErrUpstreamFailure, err)
	}

	obs, err := parseObservation(body, city)
	if err != nil {
		observability.WeatherAPIErrorsTotal.WithLabelValues(string(ErrorCategoryParsing)).Inc()
		return Observation{}, err
	}
	return obs, nil
}

func (c *OpenWeatherClient) buildRequest(ctx context.Context, city string) (*http.Request, error) {
	u := *c.baseURL
	params := u.Query()
	params.Set("q", city)
	if c.rapidAPIHost == "" {
		params.Set("appid", c.apiKey)
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if c.rapidAPIHost != "" {
		req.Header.Set("x-rapidapi-host", c.rapidAPIHost)
		req.Header.Set("x-rapidapi-key", c.apiKey)
	}
	return req, nil
}

func (c *OpenWeatherClient) handleErrorResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusNotFound:
		return ErrCityNotFound
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %w", ErrUpstreamFailure, ErrInvalidAPIKey)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", ErrUpstreamFailure, ErrRateLimited)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}

	return nil
}

// parseObservation maps the provider payload. A 2xx body without main.temp or a weather
// entry is treated as an upstream failure, never as valid data.
func parseObservation(body []byte, city string) (Observation, error) {
	var apiResp openWeatherResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return Observation{}, fmt.Errorf("%w: parse response: %w", ErrUpstreamFailure, err)
	}
	if apiResp.Main == nil || apiResp.Main.Temp == nil || len(apiResp.Weather) == 0 {
		return Observation{}, fmt.Errorf("%w: parse response: incomplete weather payload", ErrUpstreamFailure)
	}

	description := apiResp.Weather[0].Description
	if description == "" {
		description = apiResp.Weather[0].Main
	}
	name := apiResp.Name
	if name == "" {
		name = city
	}

	return Observation{
		City:        name,
		Description: description,
		Temperature: *apiResp.Main.Temp,
		Humidity:    apiResp.Main.Humidity,
	}, nil
}

func extractCorrelationID(ctx context.Context) string {
	if corrIDVal := ctx.Value(observability.CorrelationIDKey); corrIDVal != nil {
		if corrID, ok := corrIDVal.(string); ok {
			return corrID
		}
	}
	return ""
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 404 {
		return "not_found"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}

// ValidateAPIKey probes the provider with a well-known city. Used by /health.
func (c *OpenWeatherClient) ValidateAPIKey(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := c.buildRequest(ctx, "London")
	if err != nil {
		return fmt.Errorf("build validation request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("validation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: API key is invalid or not activated", ErrInvalidAPIKey)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("validation failed: HTTP %d", resp.StatusCode)
	}

	return nil
}
