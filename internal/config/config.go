package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/currentweather-service/internal/traffic"
)

// Store backends accepted by STORE_BACKEND.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

const (
	defaultWeatherAPIURL = "https://api.openweathermap.org/data/2.5/weather"
	defaultSQLiteDSN     = "file:currentweather.db"
)

// Config holds service configuration. Values come from defaults, then config/{ENV_NAME}.yaml,
// then environment variables (a .env file is loaded into the environment first).
type Config struct {
	Env string `ignored:"true"`

	ServerPort string `envconfig:"PORT"`
	// Origin is the single CORS origin allowed to call the API.
	Origin string `envconfig:"ORIGIN"`

	WeatherAPIKey          string        `envconfig:"WEATHER_API_KEY"`
	WeatherAPIURL          string        `envconfig:"WEATHER_API_URL"`
	WeatherAPIRapidAPIHost string        `envconfig:"WEATHER_API_RAPIDAPI_HOST"`
	WeatherAPITimeout      time.Duration `envconfig:"WEATHER_API_TIMEOUT"`

	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT"`
	CityMaxLength  int           `envconfig:"CITY_MAX_LENGTH"`

	StoreBackend string `envconfig:"STORE_BACKEND"`
	StoreDSN     string `envconfig:"STORE_DSN"`
	RedisURL     string `envconfig:"REDIS_URL"`

	// MemcachedAddrs enables the memcached front when non-empty.
	MemcachedAddrs        string        `envconfig:"MEMCACHED_ADDRS"`
	MemcachedTimeout      time.Duration `envconfig:"MEMCACHED_TIMEOUT"`
	MemcachedMaxIdleConns int           `envconfig:"MEMCACHED_MAX_IDLE_CONNS"`
	MemcachedTTL          time.Duration `envconfig:"MEMCACHED_TTL"`

	CoalesceEnabled bool `envconfig:"COALESCE_ENABLED"`

	CircuitBreakerEnabled          bool          `envconfig:"CIRCUIT_BREAKER_ENABLED"`
	CircuitBreakerFailureThreshold int           `envconfig:"CIRCUIT_BREAKER_FAILURE_THRESHOLD"`
	CircuitBreakerSuccessThreshold int           `envconfig:"CIRCUIT_BREAKER_SUCCESS_THRESHOLD"`
	CircuitBreakerTimeout          time.Duration `envconfig:"CIRCUIT_BREAKER_TIMEOUT"`

	RateLimitRPS   int `envconfig:"RATE_LIMIT_RPS"`
	RateLimitBurst int `envconfig:"RATE_LIMIT_BURST"`

	HealthWindow         time.Duration `envconfig:"HEALTH_WINDOW"`
	OverloadThresholdPct int           `envconfig:"OVERLOAD_THRESHOLD_PCT"`
	DegradedErrorPct     int           `envconfig:"DEGRADED_ERROR_PCT"`
	HealthCheckAPIKey    bool          `envconfig:"HEALTH_CHECK_API_KEY"`

	ShutdownTimeout               time.Duration `envconfig:"SHUTDOWN_TIMEOUT"`
	ShutdownInFlightTimeout       time.Duration `envconfig:"SHUTDOWN_IN_FLIGHT_TIMEOUT"`
	ShutdownInFlightCheckInterval time.Duration `envconfig:"SHUTDOWN_IN_FLIGHT_CHECK_INTERVAL"`

	TrackedCities []string `envconfig:"TRACKED_CITIES"`

	// WarmCities are looked up at startup and, when WarmInterval > 0, again on every tick.
	WarmCities   []string      `envconfig:"WARM_CITIES"`
	WarmInterval time.Duration `envconfig:"WARM_INTERVAL"`
}

type fileConfig struct {
	Server struct {
		Port   string `yaml:"port"`
		Origin string `yaml:"origin"`
	} `yaml:"server"`

	WeatherAPI struct {
		URL          string `yaml:"url"`
		RapidAPIHost string `yaml:"rapidapi_host"`
		Timeout      string `yaml:"timeout"`
	} `yaml:"weather_api"`

	Request struct {
		Timeout       string `yaml:"timeout"`
		CityMaxLength int    `yaml:"city_max_length"`
	} `yaml:"request"`

	Store struct {
		Backend   string `yaml:"backend"`
		DSN       string `yaml:"dsn"`
		RedisURL  string `yaml:"redis_url"`
		Coalesce  *bool  `yaml:"coalesce"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
			TTL          string `yaml:"ttl"`
		} `yaml:"memcached"`
	} `yaml:"store"`

	Reliability struct {
		RateLimitRPS   int `yaml:"rate_limit_rps"`
		RateLimitBurst int `yaml:"rate_limit_burst"`
		CircuitBreaker struct {
			Enabled          *bool  `yaml:"enabled"`
			FailureThreshold int    `yaml:"failure_threshold"`
			SuccessThreshold int    `yaml:"success_threshold"`
			Timeout          string `yaml:"timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"reliability"`

	Health struct {
		Window               string `yaml:"window"`
		OverloadThresholdPct int    `yaml:"overload_threshold_pct"`
		DegradedErrorPct     int    `yaml:"degraded_error_pct"`
		CheckAPIKey          *bool  `yaml:"check_api_key"`
	} `yaml:"health"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`

	Metrics struct {
		TrackedCities []string `yaml:"tracked_cities"`
	} `yaml:"metrics"`

	Warming struct {
		Cities   []string `yaml:"cities"`
		Interval string   `yaml:"interval"`
	} `yaml:"warming"`
}

// Load reads configuration relative to the working directory. Call from project root.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	return LoadFrom(cwd)
}

// LoadFrom reads dir/.env (if present) into the environment, then config/{ENV_NAME}.yaml
// under dir (ENV_NAME defaults to dev; a missing file leaves defaults), then applies
// environment overrides and validates the result.
func LoadFrom(dir string) (*Config, error) {
	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := defaults()
	cfg.Env = os.Getenv("ENV_NAME")
	if cfg.Env == "" {
		cfg.Env = "dev"
	}

	configPath := filepath.Join(dir, "config", cfg.Env+".yaml")
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		var fc fileConfig
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", configPath, err)
		}
		applyFile(cfg, &fc)
	case errors.Is(err, fs.ErrNotExist):
		// defaults and environment only
	default:
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		ServerPort:                     "8080",
		WeatherAPIURL:                  defaultWeatherAPIURL,
		WeatherAPITimeout:              10 * time.Second,
		RequestTimeout:                 15 * time.Second,
		CityMaxLength:                  100,
		StoreBackend:                   StoreSQLite,
		MemcachedTimeout:               500 * time.Millisecond,
		MemcachedMaxIdleConns:          2,
		MemcachedTTL:                   time.Hour,
		CircuitBreakerFailureThreshold: 5,
		CircuitBreakerSuccessThreshold: 1,
		CircuitBreakerTimeout:          30 * time.Second,
		RateLimitRPS:                   100,
		RateLimitBurst:                 250,
		HealthWindow:                   time.Minute,
		OverloadThresholdPct:           80,
		DegradedErrorPct:               5,
		ShutdownTimeout:                30 * time.Second,
		ShutdownInFlightTimeout:        10 * time.Second,
		ShutdownInFlightCheckInterval:  100 * time.Millisecond,
	}
}

// applyFile copies the values set in fc over cfg. Zero values in the file keep the default.
func applyFile(cfg *Config, fc *fileConfig) {
	setString(&cfg.ServerPort, fc.Server.Port)
	setString(&cfg.Origin, fc.Server.Origin)

	setString(&cfg.WeatherAPIURL, fc.WeatherAPI.URL)
	setString(&cfg.WeatherAPIRapidAPIHost, fc.WeatherAPI.RapidAPIHost)
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, cfg.WeatherAPITimeout)

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, cfg.RequestTimeout)
	setInt(&cfg.CityMaxLength, fc.Request.CityMaxLength)

	setString(&cfg.StoreBackend, strings.ToLower(fc.Store.Backend))
	setString(&cfg.StoreDSN, fc.Store.DSN)
	setString(&cfg.RedisURL, fc.Store.RedisURL)
	if fc.Store.Coalesce != nil {
		cfg.CoalesceEnabled = *fc.Store.Coalesce
	}
	setString(&cfg.MemcachedAddrs, fc.Store.Memcached.Addrs)
	cfg.MemcachedTimeout = parseDuration(fc.Store.Memcached.Timeout, cfg.MemcachedTimeout)
	setInt(&cfg.MemcachedMaxIdleConns, fc.Store.Memcached.MaxIdleConns)
	cfg.MemcachedTTL = parseDuration(fc.Store.Memcached.TTL, cfg.MemcachedTTL)

	setInt(&cfg.RateLimitRPS, fc.Reliability.RateLimitRPS)
	setInt(&cfg.RateLimitBurst, fc.Reliability.RateLimitBurst)
	cb := fc.Reliability.CircuitBreaker
	if cb.Enabled != nil {
		cfg.CircuitBreakerEnabled = *cb.Enabled
	}
	setInt(&cfg.CircuitBreakerFailureThreshold, cb.FailureThreshold)
	setInt(&cfg.CircuitBreakerSuccessThreshold, cb.SuccessThreshold)
	cfg.CircuitBreakerTimeout = parseDuration(cb.Timeout, cfg.CircuitBreakerTimeout)

	cfg.HealthWindow = parseDuration(fc.Health.Window, cfg.HealthWindow)
	setInt(&cfg.OverloadThresholdPct, fc.Health.OverloadThresholdPct)
	setInt(&cfg.DegradedErrorPct, fc.Health.DegradedErrorPct)
	if fc.Health.CheckAPIKey != nil {
		cfg.HealthCheckAPIKey = *fc.Health.CheckAPIKey
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, cfg.ShutdownTimeout)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, cfg.ShutdownInFlightTimeout)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, cfg.ShutdownInFlightCheckInterval)

	if len(fc.Metrics.TrackedCities) > 0 {
		cfg.TrackedCities = fc.Metrics.TrackedCities
	}
	if len(fc.Warming.Cities) > 0 {
		cfg.WarmCities = fc.Warming.Cities
	}
	cfg.WarmInterval = parseDuration(fc.Warming.Interval, cfg.WarmInterval)
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Zero is returned as-is: for the weather API timeout it means "transport default".
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation. It normalizes the store backend, fills the sqlite
// DSN default and raises RequestTimeout above WeatherAPITimeout when needed.
func validate(cfg *Config) error {
	if strings.TrimSpace(cfg.WeatherAPIKey) == "" {
		return fmt.Errorf("WEATHER_API_KEY required")
	}
	u, err := url.Parse(cfg.WeatherAPIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("WEATHER_API_URL must be an absolute URL, got %q", cfg.WeatherAPIURL)
	}
	if cfg.WeatherAPITimeout < 0 {
		return fmt.Errorf("WEATHER_API_TIMEOUT must not be negative")
	}
	if cfg.WeatherAPITimeout > 0 && cfg.RequestTimeout <= cfg.WeatherAPITimeout {
		cfg.RequestTimeout = cfg.WeatherAPITimeout + time.Second
	}

	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))
	switch cfg.StoreBackend {
	case StoreMemory:
	case StoreSQLite:
		if cfg.StoreDSN == "" {
			cfg.StoreDSN = defaultSQLiteDSN
		}
	case StorePostgres:
		if cfg.StoreDSN == "" {
			return fmt.Errorf("STORE_DSN required for store backend %q", StorePostgres)
		}
	case StoreRedis:
		if cfg.RedisURL == "" {
			return fmt.Errorf("REDIS_URL required for store backend %q", StoreRedis)
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be one of memory, sqlite, postgres, redis; got %q", cfg.StoreBackend)
	}

	if cfg.CircuitBreakerEnabled && (cfg.CircuitBreakerFailureThreshold <= 0 || cfg.CircuitBreakerSuccessThreshold <= 0) {
		return fmt.Errorf("circuit breaker thresholds must be positive")
	}
	if cfg.RateLimitRPS < 0 || cfg.RateLimitBurst < 0 {
		return fmt.Errorf("rate limit values must not be negative")
	}
	if cfg.OverloadThresholdPct < 0 || cfg.DegradedErrorPct < 0 || cfg.DegradedErrorPct > 100 {
		return fmt.Errorf("health thresholds out of range")
	}
	if cfg.HealthWindow > traffic.DefaultRetention {
		return fmt.Errorf("HEALTH_WINDOW must not exceed %s, got %s", traffic.DefaultRetention, cfg.HealthWindow)
	}
	if cfg.WarmInterval < 0 {
		return fmt.Errorf("WARM_INTERVAL must not be negative")
	}
	return nil
}
