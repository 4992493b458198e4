package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	AppVersion         string
	Port               string
	RedisURL           string
	CORSAllowedOrigins []string
	BodyLimitBytes     int64
	SecurityHeaders    bool
	SecurityHSTS       bool

	PointsAPIBaseURL string
	PointsAPIToken   string
	PointsAPITimeout time.Duration

	PointsRate       float64
	ShippingFlat     float64
	FloorFinalTotal  bool
	CurrencyCode     string
	DisplayLocale    string
	CartTTL          time.Duration
	BalanceCacheTTL  time.Duration
	SubmitLatchTTL   time.Duration
	IdempotencyTTL   time.Duration
	RateLimitWindow  time.Duration
	RateLimitMax     int
	RateLimitBackend string

	CircuitPointsMinReq      int
	CircuitPointsFailureRate float64
	CircuitPointsOpenFor     time.Duration
	RetryBase                time.Duration
	RetryMaxAttempts         int
	RetryJitterPercent       int

	QueueConcurrency int
	QueueMaxRetry    int

	LogFormat          string
	LogLevel           string
	MetricsEnabled     bool
	MetricsNamespace   string
	MetricsBucketsMS   string
	TracingEnabled     bool
	TracingExporter    string
	OTLPEndpoint       string
	TracingSampleRatio float64
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		AppVersion:         valueOrDefault(k.String("APP_VERSION"), "dev"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		BodyLimitBytes:     int64(parseInt(k.String("HTTP_BODY_LIMIT_BYTES"), 64<<10)),
		SecurityHeaders:    parseBool(k.String("SECURITY_HEADERS"), true),
		SecurityHSTS:       parseBool(k.String("SECURITY_HSTS"), false),

		PointsAPIBaseURL: strings.TrimRight(strings.TrimSpace(k.String("POINTS_API_BASE_URL")), "/"),
		PointsAPIToken:   strings.TrimSpace(k.String("POINTS_API_TOKEN")),
		PointsAPITimeout: parseDuration(k.String("POINTS_API_TIMEOUT"), "5s"),

		PointsRate:       parseFloat(k.String("POINTS_RATE"), 1),
		ShippingFlat:     parseFloat(k.String("SHIPPING_FLAT"), 0),
		FloorFinalTotal:  parseBool(k.String("PRICING_FLOOR_FINAL_TOTAL"), true),
		CurrencyCode:     strings.ToUpper(valueOrDefault(k.String("CURRENCY_CODE"), "EUR")),
		DisplayLocale:    valueOrDefault(k.String("DISPLAY_LOCALE"), "es-ES"),
		CartTTL:          parseDuration(k.String("CART_TTL"), "168h"),
		BalanceCacheTTL:  parseDuration(k.String("BALANCE_CACHE_TTL"), "2m"),
		SubmitLatchTTL:   parseDuration(k.String("SUBMIT_LATCH_TTL"), "30s"),
		IdempotencyTTL:   parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		RateLimitWindow:  parseDuration(k.String("RATE_LIMIT_WINDOW"), "1m"),
		RateLimitMax:     parseInt(k.String("RATE_LIMIT_MAX"), 20),
		RateLimitBackend: strings.ToLower(valueOrDefault(k.String("RATE_LIMIT_BACKEND"), "sliding")),

		CircuitPointsMinReq:      parseInt(k.String("CIRCUIT_POINTS_MIN_REQUESTS"), 10),
		CircuitPointsFailureRate: parseFloat(k.String("CIRCUIT_POINTS_FAILURE_RATIO"), 0.5),
		CircuitPointsOpenFor:     parseDuration(k.String("CIRCUIT_POINTS_OPEN_FOR"), "30s"),
		RetryBase:                parseDuration(k.String("RETRY_BASE"), "200ms"),
		RetryMaxAttempts:         parseInt(k.String("RETRY_MAX_ATTEMPTS"), 3),
		RetryJitterPercent:       parseInt(k.String("RETRY_JITTER_PERCENT"), 20),

		QueueConcurrency: parseInt(k.String("QUEUE_CONCURRENCY"), 5),
		QueueMaxRetry:    parseInt(k.String("QUEUE_MAX_RETRY"), 5),

		LogFormat:          valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
		LogLevel:           valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
		MetricsEnabled:     parseBool(k.String("OBS_ENABLE_PROMETHEUS"), true),
		MetricsNamespace:   valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "storefront"),
		MetricsBucketsMS:   strings.TrimSpace(k.String("OBS_METRICS_BUCKETS_MS")),
		TracingEnabled:     parseBool(k.String("OBS_ENABLE_TRACING"), false),
		TracingExporter:    valueOrDefault(k.String("OBS_TRACING_EXPORTER"), "otlp"),
		OTLPEndpoint:       strings.TrimSpace(k.String("OBS_OTLP_ENDPOINT")),
		TracingSampleRatio: parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1),
	}

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.PointsAPIBaseURL == "" {
		return nil, errors.New("POINTS_API_BASE_URL is required")
	}
	if cfg.PointsRate <= 0 {
		return nil, errors.New("POINTS_RATE must be positive")
	}
	if cfg.ShippingFlat < 0 {
		return nil, errors.New("SHIPPING_FLAT must not be negative")
	}
	if cfg.RetryMaxAttempts < 1 {
		cfg.RetryMaxAttempts = 1
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "t", "true", "yes", "on":
		return true
	case "0", "f", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseInt(value string, fallback int) int {
	if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		return parsed
	}
	return fallback
}

func parseFloat(value string, fallback float64) float64 {
	if parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
		return parsed
	}
	return fallback
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
