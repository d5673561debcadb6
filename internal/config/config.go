// Package config loads process configuration from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/routeprofile/routeprofile/internal/database"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// ErrMissingAPIKey is returned when HERE_API_KEY is not set.
var ErrMissingAPIKey = errors.New("HERE_API_KEY is required")

// Config contains application configuration.
type Config struct {
	Port string
	Env  string

	HERE HEREConfig

	JWT JWTConfig

	Telemetry TelemetryConfig

	// StoreBackend is StoreMemory or StorePostgres.
	StoreBackend string
	Database     database.Config

	PubSub PubSubConfig

	RoutingCacheTTL time.Duration

	// RateLimit is the number of profile requests per minute and client.
	RateLimit int

	WorkerConcurrency int

	// ExportDir, when set, receives a GPX copy of every profile the worker builds.
	ExportDir string

	// RequireTLS rejects requests a load balancer forwarded as plain HTTP.
	RequireTLS bool
}

// HEREConfig configures the HERE client.
type HEREConfig struct {
	APIKey       string
	RoutingURL   string
	MatchingURL  string
	GeocodingURL string
	Timeout      time.Duration
}

// JWTConfig configures bearer token validation.
type JWTConfig struct {
	SigningKey string
	Issuer     string
	Audience   string
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	SampleRatio  float64
}

// PubSubConfig configures the profile job subscription.
type PubSubConfig struct {
	ProjectID    string
	Subscription string

	// MaxDeliveries is the delivery attempt after which failing jobs are
	// no longer redelivered.
	MaxDeliveries int
}

// IsProduction reports whether the service runs in production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Load reads configuration from the environment. Variables from the given
// .env files (default ".env") are loaded first without overriding variables
// that are already set; missing files are ignored.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", f, err)
		}
	}

	var errs []error

	cfg := &Config{
		Port:          getEnv("APP_PORT", "8080"),
		Env:           getEnv("APP_ENV", "development"),
		JWT: JWTConfig{
			SigningKey: os.Getenv("JWT_SIGNING_KEY"),
			Issuer:     getEnv("JWT_ISSUER", "routeprofile"),
			Audience:   getEnv("JWT_AUDIENCE", "routeprofile-api"),
		},
		HERE: HEREConfig{
			APIKey:       os.Getenv("HERE_API_KEY"),
			RoutingURL:   os.Getenv("HERE_ROUTING_URL"),
			MatchingURL:  os.Getenv("HERE_MATCHING_URL"),
			GeocodingURL: os.Getenv("HERE_GEOCODING_URL"),
			Timeout:      getDuration("HERE_TIMEOUT", 10*time.Second, &errs),
		},
		Telemetry: TelemetryConfig{
			Enabled:      os.Getenv("OTEL_ENABLED") == "true",
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			SampleRatio:  getFloat("OTEL_TRACES_SAMPLE_RATIO", 1, &errs),
		},
		StoreBackend: getEnv("STORE_BACKEND", StoreMemory),
		Database:     database.ConfigFromEnv(),
		PubSub: PubSubConfig{
			ProjectID:     os.Getenv("PUBSUB_PROJECT_ID"),
			Subscription:  getEnv("PUBSUB_SUBSCRIPTION", "profile-jobs"),
			MaxDeliveries: getInt("PUBSUB_MAX_DELIVERIES", 5, &errs),
		},
		RoutingCacheTTL:   getDuration("ROUTING_CACHE_TTL", 5*time.Minute, &errs),
		RateLimit:         getInt("RATE_LIMIT_PER_MINUTE", 60, &errs),
		WorkerConcurrency: getInt("WORKER_CONCURRENCY", 3, &errs),
		ExportDir:         os.Getenv("EXPORT_DIR"),
		RequireTLS:        os.Getenv("REQUIRE_TLS") == "true",
	}

	if cfg.HERE.APIKey == "" {
		errs = append(errs, ErrMissingAPIKey)
	}
	if cfg.StoreBackend != StoreMemory && cfg.StoreBackend != StorePostgres {
		errs = append(errs, fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", StoreMemory, StorePostgres, cfg.StoreBackend))
	}
	if cfg.IsProduction() && cfg.JWT.SigningKey == "" {
		errs = append(errs, errors.New("JWT_SIGNING_KEY is required in production"))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func getInt(key string, def int, errs *[]error) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func getFloat(key string, def float64, errs *[]error) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return f
}
