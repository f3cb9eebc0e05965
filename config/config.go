// Package config handles loading and managing application configuration.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment names accepted in APP_ENV.
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// DefaultGatewayBaseURL is the Asaas production API.
const DefaultGatewayBaseURL = "https://api.asaas.com/v3"

// Config holds all configuration for the application.
type Config struct {
	App          AppConfig
	Server       ServerConfig
	Gateway      GatewayConfig
	Commerce     CommerceConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Subscription SubscriptionConfig
	Telemetry    TelemetryConfig
}

// AppConfig holds deployment-wide settings.
type AppConfig struct {
	Env string
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port    string
	GinMode string // "debug", "release", or "test"
	// ServiceAPIKey is the bearer token internal callers present on /api/v1.
	ServiceAPIKey string
	// AllowedOrigins lists browser origins allowed by CORS; "*" allows any.
	AllowedOrigins []string
}

// GatewayConfig holds payment provider configuration.
type GatewayConfig struct {
	Provider        string
	APIKey          string
	BaseURL         string
	WebhookToken    string
	NotificationURL string
	Timeout         time.Duration
	MaxConcurrency  int
}

// CommerceConfig holds the catalog/commerce/notification collaborator API.
type CommerceConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// DatabaseConfig holds Postgres settings. An empty URL selects in-memory storage.
type DatabaseConfig struct {
	URL string
}

// RedisConfig holds the webhook idempotency cache settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	DedupTTL time.Duration
}

// SubscriptionConfig holds lifecycle settings.
type SubscriptionConfig struct {
	SweepInterval time.Duration
	FreePlanSlug  string
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	OTLPEndpoint string
	ServiceName  string
}

// Load reads an optional .env file, then environment variables.
func Load() *Config {
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded environment from .env")
	}

	return &Config{
		App: AppConfig{
			Env: strings.ToLower(getEnv("APP_ENV", EnvDevelopment)),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			GinMode:        getEnv("GIN_MODE", "debug"),
			ServiceAPIKey:  getEnv("SERVICE_API_KEY", ""),
			AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Gateway: GatewayConfig{
			Provider:        strings.ToLower(getEnv("GATEWAY_PROVIDER", "asaas")),
			APIKey:          getEnv("GATEWAY_API_KEY", ""),
			BaseURL:         getEnv("GATEWAY_BASE_URL", DefaultGatewayBaseURL),
			WebhookToken:    getEnv("GATEWAY_WEBHOOK_TOKEN", ""),
			NotificationURL: getEnv("GATEWAY_NOTIFICATION_URL", ""),
			Timeout:         getEnvDuration("GATEWAY_TIMEOUT", 10*time.Second),
			MaxConcurrency:  getEnvInt("GATEWAY_MAX_CONCURRENCY", 8),
		},
		Commerce: CommerceConfig{
			BaseURL: getEnv("COMMERCE_BASE_URL", "http://localhost:3000"),
			APIKey:  getEnv("COMMERCE_API_KEY", ""),
			Timeout: getEnvDuration("COMMERCE_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			DedupTTL: getEnvDuration("WEBHOOK_DEDUP_TTL", 72*time.Hour),
		},
		Subscription: SubscriptionConfig{
			SweepInterval: getEnvDuration("SWEEP_INTERVAL", time.Hour),
			FreePlanSlug:  getEnv("FREE_PLAN_SLUG", "gratuito"),
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			ServiceName:  getEnv("SERVICE_NAME", "vendeu-payments"),
		},
	}
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c.App.Env == EnvProduction
}

// Validate checks that required configuration values are set.
// Missing payment credentials in production halt startup.
func (c *Config) Validate() error {
	var errs []error

	switch c.App.Env {
	case EnvDevelopment, EnvStaging, EnvProduction:
	default:
		errs = append(errs, fmt.Errorf("APP_ENV %q is not one of development, staging, production", c.App.Env))
	}
	switch c.Gateway.Provider {
	case "asaas", "mercadopago":
	default:
		errs = append(errs, fmt.Errorf("GATEWAY_PROVIDER %q is not supported", c.Gateway.Provider))
	}
	if c.Gateway.BaseURL == "" {
		errs = append(errs, errors.New("GATEWAY_BASE_URL is required"))
	}
	if c.Gateway.Timeout <= 0 {
		errs = append(errs, errors.New("GATEWAY_TIMEOUT must be positive"))
	}
	if c.Gateway.MaxConcurrency <= 0 {
		errs = append(errs, errors.New("GATEWAY_MAX_CONCURRENCY must be positive"))
	}
	if c.Commerce.Timeout <= 0 {
		errs = append(errs, errors.New("COMMERCE_TIMEOUT must be positive"))
	}
	if c.Subscription.SweepInterval <= 0 {
		errs = append(errs, errors.New("SWEEP_INTERVAL must be positive"))
	}

	if c.IsProduction() {
		if c.Gateway.APIKey == "" {
			errs = append(errs, errors.New("GATEWAY_API_KEY is required in production"))
		}
		if c.Gateway.WebhookToken == "" {
			errs = append(errs, errors.New("GATEWAY_WEBHOOK_TOKEN is required in production"))
		}
		if c.Database.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required in production"))
		}
		if c.Server.ServiceAPIKey == "" {
			errs = append(errs, errors.New("SERVICE_API_KEY is required in production"))
		}
	}

	return errors.Join(errs...)
}

// Warn logs the insecure settings tolerated outside production.
func (c *Config) Warn() {
	if c.IsProduction() {
		return
	}
	if c.Gateway.APIKey == "" {
		log.Printf("WARNING: GATEWAY_API_KEY not set - gateway runs in MOCK mode (%s), no real charges are created", c.App.Env)
	}
	if c.Gateway.WebhookToken == "" {
		log.Printf("WARNING: GATEWAY_WEBHOOK_TOKEN not set - webhooks are accepted WITHOUT authentication (%s)", c.App.Env)
	}
	if c.Server.ServiceAPIKey == "" {
		log.Printf("WARNING: SERVICE_API_KEY not set - internal API accepts any bearer token (%s)", c.App.Env)
	}
	if c.Database.URL == "" {
		log.Printf("WARNING: DATABASE_URL not set - charges and subscriptions are kept in memory (%s)", c.App.Env)
	}
}

// getEnv retrieves an environment variable with a fallback default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvList retrieves a comma-separated environment variable with a fallback.
func getEnvList(key string, defaultValue []string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

// getEnvInt retrieves an environment variable as an integer with a fallback.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration retrieves an environment variable as a duration with a fallback.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
