package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Supported identity providers for AUTH_PROVIDER.
const (
	AuthProviderOIDC  = "oidc"
	AuthProviderClerk = "clerk"
)

// dotEnvFiles are loaded in order; values already in the environment always win,
// so .env.local overrides .env.
var dotEnvFiles = []string{".env.local", ".env"}

// Config holds application configuration
type Config struct {
	DatabaseURL string
	ServerPort  string
	BaseURL     string
	FrontendURL string
	EnableHSTS  bool

	AuthProvider          string
	OIDCProvider          string
	ClerkSecretKey        string
	IdentityWebhookSecret string
	BillingWebhookSecret  string
	AdminAPIToken         string

	SignupURL  string
	PricingURL string

	RedisURL               string
	ViewCacheTTL           time.Duration
	DefaultRateLimit       string
	SettingsReloadInterval time.Duration

	RabbitMQURL      string
	RabbitMQPrefetch int

	WorkerDebugMode bool
	ServerDebugMode bool
	LogFile         string

	OTELEnabled     bool
	OTELEndpoint    string
	OTELInsecure    bool
	OTELSampleRatio float64
}

// Load loads configuration from environment variables, after reading any .env files
// present in the working directory.
func Load() (*Config, error) {
	for _, f := range dotEnvFiles {
		_ = godotenv.Load(f)
	}

	cfg := &Config{
		DatabaseURL: getEnv("DATABASE_URL", ""),
		ServerPort:  getEnv("SERVER_PORT", "8080"),
		BaseURL:     getEnv("BASE_URL", "http://localhost:8080"),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:3000"),
		EnableHSTS:  getEnvBool("ENABLE_HSTS", false),

		AuthProvider:          strings.ToLower(getEnv("AUTH_PROVIDER", AuthProviderOIDC)),
		OIDCProvider:          getEnv("OIDC_PROVIDER", "cognito"),
		ClerkSecretKey:        getEnv("CLERK_SECRET_KEY", ""),
		IdentityWebhookSecret: getEnv("IDENTITY_WEBHOOK_SECRET", ""),
		BillingWebhookSecret:  getEnv("BILLING_WEBHOOK_SECRET", ""),
		AdminAPIToken:         getEnv("ADMIN_API_TOKEN", ""),

		SignupURL:  getEnv("SIGNUP_URL", "/signup"),
		PricingURL: getEnv("PRICING_URL", "/pricing"),

		RedisURL:               getEnv("REDIS_URL", "redis://localhost:6379/0"),
		ViewCacheTTL:           getEnvDuration("VIEW_CACHE_TTL", 5*time.Minute),
		DefaultRateLimit:       getEnv("RATE_LIMIT", "5-S"),
		SettingsReloadInterval: getEnvDuration("SETTINGS_RELOAD_INTERVAL", 30*time.Second),

		RabbitMQURL:      getEnv("RABBITMQ_URL", ""),
		RabbitMQPrefetch: getEnvInt("RABBITMQ_PREFETCH", 1),

		WorkerDebugMode: getEnvBool("WORKER_DEBUG_MODE", false),
		ServerDebugMode: getEnvBool("SERVER_DEBUG_MODE", false),
		LogFile:         getEnv("LOG_FILE", ""),

		OTELEnabled:     getEnvBool("OTEL_ENABLED", false),
		OTELEndpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure:    getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		OTELSampleRatio: getEnvFloat("OTEL_SAMPLE_RATIO", 1),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.RabbitMQURL == "" {
		return nil, fmt.Errorf("RABBITMQ_URL is required for invalidation fan-out and billing sync jobs")
	}

	switch cfg.AuthProvider {
	case AuthProviderOIDC:
	case AuthProviderClerk:
		if cfg.ClerkSecretKey == "" {
			return nil, fmt.Errorf("CLERK_SECRET_KEY is required when AUTH_PROVIDER=clerk")
		}
	default:
		return nil, fmt.Errorf("unsupported AUTH_PROVIDER %q (want %s or %s)", cfg.AuthProvider, AuthProviderOIDC, AuthProviderClerk)
	}

	return cfg, nil
}

// LoadDatabaseURL reads only DATABASE_URL, for tools that need nothing else.
func LoadDatabaseURL() (string, error) {
	for _, f := range dotEnvFiles {
		_ = godotenv.Load(f)
	}
	url := getEnv("DATABASE_URL", "")
	if url == "" {
		return "", fmt.Errorf("DATABASE_URL is required")
	}
	return url, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
