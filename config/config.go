package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is read once at startup and treated as immutable afterwards.
type Config struct {
	Port     string
	DBURL    string
	LogLevel string

	JWTSecret  string
	SessionTTL time.Duration

	// QueryTimeout bounds every call into the database.
	QueryTimeout time.Duration

	// OrderCancelWindow limits how long a buyer may cancel their own pending
	// order. Zero means no limit.
	OrderCancelWindow time.Duration

	CORSOrigin string
	AppURL     string

	MediaDir      string
	MediaBaseURL  string
	MediaMaxBytes int64

	StripeSecretKey     string
	StripeWebhookSecret string
	StripeCurrency      string

	GoogleClientID         string
	GoogleClientSecret     string
	GoogleRedirectURL      string
	GoogleFrontendRedirect string

	RateLimitPerMinute int
}

// Load reads .env (if present) and the process environment.
// All missing required variables are reported in a single error.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using system environment variables")
	}

	cfg := &Config{}
	var missing []string

	cfg.DBURL = os.Getenv("DB_URL")
	if cfg.DBURL == "" {
		missing = append(missing, "DB_URL")
	}
	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %v", missing)
	}

	cfg.Port = getEnv("PORT", "8080")
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.SessionTTL = getEnvDuration("SESSION_TTL", 24*time.Hour)
	cfg.QueryTimeout = getEnvDuration("QUERY_TIMEOUT", 5*time.Second)
	cfg.OrderCancelWindow = getEnvDuration("ORDER_CANCEL_WINDOW", 0)
	cfg.CORSOrigin = getEnv("CORS_ORIGIN", "http://localhost:3000")
	cfg.AppURL = getEnv("APP_URL", "http://localhost:3000")
	cfg.MediaDir = getEnv("MEDIA_DIR", "./media")
	cfg.MediaBaseURL = getEnv("MEDIA_BASE_URL", "/media")
	cfg.MediaMaxBytes = getEnvInt64("MEDIA_MAX_BYTES", 10<<20)
	cfg.StripeSecretKey = getEnv("STRIPE_SECRET_KEY", "")
	cfg.StripeWebhookSecret = getEnv("STRIPE_WEBHOOK_SECRET", "")
	cfg.StripeCurrency = getEnv("STRIPE_CURRENCY", "usd")
	cfg.GoogleClientID = getEnv("GOOGLE_CLIENT_ID", "")
	cfg.GoogleClientSecret = getEnv("GOOGLE_CLIENT_SECRET", "")
	cfg.GoogleRedirectURL = getEnv("GOOGLE_REDIRECT_URL", "")
	cfg.GoogleFrontendRedirect = getEnv("GOOGLE_FRONTEND_REDIRECT", "")
	cfg.RateLimitPerMinute = getEnvInt("RATE_LIMIT_PER_MINUTE", 30)

	return cfg, nil
}

// GoogleEnabled reports whether Google sign-in is fully configured.
func (c *Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != "" && c.GoogleRedirectURL != ""
}

// StripeEnabled reports whether card settlement through Stripe is configured.
func (c *Config) StripeEnabled() bool {
	return c.StripeSecretKey != "" && c.StripeWebhookSecret != ""
}

func getEnv(key string, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getEnvInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
