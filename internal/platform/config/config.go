package config

import (
	"os"
	"strconv"
	"time"
)

// Yivi holds everything needed to talk to the upstream proof server.
type Yivi struct {
	BaseURL       string
	BearerToken   string
	AgeAttribute  string
	StartTimeout  time.Duration
	ResultTimeout time.Duration
}

// Server captures process level configuration for the mediator.
type Server struct {
	Addr          string
	Environment   string
	DatabaseURL   string
	RedisURL      string
	JWTSigningKey string

	Yivi             Yivi
	SessionRetention time.Duration
	ReapInterval     time.Duration
}

const (
	defaultSessionRetention = 24 * time.Hour
	defaultReapInterval     = 24 * time.Hour
	defaultStartTimeout     = 10 * time.Second
	defaultResultTimeout    = 5 * time.Second
)

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("AGEGATE_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	environment := os.Getenv("AGEGATE_ENV")
	if environment == "" {
		environment = "development"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	attribute := os.Getenv("AGE_ATTRIBUTE_ID")
	if attribute == "" {
		attribute = "pbdf.gemeente.personalData.over18"
	}

	return Server{
		Addr:          addr,
		Environment:   environment,
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisURL:      os.Getenv("REDIS_URL"),
		JWTSigningKey: jwtSigningKey,
		Yivi: Yivi{
			BaseURL:       os.Getenv("YIVI_BASE_URL"),
			BearerToken:   os.Getenv("YIVI_BEARER_TOKEN"),
			AgeAttribute:  attribute,
			StartTimeout:  durationFromEnv("YIVI_START_TIMEOUT_MS", defaultStartTimeout),
			ResultTimeout: durationFromEnv("YIVI_RESULT_TIMEOUT_MS", defaultResultTimeout),
		},
		SessionRetention: secondsFromEnv("SESSION_RETENTION_SECONDS", defaultSessionRetention),
		ReapInterval:     secondsFromEnv("REAP_INTERVAL_SECONDS", defaultReapInterval),
	}
}

func durationFromEnv(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	ms, err := strconv.Atoi(raw)
	if err != nil || ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

func secondsFromEnv(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		return fallback
	}
	return time.Duration(secs) * time.Second
}
