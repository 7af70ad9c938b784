package config

import (
	"os"
	"strconv"
	"time"
)

// Defaults for policy constants. These are fixed regulatory commitments, not
// tunables; the environment overrides exist for tests and staging only.
var (
	GrievanceSLA       = 7 * 24 * time.Hour
	ErasureGracePeriod = 30 * 24 * time.Hour
	TokenTTL           = 168 * time.Hour
)

// Server captures process level configuration.
type Server struct {
	Addr        string
	Environment string
	AppName     string

	DatabaseURL string

	JWTSigningKey string
	TokenTTL      time.Duration

	SIEMWebhookURL string
	SIEMAPIKey     string
	SIEMTimeout    time.Duration

	GrievanceSLA       time.Duration
	ErasureGracePeriod time.Duration

	RetentionSweepInterval time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	cfg := Server{
		Addr:                   envOr("CUSTODIA_ADDR", ":8080"),
		Environment:            envOr("CUSTODIA_ENV", "development"),
		AppName:                envOr("CUSTODIA_APP_NAME", "custodia"),
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		JWTSigningKey:          os.Getenv("JWT_SIGNING_KEY"),
		TokenTTL:               TokenTTL,
		SIEMWebhookURL:         os.Getenv("SIEM_WEBHOOK_URL"),
		SIEMAPIKey:             os.Getenv("SIEM_API_KEY"),
		SIEMTimeout:            10 * time.Second,
		GrievanceSLA:           GrievanceSLA,
		ErasureGracePeriod:     ErasureGracePeriod,
		RetentionSweepInterval: 1 * time.Hour,
	}

	if cfg.JWTSigningKey == "" {
		// Use a default for development - should be overridden in production
		cfg.JWTSigningKey = "dev-secret-key-change-in-production"
	}
	if d, ok := envDuration("TOKEN_TTL"); ok {
		cfg.TokenTTL = d
	}
	if d, ok := envDuration("SIEM_TIMEOUT"); ok {
		cfg.SIEMTimeout = d
	}
	if d, ok := envDuration("GRIEVANCE_SLA"); ok {
		cfg.GrievanceSLA = d
	}
	if d, ok := envDuration("ERASURE_GRACE_PERIOD"); ok {
		cfg.ErasureGracePeriod = d
	}
	if d, ok := envDuration("RETENTION_SWEEP_INTERVAL"); ok {
		cfg.RetentionSweepInterval = d
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string) (time.Duration, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d, true
	}
	// Accept bare hour counts for operator convenience.
	if h, err := strconv.Atoi(v); err == nil && h > 0 {
		return time.Duration(h) * time.Hour, true
	}
	return 0, false
}
