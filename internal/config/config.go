package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is loaded from the environment once at startup. Session timing
// knobs (TTL, late window) drive the core attendance semantics; the
// rest is transport and observability plumbing.
type Config struct {
	AppEnv   string
	HTTPAddr string

	DatabaseURL    string
	SQLitePath     string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisEnabled   bool
	DeadTokenTTL   time.Duration
	TenantTimezone string

	JWTIssuer       string
	JWTAudience     string
	JWTAccessSecret string

	SessionTTL        time.Duration
	SessionLateWindow time.Duration

	APIRateLimitRPM    int
	RedeemRateLimitRPM int
	IssueRateLimitRPM  int
	CORSOrigins        []string

	OTELServiceName           string
	OTELEnvironment           string
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPInsecure  bool
	OTELMetricsEnabled        bool
	OTELTracingEnabled        bool
	OTELLogsEnabled           bool
	OTELMetricsExportInterval time.Duration

	ShutdownTimeout              time.Duration
	ShutdownHTTPDrainTimeout     time.Duration
	ShutdownObservabilityTimeout time.Duration
}

func Load(ctx context.Context) (*Config, error) {
	cfg, err := load()
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	profile := os.Getenv("APP_ENV")
	if cfg != nil {
		profile = cfg.AppEnv
	}
	recordConfigValidationEvent(ctx, profile, outcome, classifyConfigLoadError(err))
	return cfg, err
}

func load() (*Config, error) {
	cfg := &Config{
		AppEnv:          getEnv("APP_ENV", "dev"),
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		SQLitePath:      getEnv("SQLITE_PATH", "attendance.db"),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		TenantTimezone:  getEnv("TENANT_TIMEZONE", "UTC"),
		JWTIssuer:       getEnv("JWT_ISSUER", "qr-attendance-session-service"),
		JWTAudience:     getEnv("JWT_AUDIENCE", "qr-attendance"),
		JWTAccessSecret: os.Getenv("JWT_ACCESS_SECRET"),

		OTELServiceName:          getEnv("OTEL_SERVICE_NAME", "qr-attendance-session-service"),
		OTELEnvironment:          getEnv("OTEL_ENVIRONMENT", "dev"),
		OTELExporterOTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
	}

	var err error
	if cfg.RedisEnabled, err = getBool("REDIS_ENABLED", true); err != nil {
		return nil, err
	}
	if cfg.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.DeadTokenTTL, err = getDuration("DEAD_TOKEN_CACHE_TTL", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.SessionTTL, err = getDuration("SESSION_TTL", 300*time.Second); err != nil {
		return nil, err
	}
	if cfg.SessionLateWindow, err = getDuration("SESSION_LATE_WINDOW", 60*time.Second); err != nil {
		return nil, err
	}
	if cfg.APIRateLimitRPM, err = getInt("API_RATE_LIMIT_RPM", 600); err != nil {
		return nil, err
	}
	if cfg.RedeemRateLimitRPM, err = getInt("REDEEM_RATE_LIMIT_RPM", 120); err != nil {
		return nil, err
	}
	if cfg.IssueRateLimitRPM, err = getInt("ISSUE_RATE_LIMIT_RPM", 60); err != nil {
		return nil, err
	}
	if cfg.OTELMetricsEnabled, err = getBool("OTEL_METRICS_ENABLED", false); err != nil {
		return nil, err
	}
	if cfg.OTELTracingEnabled, err = getBool("OTEL_TRACING_ENABLED", false); err != nil {
		return nil, err
	}
	if cfg.OTELLogsEnabled, err = getBool("OTEL_LOGS_ENABLED", false); err != nil {
		return nil, err
	}
	if cfg.OTELExporterOTLPInsecure, err = getBool("OTEL_EXPORTER_OTLP_INSECURE", true); err != nil {
		return nil, err
	}
	if cfg.OTELMetricsExportInterval, err = getDuration("OTEL_METRICS_EXPORT_INTERVAL", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = getDuration("SHUTDOWN_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.ShutdownHTTPDrainTimeout, err = getDuration("SHUTDOWN_HTTP_DRAIN_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.ShutdownObservabilityTimeout, err = getDuration("SHUTDOWN_OBSERVABILITY_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}

	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, o)
			}
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWTAccessSecret == "" {
		return fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if len(c.JWTAccessSecret) < 32 {
		return fmt.Errorf("JWT_ACCESS_SECRET must be at least 32 bytes")
	}
	if c.AppEnv == "prod" && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required in prod")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}
	if c.SessionLateWindow <= 0 || c.SessionLateWindow > c.SessionTTL {
		return fmt.Errorf("SESSION_LATE_WINDOW must be positive and not exceed SESSION_TTL")
	}
	if _, err := time.LoadLocation(c.TenantTimezone); err != nil {
		return fmt.Errorf("TENANT_TIMEZONE %q is invalid: %w", c.TenantTimezone, err)
	}
	return nil
}

// Location resolves the tenant timezone; validate() already guarantees
// it parses.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TenantTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func getBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return b, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}
