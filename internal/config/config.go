package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds everything the SDK and CLI read from the environment.
// All variables use the SESSIONKIT_ prefix.
type Config struct {
	Environment string

	// API client
	APIBaseURL     string
	RequestTimeout time.Duration

	// Durable credential storage (primary channel)
	CredentialsDriver string // "sqlite" or "postgres"
	CredentialsDSN    string

	// Long-retention refresh-token channel (secondary). Empty addr disables it.
	RedisAddr       string
	RedisPassword   string
	RefreshTokenTTL time.Duration

	// Optional at-rest encryption of stored credential values.
	EncryptionSecret string

	// Readiness checks
	SkipAudioTest         bool
	AudioSilenceThreshold float64
	AudioSampleInterval   time.Duration
	AudioTestWindow       time.Duration
	NetworkProbeURL       string
	NetworkFloorMbps      float64

	// Observability
	OTELServiceName           string
	OTELEnvironment           string
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPInsecure  bool
	OTELMetricsEnabled        bool
	OTELTracesEnabled         bool
	OTELLogsEnabled           bool
	OTELMetricsExportInterval time.Duration
}

func Load(ctx context.Context) (*Config, error) {
	cfg, err := load()
	recordConfigLoad(ctx, cfg, err)
	return cfg, err
}

func load() (*Config, error) {
	cfg := &Config{
		Environment:               getEnv("SESSIONKIT_ENV", "development"),
		APIBaseURL:                getEnv("SESSIONKIT_API_URL", "http://localhost:8081"),
		CredentialsDriver:         getEnv("SESSIONKIT_CREDENTIALS_DRIVER", "sqlite"),
		CredentialsDSN:            getEnv("SESSIONKIT_CREDENTIALS_DSN", defaultCredentialsPath()),
		RedisAddr:                 getEnv("SESSIONKIT_REDIS_ADDR", ""),
		RedisPassword:             getEnv("SESSIONKIT_REDIS_PASSWORD", ""),
		EncryptionSecret:          getEnv("SESSIONKIT_ENCRYPTION_SECRET", ""),
		NetworkProbeURL:           getEnv("SESSIONKIT_NETWORK_PROBE_URL", ""),
		OTELServiceName:           getEnv("SESSIONKIT_OTEL_SERVICE_NAME", "sessionkit"),
		OTELEnvironment:           getEnv("SESSIONKIT_OTEL_ENVIRONMENT", "development"),
		OTELExporterOTLPEndpoint:  getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTELExporterOTLPInsecure:  getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		OTELMetricsEnabled:        getBool("SESSIONKIT_OTEL_METRICS_ENABLED", false),
		OTELTracesEnabled:         getBool("SESSIONKIT_OTEL_TRACES_ENABLED", false),
		OTELLogsEnabled:           getBool("SESSIONKIT_OTEL_LOGS_ENABLED", false),
		SkipAudioTest:             getBool("SESSIONKIT_SKIP_AUDIO_TEST", false),
	}

	var err error
	if cfg.RequestTimeout, err = getDuration("SESSIONKIT_API_TIMEOUT", 30*time.Second); err != nil {
		return cfg, err
	}
	if cfg.RefreshTokenTTL, err = getDuration("SESSIONKIT_REFRESH_TOKEN_TTL", 30*24*time.Hour); err != nil {
		return cfg, err
	}
	if cfg.AudioSampleInterval, err = getDuration("SESSIONKIT_AUDIO_SAMPLE_INTERVAL", 100*time.Millisecond); err != nil {
		return cfg, err
	}
	if cfg.AudioTestWindow, err = getDuration("SESSIONKIT_AUDIO_TEST_WINDOW", 3*time.Second); err != nil {
		return cfg, err
	}
	if cfg.AudioSilenceThreshold, err = getFloat("SESSIONKIT_AUDIO_SILENCE_THRESHOLD", 5); err != nil {
		return cfg, err
	}
	if cfg.NetworkFloorMbps, err = getFloat("SESSIONKIT_NETWORK_FLOOR_MBPS", 1); err != nil {
		return cfg, err
	}
	if cfg.OTELMetricsExportInterval, err = getDuration("SESSIONKIT_OTEL_METRICS_EXPORT_INTERVAL", 15*time.Second); err != nil {
		return cfg, err
	}

	if cfg.NetworkProbeURL == "" {
		cfg.NetworkProbeURL = strings.TrimRight(cfg.APIBaseURL, "/") + "/health/live"
	}
	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("SESSIONKIT_API_URL must not be empty")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("SESSIONKIT_API_TIMEOUT must be positive")
	}
	switch c.CredentialsDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported credentials driver %q", c.CredentialsDriver)
	}
	if c.AudioSilenceThreshold < 0 || c.AudioSilenceThreshold > 100 {
		return fmt.Errorf("SESSIONKIT_AUDIO_SILENCE_THRESHOLD must be within [0,100]")
	}
	if c.AudioSampleInterval <= 0 || c.AudioTestWindow <= 0 {
		return fmt.Errorf("audio sampling interval and window must be positive")
	}
	if c.EncryptionSecret != "" && len(c.EncryptionSecret) < 16 {
		return fmt.Errorf("SESSIONKIT_ENCRYPTION_SECRET must be at least 16 bytes")
	}
	return nil
}

func (c *Config) IsProduction() bool { return c.Environment == "production" }

func defaultCredentialsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "sessionkit-credentials.db"
	}
	return filepath.Join(home, ".sessionkit", "credentials.db")
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return b
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return f, nil
}
