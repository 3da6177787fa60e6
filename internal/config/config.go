// Package config provides configuration loading and validation for the API
// server and the reconciler. It uses koanf to merge environment variables
// with optional file overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration values for the service.
type Config struct {
	// Server settings
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// Database
	DatabaseURL string `koanf:"database_url"`

	// Redis (rate limiting; optional, falls back to in-process limits)
	RedisURL string `koanf:"redis_url"`

	// JWT Authentication. The previous secret is kept valid during
	// rotation windows.
	JWTSecret         string `koanf:"jwt_secret"`
	JWTPreviousSecret string `koanf:"jwt_previous_secret"`

	// Embedding service. An empty URL selects the deterministic local
	// embedder, which is only suitable for development.
	EmbedderURL            string `koanf:"embedder_url"`
	EmbedderTimeoutSeconds int    `koanf:"embedder_timeout_seconds"`

	// Duplicate detection
	SimilarityThreshold float64 `koanf:"similarity_threshold"`

	// Ranking calibration file (optional JSON overrides)
	CalibrationPath string `koanf:"calibration_path"`

	// Vector index snapshot file (optional; empty disables snapshots)
	SnapshotPath string `koanf:"snapshot_path"`

	// Reconciler cadence
	ReconcileIntervalSeconds int `koanf:"reconcile_interval_seconds"`

	// Rate limiting (per user, per minute; 0 disables)
	RateLimitPerMinute int `koanf:"rate_limit_per_minute"`

	// Fraud-weighted voting (off by default; every vote counts fully)
	FraudScoringEnabled bool `koanf:"fraud_scoring_enabled"`

	// Intake screen terms: submissions containing any of these are held
	// pending for moderator review. Empty approves everything.
	BlockedTerms []string `koanf:"blocked_terms"`

	// CORS origin allowlist for browser clients (empty disables CORS)
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`

	// Profiling endpoints (/debug/pprof/*; refused in production)
	ProfilingEnabled bool `koanf:"profiling_enabled"`

	// Tracing (optional OTLP endpoint; empty disables export)
	OTLPEndpoint string `koanf:"otlp_endpoint"`
}

// Configuration validation errors.
var (
	ErrMissingDatabaseURL       = errors.New("DATABASE_URL is required")
	ErrMissingJWTSecret         = errors.New("JWT_SECRET is required")
	ErrInvalidPort              = errors.New("PORT must be a valid integer")
	ErrInvalidThreshold         = errors.New("SIMILARITY_THRESHOLD must be in (0, 1]")
	ErrInvalidEmbedderTimeout   = errors.New("EMBEDDER_TIMEOUT_SECONDS must be positive")
	ErrInvalidReconcileInterval = errors.New("RECONCILE_INTERVAL_SECONDS must be positive")
)

// Default values for non-secret configuration.
const (
	DefaultPort                     = 8080
	DefaultEnv                      = "development"
	DefaultEmbedderTimeoutSeconds   = 5
	DefaultSimilarityThreshold      = 0.85
	DefaultReconcileIntervalSeconds = 60
	DefaultRateLimitPerMinute       = 60
)

// Load reads configuration from environment variables and an optional config
// file. Environment variables take precedence over file values. Returns the
// loaded config and a slice of validation errors (empty if valid). If a
// config file path is provided and the file cannot be loaded, an error is
// returned.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error

	// Load from YAML file first if provided (lower precedence)
	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	// Try HUSTINGS_PORT first, then PORT for platform compatibility
	port, portErr := getEnvIntOrDefaultMulti([]string{"HUSTINGS_PORT", "PORT"}, k.Int("port"), DefaultPort)
	if portErr != nil {
		loadErrs = append(loadErrs, portErr)
	}

	embedderTimeout, timeoutErr := getEnvIntOrDefault("EMBEDDER_TIMEOUT_SECONDS", k.Int("embedder_timeout_seconds"), DefaultEmbedderTimeoutSeconds)
	if timeoutErr != nil {
		loadErrs = append(loadErrs, timeoutErr)
	}

	reconcileInterval, intervalErr := getEnvIntOrDefault("RECONCILE_INTERVAL_SECONDS", k.Int("reconcile_interval_seconds"), DefaultReconcileIntervalSeconds)
	if intervalErr != nil {
		loadErrs = append(loadErrs, intervalErr)
	}

	rateLimit, rateErr := getEnvIntOrDefault("RATE_LIMIT_PER_MINUTE", k.Int("rate_limit_per_minute"), DefaultRateLimitPerMinute)
	if rateErr != nil {
		loadErrs = append(loadErrs, rateErr)
	}

	threshold, thresholdErr := getEnvFloatOrDefault("SIMILARITY_THRESHOLD", k.Float64("similarity_threshold"), DefaultSimilarityThreshold)
	if thresholdErr != nil {
		loadErrs = append(loadErrs, thresholdErr)
	}

	// Build config struct, with env vars taking precedence over file values
	cfg := &Config{
		Port:                     port,
		Env:                      getEnvOrDefaultMulti([]string{"HUSTINGS_ENV", "ENV", "GO_ENV"}, k.String("env"), DefaultEnv),
		DatabaseURL:              getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		RedisURL:                 getEnvOrKoanf("REDIS_URL", k, "redis_url"),
		JWTSecret:                getEnvOrKoanf("JWT_SECRET", k, "jwt_secret"),
		JWTPreviousSecret:        getEnvOrKoanf("JWT_PREVIOUS_SECRET", k, "jwt_previous_secret"),
		EmbedderURL:              getEnvOrKoanf("EMBEDDER_URL", k, "embedder_url"),
		EmbedderTimeoutSeconds:   embedderTimeout,
		SimilarityThreshold:      threshold,
		CalibrationPath:          getEnvOrKoanf("CALIBRATION_PATH", k, "calibration_path"),
		SnapshotPath:             getEnvOrKoanf("SNAPSHOT_PATH", k, "snapshot_path"),
		ReconcileIntervalSeconds: reconcileInterval,
		RateLimitPerMinute:       rateLimit,
		FraudScoringEnabled:      getEnvBoolOrDefault("FRAUD_SCORING_ENABLED", k.Bool("fraud_scoring_enabled")),
		BlockedTerms:             getEnvCSVOrKoanf("BLOCKED_TERMS", k, "blocked_terms"),
		CORSAllowedOrigins:       getEnvCSVOrKoanf("CORS_ALLOWED_ORIGINS", k, "cors_allowed_origins"),
		ProfilingEnabled:         getEnvBoolOrDefault("PROFILING_ENABLED", k.Bool("profiling_enabled")),
		OTLPEndpoint:             getEnvOrKoanf("OTLP_ENDPOINT", k, "otlp_endpoint"),
	}

	// Validate and collect errors
	errs := cfg.Validate()
	errs = append(loadErrs, errs...)

	return cfg, errs
}

// getEnvOrKoanf returns the environment variable value if set, otherwise the koanf value.
func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

// getEnvCSVOrKoanf returns the environment variable split on commas if set,
// otherwise the koanf string list. Entries are trimmed and empties dropped.
func getEnvCSVOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) []string {
	var raw []string
	if val := os.Getenv(envKey); val != "" {
		raw = strings.Split(val, ",")
	} else {
		raw = k.Strings(koanfKey)
	}
	var out []string
	for _, item := range raw {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// getEnvOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first non-empty value found, otherwise the koanf value, or default.
func getEnvOrDefaultMulti(envKeys []string, koanfVal string, defaultVal string) string {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvIntOrDefault returns the environment variable as int if set,
// otherwise the koanf value, or default. Returns an error if the environment
// variable is set but cannot be parsed as an integer.
func getEnvIntOrDefault(envKey string, koanfVal int, defaultVal int) (int, error) {
	if val := os.Getenv(envKey); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer: %w", envKey, err)
		}
		return i, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvIntOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first valid integer value found, otherwise the koanf value, or
// default. Returns an error if any environment variable is set but cannot be
// parsed as an integer.
func getEnvIntOrDefaultMulti(envKeys []string, koanfVal int, defaultVal int) (int, error) {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			i, err := strconv.Atoi(val)
			if err != nil {
				return 0, fmt.Errorf("%s must be a valid integer: %w", key, ErrInvalidPort)
			}
			return i, nil
		}
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvBoolOrDefault returns the environment variable as bool if set,
// otherwise the koanf value. Unparseable values read as false.
func getEnvBoolOrDefault(envKey string, koanfVal bool) bool {
	if val := os.Getenv(envKey); val != "" {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return false
		}
		return b
	}
	return koanfVal
}

// getEnvFloatOrDefault returns the environment variable as float64 if set,
// otherwise the koanf value, or default. Returns an error if the environment
// variable is set but cannot be parsed as a float.
func getEnvFloatOrDefault(envKey string, koanfVal float64, defaultVal float64) (float64, error) {
	if val := os.Getenv(envKey); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid float: %w", envKey, err)
		}
		return f, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// Validate checks that all required configuration values are present and in
// range. Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, ErrMissingDatabaseURL)
	}
	if c.JWTSecret == "" {
		errs = append(errs, ErrMissingJWTSecret)
	}
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		errs = append(errs, ErrInvalidThreshold)
	}
	if c.EmbedderTimeoutSeconds <= 0 {
		errs = append(errs, ErrInvalidEmbedderTimeout)
	}
	if c.ReconcileIntervalSeconds <= 0 {
		errs = append(errs, ErrInvalidReconcileInterval)
	}

	return errs
}

// LogSummary returns a summary of the configuration suitable for logging.
// All secrets are masked to prevent accidental exposure.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":                       fmt.Sprintf("%d", c.Port),
		"env":                        c.Env,
		"database_url":               maskDatabaseURL(c.DatabaseURL),
		"redis_url":                  maskDatabaseURL(c.RedisURL),
		"jwt_secret":                 maskSecret(c.JWTSecret),
		"jwt_previous_secret":        maskSecret(c.JWTPreviousSecret),
		"embedder_url":               c.EmbedderURL,
		"embedder_timeout_seconds":   fmt.Sprintf("%d", c.EmbedderTimeoutSeconds),
		"similarity_threshold":       fmt.Sprintf("%.2f", c.SimilarityThreshold),
		"calibration_path":           c.CalibrationPath,
		"snapshot_path":              c.SnapshotPath,
		"reconcile_interval_seconds": fmt.Sprintf("%d", c.ReconcileIntervalSeconds),
		"rate_limit_per_minute":      fmt.Sprintf("%d", c.RateLimitPerMinute),
		"fraud_scoring_enabled":      fmt.Sprintf("%t", c.FraudScoringEnabled),
		"blocked_terms":              fmt.Sprintf("%d terms", len(c.BlockedTerms)),
		"cors_allowed_origins":       strings.Join(c.CORSAllowedOrigins, ","),
		"profiling_enabled":          fmt.Sprintf("%t", c.ProfilingEnabled),
		"otlp_endpoint":              c.OTLPEndpoint,
	}
}

// maskSecret masks a secret value, showing only the first 4 characters
// followed by ****. If the secret is shorter than 8 characters, it's fully
// masked.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}

// maskDatabaseURL masks the password in a connection URL. Supports
// postgres://, postgresql:// and redis:// schemes.
func maskDatabaseURL(s string) string {
	if s == "" {
		return "<not set>"
	}

	schemeEnd := strings.Index(s, "://")
	if schemeEnd == -1 {
		return maskSecret(s)
	}

	rest := s[schemeEnd+3:]
	atIndex := strings.Index(rest, "@")
	if atIndex == -1 {
		return s // No credentials in URL
	}

	colonIndex := strings.Index(rest[:atIndex], ":")
	if colonIndex == -1 {
		return s // No password (only username)
	}

	scheme := s[:schemeEnd+3]
	user := rest[:colonIndex]
	hostAndPath := rest[atIndex:]

	return scheme + user + ":****" + hostAndPath
}
