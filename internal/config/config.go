// Package config loads the process-wide configuration surface from
// environment variables, following the teacher's envutil convention,
// with an optional config.yaml overlay for the handful of static
// defaults (retry backoff, lease timeout, per-kind concurrency) that
// are awkward to tune one env var at a time.
package config

import (
	"os"
	"time"

	"github.com/cifix/pipeline/internal/platform/envutil"
	"gopkg.in/yaml.v3"
)

type Config struct {
	WorkRoot      string
	RetentionDays int

	MaxConcurrentPerKind int
	TickIntervalMS       int
	RetryBaseSeconds     int
	RetryMaxSeconds      int
	RetryJitterFactor    float64
	LeaseTimeoutSeconds  int

	SignatureRequired       bool
	SignatureSecret         string
	SignatureMaxSkewSeconds int

	MaxLogBytes        int
	DefaultMaxAttempts int

	HTTPAddress string
}

func Load() Config {
	cfg := Config{
		WorkRoot:      envutil.String("WORK_ROOT", "/work"),
		RetentionDays: envutil.Int("RETENTION_DAYS", 7),

		MaxConcurrentPerKind: envutil.Int("MAX_CONCURRENT_PER_KIND", 5),
		TickIntervalMS:       envutil.Int("TICK_INTERVAL_MS", 1000),
		RetryBaseSeconds:     envutil.Int("RETRY_BASE_SECONDS", 2),
		RetryMaxSeconds:      envutil.Int("RETRY_MAX_SECONDS", 300),
		RetryJitterFactor:    envutil.Float("RETRY_JITTER_FACTOR", 0.1),
		LeaseTimeoutSeconds:  envutil.Int("LEASE_TIMEOUT_SECONDS", 900),

		SignatureRequired:       envutil.Bool("SIGNATURE_REQUIRED", false),
		SignatureSecret:         envutil.String("SIGNATURE_SECRET", ""),
		SignatureMaxSkewSeconds: envutil.Int("SIGNATURE_MAX_SKEW_SECONDS", 300),

		MaxLogBytes:        envutil.Int("MAX_LOG_BYTES", 1<<20),
		DefaultMaxAttempts: envutil.Int("DEFAULT_MAX_ATTEMPTS", 3),

		HTTPAddress: envutil.String("HTTP_ADDRESS", ":8080"),
	}

	overlayFromFile(&cfg, envutil.String("CONFIG_FILE", "config.yaml"))
	return cfg
}

// overlay holds the subset of Config that config.yaml is allowed to
// override: the retry backoff, lease timeout and per-kind concurrency
// defaults, which are awkward to retune one env var at a time. Pointer fields so an absent key in the file leaves the
// env-derived default untouched.
type overlay struct {
	RetryBaseSeconds     *int     `yaml:"retry_base_seconds"`
	RetryMaxSeconds      *int     `yaml:"retry_max_seconds"`
	RetryJitterFactor    *float64 `yaml:"retry_jitter_factor"`
	LeaseTimeoutSeconds  *int     `yaml:"lease_timeout_seconds"`
	MaxConcurrentPerKind *int     `yaml:"max_concurrent_per_kind"`
}

// overlayFromFile applies a config.yaml overlay on top of the
// env-derived defaults. The file is optional: a missing file is not
// an error, since env vars alone are a complete configuration surface
// per spec.md §6. A present-but-malformed file is logged to stderr
// and otherwise ignored, since config loading runs before the
// structured logger exists.
func overlayFromFile(cfg *Config, path string) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return
	}
	var o overlay
	if err := yaml.Unmarshal(raw, &o); err != nil {
		os.Stderr.WriteString("config: ignoring malformed " + path + ": " + err.Error() + "\n")
		return
	}
	if o.RetryBaseSeconds != nil {
		cfg.RetryBaseSeconds = *o.RetryBaseSeconds
	}
	if o.RetryMaxSeconds != nil {
		cfg.RetryMaxSeconds = *o.RetryMaxSeconds
	}
	if o.RetryJitterFactor != nil {
		cfg.RetryJitterFactor = *o.RetryJitterFactor
	}
	if o.LeaseTimeoutSeconds != nil {
		cfg.LeaseTimeoutSeconds = *o.LeaseTimeoutSeconds
	}
	if o.MaxConcurrentPerKind != nil {
		cfg.MaxConcurrentPerKind = *o.MaxConcurrentPerKind
	}
}

func (c Config) RetentionDuration() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

func (c Config) LeaseTimeout() time.Duration {
	return time.Duration(c.LeaseTimeoutSeconds) * time.Second
}

func (c Config) RetryBase() time.Duration {
	return time.Duration(c.RetryBaseSeconds) * time.Second
}

func (c Config) RetryMax() time.Duration {
	return time.Duration(c.RetryMaxSeconds) * time.Second
}

func (c Config) SignatureMaxSkew() time.Duration {
	return time.Duration(c.SignatureMaxSkewSeconds) * time.Second
}
