// Package config defines service configuration and its validation.
//
// Conventions:
//   - New returns a Config populated with defaults.
//   - Load layers defaults, an optional YAML file and CHURN_ environment variables.
//   - Validation failures wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"runtime"
	"strings"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text or json log lines.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// Artifact locations. Leave all four empty to use the embedded bundle.
	FeaturesPath string `koanf:"features_path"`
	EncoderPath  string `koanf:"encoder_path"`
	ScalerPath   string `koanf:"scaler_path"`
	ModelPath    string `koanf:"model_path"`

	// ExtraFields is reject or ignore for record keys the model does not know.
	ExtraFields string `koanf:"extra_fields"`

	// BatchWorkers bounds concurrent scoring inside one batch request.
	BatchWorkers int `koanf:"batch_workers"`

	// MaxBatchSize caps the records accepted by POST /predict/batch.
	MaxBatchSize int `koanf:"max_batch_size"`

	// MaxBodyBytes caps request bodies.
	MaxBodyBytes int64 `koanf:"max_body_bytes"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:     "info",
		LogFormat:    "text",
		Addr:         ":9080",
		ExtraFields:  "reject",
		BatchWorkers: runtime.NumCPU(),
		MaxBatchSize: 1_000,
		MaxBodyBytes: 1 << 20,
	}
}

// Embedded reports whether the built-in artifact bundle should be used.
func (c *Config) Embedded() bool {
	return c.FeaturesPath == "" && c.EncoderPath == "" && c.ScalerPath == "" && c.ModelPath == ""
}

// Validate checks field values and cross-field rules.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: unknown log_level %q", ErrInvalidConfig, c.LogLevel)
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: log_format must be text or json, got %q", ErrInvalidConfig, c.LogFormat)
	}
	switch c.ExtraFields {
	case "reject", "ignore":
	default:
		return fmt.Errorf("%w: extra_fields must be reject or ignore, got %q", ErrInvalidConfig, c.ExtraFields)
	}
	if !c.Embedded() {
		for _, p := range []struct{ key, val string }{
			{"features_path", c.FeaturesPath},
			{"encoder_path", c.EncoderPath},
			{"scaler_path", c.ScalerPath},
			{"model_path", c.ModelPath},
		} {
			if p.val == "" {
				return fmt.Errorf("%w: %s must be set when any artifact path is set", ErrInvalidConfig, p.key)
			}
		}
	}
	if c.BatchWorkers < 0 {
		return fmt.Errorf("%w: batch_workers must not be negative", ErrInvalidConfig)
	}
	if c.MaxBatchSize <= 0 {
		return fmt.Errorf("%w: max_batch_size must be positive", ErrInvalidConfig)
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("%w: max_body_bytes must be positive", ErrInvalidConfig)
	}
	return nil
}
