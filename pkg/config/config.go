// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the settings that drive a Submission's driver loop: how
// often to poll, how much work to fan out concurrently, and how often to
// retry a transport call, plus the work-base, job-retry and logging knobs.
type Config struct {
	// WorkBase is the configured base directory for job working directories
	// and snapshot files. Package dispatch does not read it: a Submission
	// carries its own work base.
	WorkBase string `yaml:"work_base"`

	// PollInterval is how often Submission.Run polls CheckStatus.
	PollInterval time.Duration `yaml:"poll_interval"`

	// MaxJobRetries is a loaded and validated retry-budget setting (default:
	// 5). Package dispatch does not read it: a Job's resubmit budget there is
	// the fixed value 5.
	MaxJobRetries int `yaml:"max_job_retries"`

	// MaxConcurrentJobOps bounds how many per-job operations (submit,
	// refresh_state) run concurrently through pkg/pool.
	MaxConcurrentJobOps int `yaml:"max_concurrent_job_ops"`

	// TransportMaxRetries bounds how many times a Context transport call
	// (upload/download) is retried on failure before giving up.
	TransportMaxRetries int `yaml:"transport_max_retries"`

	// LogFormat selects "text" or "json" log output (see pkg/logging).
	LogFormat string `yaml:"log_format"`

	// Debug enables debug-level logging.
	Debug bool `yaml:"debug"`
}

// NewDefault returns a Config seeded with the dispatcher's default settings,
// overridable by environment variables of the same names below.
func NewDefault() *Config {
	return &Config{
		WorkBase:            getEnvOrDefault("DPDISPATCHER_WORK_BASE", "."),
		PollInterval:        10 * time.Second,
		MaxJobRetries:       5,
		MaxConcurrentJobOps: 8,
		TransportMaxRetries: 3,
		LogFormat:           "text",
		Debug:               getEnvBoolOrDefault("DPDISPATCHER_DEBUG", false),
	}
}

// Load overlays environment variables onto an existing Config, leaving
// unset variables untouched.
func (c *Config) Load() {
	if base := os.Getenv("DPDISPATCHER_WORK_BASE"); base != "" {
		c.WorkBase = base
	}

	if interval := os.Getenv("DPDISPATCHER_POLL_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			c.PollInterval = d
		}
	}

	if retries := os.Getenv("DPDISPATCHER_MAX_JOB_RETRIES"); retries != "" {
		if i, err := strconv.Atoi(retries); err == nil {
			c.MaxJobRetries = i
		}
	}

	if concurrency := os.Getenv("DPDISPATCHER_MAX_CONCURRENT_JOB_OPS"); concurrency != "" {
		if i, err := strconv.Atoi(concurrency); err == nil {
			c.MaxConcurrentJobOps = i
		}
	}

	if retries := os.Getenv("DPDISPATCHER_TRANSPORT_MAX_RETRIES"); retries != "" {
		if i, err := strconv.Atoi(retries); err == nil {
			c.TransportMaxRetries = i
		}
	}

	if format := os.Getenv("DPDISPATCHER_LOG_FORMAT"); format != "" {
		c.LogFormat = format
	}

	c.Debug = getEnvBoolOrDefault("DPDISPATCHER_DEBUG", c.Debug)
}

// LoadYAML reads a Config from a YAML file, starting from NewDefault and
// overlaying whatever fields the file sets.
func LoadYAML(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	cfg := NewDefault()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that a Config's values are usable.
func (c *Config) Validate() error {
	if c.WorkBase == "" {
		return ErrMissingWorkBase
	}

	if c.PollInterval <= 0 {
		return ErrInvalidPollInterval
	}

	if c.MaxJobRetries < 0 {
		return ErrInvalidMaxJobRetries
	}

	if c.MaxConcurrentJobOps <= 0 {
		return ErrInvalidMaxConcurrentJobOps
	}

	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
