package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	EnvFanoutBatchSize     = "KISAAN_FANOUT_BATCH_SIZE"
	EnvFanoutConcurrency   = "KISAAN_FANOUT_CONCURRENCY"
	EnvFanoutTimeout       = "KISAAN_FANOUT_TIMEOUT"
	EnvFanoutRetryInterval = "KISAAN_FANOUT_RETRY_INTERVAL"
	EnvFanoutMaxAttempts   = "KISAAN_FANOUT_MAX_ATTEMPTS"
)

// FanoutConfig holds the notification fan-out bounds used after approval.
type FanoutConfig struct {
	BatchSize     int    `toml:"batch_size"`
	Concurrency   int    `toml:"concurrency"`
	Timeout       string `toml:"timeout"`
	RetryInterval string `toml:"retry_interval"`
	MaxAttempts   int    `toml:"max_attempts"`
}

// TimeoutDuration returns Timeout as a time.Duration.
func (c *FanoutConfig) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

// RetryIntervalDuration returns RetryInterval as a time.Duration.
func (c *FanoutConfig) RetryIntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.RetryInterval)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *FanoutConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *FanoutConfig) Merge(overlay *FanoutConfig) {
	if overlay.BatchSize != 0 {
		c.BatchSize = overlay.BatchSize
	}
	if overlay.Concurrency != 0 {
		c.Concurrency = overlay.Concurrency
	}
	if overlay.Timeout != "" {
		c.Timeout = overlay.Timeout
	}
	if overlay.RetryInterval != "" {
		c.RetryInterval = overlay.RetryInterval
	}
	if overlay.MaxAttempts != 0 {
		c.MaxAttempts = overlay.MaxAttempts
	}
}

func (c *FanoutConfig) loadDefaults() {
	if c.BatchSize == 0 {
		c.BatchSize = 100
	}
	if c.Concurrency == 0 {
		c.Concurrency = 4
	}
	if c.Timeout == "" {
		c.Timeout = "30s"
	}
	if c.RetryInterval == "" {
		c.RetryInterval = "5m"
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 5
	}
}

func (c *FanoutConfig) loadEnv() {
	if v := os.Getenv(EnvFanoutBatchSize); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.BatchSize = n
		}
	}
	if v := os.Getenv(EnvFanoutConcurrency); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Concurrency = n
		}
	}
	if v := os.Getenv(EnvFanoutTimeout); v != "" {
		c.Timeout = v
	}
	if v := os.Getenv(EnvFanoutRetryInterval); v != "" {
		c.RetryInterval = v
	}
	if v := os.Getenv(EnvFanoutMaxAttempts); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxAttempts = n
		}
	}
}

func (c *FanoutConfig) validate() error {
	if c.BatchSize < 1 {
		return fmt.Errorf("batch_size must be at least 1")
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1")
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1")
	}
	if _, err := time.ParseDuration(c.Timeout); err != nil {
		return fmt.Errorf("invalid timeout: %w", err)
	}
	if _, err := time.ParseDuration(c.RetryInterval); err != nil {
		return fmt.Errorf("invalid retry_interval: %w", err)
	}
	return nil
}
