package events

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds Kafka producer parameters. No brokers disables publishing.
type Config struct {
	Brokers           []string `toml:"brokers"`
	NotificationTopic string   `toml:"notification_topic"`
	AuditTopic        string   `toml:"audit_topic"`
	BatchTimeout      string   `toml:"batch_timeout"`
	WriteTimeout      string   `toml:"write_timeout"`
	Compression       string   `toml:"compression"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	Brokers           string
	NotificationTopic string
	AuditTopic        string
	BatchTimeout      string
	WriteTimeout      string
	Compression       string
}

// Enabled reports whether any brokers are configured.
func (c *Config) Enabled() bool {
	return len(c.Brokers) > 0
}

// BatchTimeoutDuration returns BatchTimeout as a time.Duration.
func (c *Config) BatchTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.BatchTimeout)
	return d
}

// WriteTimeoutDuration returns WriteTimeout as a time.Duration.
func (c *Config) WriteTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.WriteTimeout)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *Config) Finalize(env *Env) error {
	c.loadDefaults()
	if env != nil {
		c.loadEnv(env)
	}
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *Config) Merge(overlay *Config) {
	if overlay.Brokers != nil {
		c.Brokers = overlay.Brokers
	}
	if overlay.NotificationTopic != "" {
		c.NotificationTopic = overlay.NotificationTopic
	}
	if overlay.AuditTopic != "" {
		c.AuditTopic = overlay.AuditTopic
	}
	if overlay.BatchTimeout != "" {
		c.BatchTimeout = overlay.BatchTimeout
	}
	if overlay.WriteTimeout != "" {
		c.WriteTimeout = overlay.WriteTimeout
	}
	if overlay.Compression != "" {
		c.Compression = overlay.Compression
	}
}

func (c *Config) loadDefaults() {
	if c.NotificationTopic == "" {
		c.NotificationTopic = "farmer-notifications"
	}
	if c.AuditTopic == "" {
		c.AuditTopic = "audit"
	}
	if c.BatchTimeout == "" {
		c.BatchTimeout = "10ms"
	}
	if c.WriteTimeout == "" {
		c.WriteTimeout = "10s"
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.Brokers != "" {
		if v := os.Getenv(env.Brokers); v != "" {
			brokers := strings.Split(v, ",")
			c.Brokers = make([]string, 0, len(brokers))
			for _, broker := range brokers {
				if trimmed := strings.TrimSpace(broker); trimmed != "" {
					c.Brokers = append(c.Brokers, trimmed)
				}
			}
		}
	}
	if env.NotificationTopic != "" {
		if v := os.Getenv(env.NotificationTopic); v != "" {
			c.NotificationTopic = v
		}
	}
	if env.AuditTopic != "" {
		if v := os.Getenv(env.AuditTopic); v != "" {
			c.AuditTopic = v
		}
	}
	if env.BatchTimeout != "" {
		if v := os.Getenv(env.BatchTimeout); v != "" {
			c.BatchTimeout = v
		}
	}
	if env.WriteTimeout != "" {
		if v := os.Getenv(env.WriteTimeout); v != "" {
			c.WriteTimeout = v
		}
	}
	if env.Compression != "" {
		if v := os.Getenv(env.Compression); v != "" {
			c.Compression = v
		}
	}
}

func (c *Config) validate() error {
	if _, err := time.ParseDuration(c.BatchTimeout); err != nil {
		return fmt.Errorf("invalid batch_timeout: %w", err)
	}
	if _, err := time.ParseDuration(c.WriteTimeout); err != nil {
		return fmt.Errorf("invalid write_timeout: %w", err)
	}
	switch c.Compression {
	case "", "gzip", "snappy", "lz4", "zstd":
	default:
		return fmt.Errorf("unsupported compression: %s", c.Compression)
	}
	return nil
}
