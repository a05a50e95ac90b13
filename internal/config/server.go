package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/JaimeStill/kisaanseva/pkg/formatting"
)

const (
	EnvServerHost              = "KISAAN_SERVER_HOST"
	EnvServerPort              = "KISAAN_SERVER_PORT"
	EnvServerReadTimeout       = "KISAAN_SERVER_READ_TIMEOUT"
	EnvServerReadHeaderTimeout = "KISAAN_SERVER_READ_HEADER_TIMEOUT"
	EnvServerWriteTimeout      = "KISAAN_SERVER_WRITE_TIMEOUT"
	EnvServerIdleTimeout       = "KISAAN_SERVER_IDLE_TIMEOUT"
	EnvServerShutdownTimeout   = "KISAAN_SERVER_SHUTDOWN_TIMEOUT"
	EnvServerMaxHeaderSize     = "KISAAN_SERVER_MAX_HEADER_SIZE"
)

// ServerConfig holds HTTP listener parameters. Durations are Go duration
// strings and MaxHeaderSize is a human-readable size such as "64KB".
type ServerConfig struct {
	Host              string `toml:"host"`
	Port              int    `toml:"port"`
	ReadTimeout       string `toml:"read_timeout"`
	ReadHeaderTimeout string `toml:"read_header_timeout"`
	WriteTimeout      string `toml:"write_timeout"`
	IdleTimeout       string `toml:"idle_timeout"`
	ShutdownTimeout   string `toml:"shutdown_timeout"`
	MaxHeaderSize     string `toml:"max_header_size"`
}

// Addr returns the host:port listen address.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c *ServerConfig) ReadTimeoutDuration() time.Duration { return duration(c.ReadTimeout) }
func (c *ServerConfig) ReadHeaderTimeoutDuration() time.Duration {
	return duration(c.ReadHeaderTimeout)
}
func (c *ServerConfig) WriteTimeoutDuration() time.Duration    { return duration(c.WriteTimeout) }
func (c *ServerConfig) IdleTimeoutDuration() time.Duration     { return duration(c.IdleTimeout) }
func (c *ServerConfig) ShutdownTimeoutDuration() time.Duration { return duration(c.ShutdownTimeout) }

func duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

// MaxHeaderBytes returns MaxHeaderSize in bytes.
func (c *ServerConfig) MaxHeaderBytes() int {
	n, _ := formatting.ParseByteSize(c.MaxHeaderSize)
	return int(n)
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *ServerConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *ServerConfig) Merge(overlay *ServerConfig) {
	if overlay.Host != "" {
		c.Host = overlay.Host
	}
	if overlay.Port != 0 {
		c.Port = overlay.Port
	}
	for _, f := range c.strings(overlay) {
		if *f.src != "" {
			*f.dst = *f.src
		}
	}
}

func (c *ServerConfig) loadDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	for _, f := range c.strings(nil) {
		if *f.dst == "" {
			*f.dst = f.def
		}
	}
}

func (c *ServerConfig) loadEnv() {
	if v := os.Getenv(EnvServerHost); v != "" {
		c.Host = v
	}
	if v := os.Getenv(EnvServerPort); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Port = port
		}
	}
	for _, f := range c.strings(nil) {
		if v := os.Getenv(f.env); v != "" {
			*f.dst = v
		}
	}
}

func (c *ServerConfig) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	for _, f := range c.strings(nil) {
		if f.key == "max_header_size" {
			n, err := formatting.ParseByteSize(*f.dst)
			if err != nil {
				return fmt.Errorf("invalid max_header_size: %w", err)
			}
			if n < formatting.KB {
				return fmt.Errorf("max_header_size must be at least 1KB: %s", *f.dst)
			}
			continue
		}
		d, err := time.ParseDuration(*f.dst)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", f.key, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive: %s", f.key, *f.dst)
		}
	}
	return nil
}

type serverField struct {
	key, env, def string
	dst, src      *string
}

// strings lists the string-valued settings. src is nil when overlay is nil.
func (c *ServerConfig) strings(overlay *ServerConfig) []serverField {
	fields := []serverField{
		{"read_timeout", EnvServerReadTimeout, "1m", &c.ReadTimeout, nil},
		{"read_header_timeout", EnvServerReadHeaderTimeout, "10s", &c.ReadHeaderTimeout, nil},
		{"write_timeout", EnvServerWriteTimeout, "2m", &c.WriteTimeout, nil},
		{"idle_timeout", EnvServerIdleTimeout, "2m", &c.IdleTimeout, nil},
		{"shutdown_timeout", EnvServerShutdownTimeout, "30s", &c.ShutdownTimeout, nil},
		{"max_header_size", EnvServerMaxHeaderSize, "64KB", &c.MaxHeaderSize, nil},
	}
	if overlay != nil {
		srcs := []*string{
			&overlay.ReadTimeout, &overlay.ReadHeaderTimeout, &overlay.WriteTimeout,
			&overlay.IdleTimeout, &overlay.ShutdownTimeout, &overlay.MaxHeaderSize,
		}
		for i := range fields {
			fields[i].src = srcs[i]
		}
	}
	return fields
}
