package database

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
)

// Config holds PostgreSQL connection and pool parameters. Durations are Go
// duration strings.
type Config struct {
	Host             string `toml:"host"`
	Port             int    `toml:"port"`
	Name             string `toml:"name"`
	User             string `toml:"user"`
	Password         string `toml:"password"`
	SSLMode          string `toml:"ssl_mode"`
	ApplicationName  string `toml:"application_name"`
	MaxOpenConns     int    `toml:"max_open_conns"`
	MaxIdleConns     int    `toml:"max_idle_conns"`
	ConnMaxLifetime  string `toml:"conn_max_lifetime"`
	ConnMaxIdleTime  string `toml:"conn_max_idle_time"`
	ConnTimeout      string `toml:"conn_timeout"`
	StatementTimeout string `toml:"statement_timeout"`
	HealthInterval   string `toml:"health_interval"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	Host             string
	Port             string
	Name             string
	User             string
	Password         string
	SSLMode          string
	ApplicationName  string
	MaxOpenConns     string
	MaxIdleConns     string
	ConnMaxLifetime  string
	ConnMaxIdleTime  string
	ConnTimeout      string
	StatementTimeout string
	HealthInterval   string
}

func (c *Config) ConnMaxLifetimeDuration() time.Duration  { return duration(c.ConnMaxLifetime) }
func (c *Config) ConnMaxIdleTimeDuration() time.Duration  { return duration(c.ConnMaxIdleTime) }
func (c *Config) ConnTimeoutDuration() time.Duration      { return duration(c.ConnTimeout) }
func (c *Config) StatementTimeoutDuration() time.Duration { return duration(c.StatementTimeout) }
func (c *Config) HealthIntervalDuration() time.Duration   { return duration(c.HealthInterval) }

func duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

// URL returns the connection as a postgres:// URL, the form golang-migrate expects.
func (c *Config) URL() string {
	q := url.Values{"sslmode": {c.SSLMode}}
	if c.ApplicationName != "" {
		q.Set("application_name", c.ApplicationName)
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     c.Name,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// ConnConfig parses the connection settings into a pgx config. A positive
// StatementTimeout is sent as the session's statement_timeout so a stuck
// query releases its row locks.
func (c *Config) ConnConfig() (*pgx.ConnConfig, error) {
	cc, err := pgx.ParseConfig(c.URL())
	if err != nil {
		return nil, fmt.Errorf("parse connection config: %w", err)
	}
	if t := c.ConnTimeoutDuration(); t > 0 {
		cc.ConnectTimeout = t
	}
	if t := c.StatementTimeoutDuration(); t > 0 {
		cc.RuntimeParams["statement_timeout"] = strconv.FormatInt(t.Milliseconds(), 10)
	}
	return cc, nil
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
	if overlay.Port != 0 {
		c.Port = overlay.Port
	}
	if overlay.MaxOpenConns != 0 {
		c.MaxOpenConns = overlay.MaxOpenConns
	}
	if overlay.MaxIdleConns != 0 {
		c.MaxIdleConns = overlay.MaxIdleConns
	}
	src := overlay.strings(&Env{})
	for i, f := range c.strings(&Env{}) {
		if *src[i].dst != "" {
			*f.dst = *src[i].dst
		}
	}
}

func (c *Config) loadDefaults() {
	if c.Port == 0 {
		c.Port = 5432
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 25
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 5
	}
	for _, f := range c.strings(&Env{}) {
		if *f.dst == "" {
			*f.dst = f.def
		}
	}
}

func (c *Config) loadEnv(env *Env) {
	for _, f := range []struct {
		name string
		dst  *int
	}{
		{env.Port, &c.Port},
		{env.MaxOpenConns, &c.MaxOpenConns},
		{env.MaxIdleConns, &c.MaxIdleConns},
	} {
		if f.name == "" {
			continue
		}
		if n, err := strconv.Atoi(os.Getenv(f.name)); err == nil {
			*f.dst = n
		}
	}
	for _, f := range c.strings(env) {
		if f.env == "" {
			continue
		}
		if v := os.Getenv(f.env); v != "" {
			*f.dst = v
		}
	}
}

func (c *Config) validate() error {
	if c.Name == "" {
		return fmt.Errorf("name required")
	}
	if c.User == "" {
		return fmt.Errorf("user required")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return fmt.Errorf("max_idle_conns cannot exceed max_open_conns (%d > %d)", c.MaxIdleConns, c.MaxOpenConns)
	}
	for key, v := range map[string]string{
		"conn_max_lifetime":  c.ConnMaxLifetime,
		"conn_max_idle_time": c.ConnMaxIdleTime,
		"conn_timeout":       c.ConnTimeout,
		"statement_timeout":  c.StatementTimeout,
		"health_interval":    c.HealthInterval,
	} {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}
	return nil
}

type stringField struct {
	dst      *string
	env, def string
}

func (c *Config) strings(env *Env) []stringField {
	return []stringField{
		{&c.Host, env.Host, "localhost"},
		{&c.Name, env.Name, ""},
		{&c.User, env.User, ""},
		{&c.Password, env.Password, ""},
		{&c.SSLMode, env.SSLMode, "disable"},
		{&c.ApplicationName, env.ApplicationName, "kisaanseva"},
		{&c.ConnMaxLifetime, env.ConnMaxLifetime, "15m"},
		{&c.ConnMaxIdleTime, env.ConnMaxIdleTime, "5m"},
		{&c.ConnTimeout, env.ConnTimeout, "5s"},
		{&c.StatementTimeout, env.StatementTimeout, "30s"},
		{&c.HealthInterval, env.HealthInterval, "15s"},
	}
}
