package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/JaimeStill/kisaanseva/pkg/cache"
	"github.com/JaimeStill/kisaanseva/pkg/database"
	"github.com/JaimeStill/kisaanseva/pkg/events"
	"github.com/JaimeStill/kisaanseva/pkg/storage"
)

const (
	BaseConfigFile       = "config.toml"
	OverlayConfigPattern = "config.%s.toml"

	EnvKisaanConfig          = "KISAAN_CONFIG"
	EnvKisaanEnv             = "KISAAN_ENV"
	EnvKisaanShutdownTimeout = "KISAAN_SHUTDOWN_TIMEOUT"
	EnvKisaanVersion         = "KISAAN_VERSION"
)

var databaseEnv = &database.Env{
	Host:             "KISAAN_DB_HOST",
	Port:             "KISAAN_DB_PORT",
	Name:             "KISAAN_DB_NAME",
	User:             "KISAAN_DB_USER",
	Password:         "KISAAN_DB_PASSWORD",
	SSLMode:          "KISAAN_DB_SSL_MODE",
	MaxOpenConns:     "KISAAN_DB_MAX_OPEN_CONNS",
	MaxIdleConns:     "KISAAN_DB_MAX_IDLE_CONNS",
	ConnMaxLifetime:  "KISAAN_DB_CONN_MAX_LIFETIME",
	ConnMaxIdleTime:  "KISAAN_DB_CONN_MAX_IDLE_TIME",
	ConnTimeout:      "KISAAN_DB_CONN_TIMEOUT",
	StatementTimeout: "KISAAN_DB_STATEMENT_TIMEOUT",
	ApplicationName:  "KISAAN_DB_APPLICATION_NAME",
	HealthInterval:   "KISAAN_DB_HEALTH_INTERVAL",
}

var storageEnv = &storage.Env{
	ContainerName:     "KISAAN_STORAGE_CONTAINER_NAME",
	ConnectionString:  "KISAAN_STORAGE_CONNECTION_STRING",
	AccountURL:        "KISAAN_STORAGE_ACCOUNT_URL",
	MaxRetries:        "KISAAN_STORAGE_MAX_RETRIES",
	UploadConcurrency: "KISAAN_STORAGE_UPLOAD_CONCURRENCY",
}

var redisEnv = &cache.Env{
	Addr:        "KISAAN_REDIS_ADDR",
	Password:    "KISAAN_REDIS_PASSWORD",
	DB:          "KISAAN_REDIS_DB",
	DialTimeout: "KISAAN_REDIS_DIAL_TIMEOUT",
	KeyPrefix:   "KISAAN_REDIS_KEY_PREFIX",
}

var eventsEnv = &events.Env{
	Brokers:           "KISAAN_KAFKA_BROKERS",
	NotificationTopic: "KISAAN_KAFKA_NOTIFICATION_TOPIC",
	AuditTopic:        "KISAAN_KAFKA_AUDIT_TOPIC",
	BatchTimeout:      "KISAAN_KAFKA_BATCH_TIMEOUT",
	WriteTimeout:      "KISAAN_KAFKA_WRITE_TIMEOUT",
	Compression:       "KISAAN_KAFKA_COMPRESSION",
}

// Config is the root configuration for the KisaanSeva service.
type Config struct {
	Server          ServerConfig       `toml:"server"`
	Database        database.Config    `toml:"database"`
	Storage         storage.Config     `toml:"storage"`
	Redis           cache.Config       `toml:"redis"`
	Events          events.Config      `toml:"events"`
	API             APIConfig          `toml:"api"`
	Auth            AuthConfig         `toml:"auth"`
	Sessions        SessionsConfig     `toml:"sessions"`
	Fanout          FanoutConfig       `toml:"fanout"`
	Ingest          IngestConfig       `toml:"ingest"`
	Integrations    IntegrationsConfig `toml:"integrations"`
	ShutdownTimeout string             `toml:"shutdown_timeout"`
	Version         string             `toml:"version"`
}

// Env returns the KISAAN_ENV value, defaulting to "local".
func (c *Config) Env() string {
	if env := os.Getenv(EnvKisaanEnv); env != "" {
		return env
	}
	return "local"
}

// ShutdownTimeoutDuration returns ShutdownTimeout as a time.Duration.
func (c *Config) ShutdownTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ShutdownTimeout)
	return d
}

// Load reads the base file (KISAAN_CONFIG, else config.toml in the working
// directory) when it exists, merges the config.<env>.toml overlay beside it,
// and finalizes. Without a base file, defaults and the environment supply
// everything.
func Load() (*Config, error) {
	base := BaseConfigFile
	if v := os.Getenv(EnvKisaanConfig); v != "" {
		base = v
	}

	cfg := &Config{}
	switch _, err := os.Stat(base); {
	case err == nil:
		if cfg, err = load(base); err != nil {
			return nil, err
		}
	case base != BaseConfigFile:
		return nil, fmt.Errorf("config file %s: %w", base, err)
	}

	if path := overlayPath(filepath.Dir(base)); path != "" {
		overlay, err := load(path)
		if err != nil {
			return nil, fmt.Errorf("load overlay %s: %w", path, err)
		}
		cfg.Merge(overlay)
	}

	if err := cfg.Finalize(); err != nil {
		return nil, fmt.Errorf("finalize config: %w", err)
	}
	return cfg, nil
}

// Parse decodes TOML into a Config without finalizing it. Unknown keys are
// rejected so a misspelled setting does not silently fall back to its default.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, fmt.Errorf("parse config: %s", strict.String())
		}
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// Merge overwrites non-zero fields from overlay across all sections.
func (c *Config) Merge(overlay *Config) {
	if overlay.ShutdownTimeout != "" {
		c.ShutdownTimeout = overlay.ShutdownTimeout
	}
	if overlay.Version != "" {
		c.Version = overlay.Version
	}
	c.Server.Merge(&overlay.Server)
	c.Database.Merge(&overlay.Database)
	c.Storage.Merge(&overlay.Storage)
	c.Redis.Merge(&overlay.Redis)
	c.Events.Merge(&overlay.Events)
	c.API.Merge(&overlay.API)
	c.Auth.Merge(&overlay.Auth)
	c.Sessions.Merge(&overlay.Sessions)
	c.Fanout.Merge(&overlay.Fanout)
	c.Ingest.Merge(&overlay.Ingest)
	c.Integrations.Merge(&overlay.Integrations)
}

// Finalize settles every section and reports all invalid sections together.
func (c *Config) Finalize() error {
	c.loadDefaults()
	c.loadEnv()

	var errs []error
	for _, section := range []struct {
		name     string
		finalize func() error
	}{
		{"root", c.validate},
		{"server", c.Server.Finalize},
		{"database", func() error { return c.Database.Finalize(databaseEnv) }},
		{"storage", func() error { return c.Storage.Finalize(storageEnv) }},
		{"redis", func() error { return c.Redis.Finalize(redisEnv) }},
		{"events", func() error { return c.Events.Finalize(eventsEnv) }},
		{"api", c.API.Finalize},
		{"auth", c.Auth.Finalize},
		{"sessions", c.Sessions.Finalize},
		{"fanout", c.Fanout.Finalize},
		{"ingest", c.Ingest.Finalize},
		{"integrations", c.Integrations.Finalize},
	} {
		if err := section.finalize(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", section.name, err))
		}
	}
	return errors.Join(errs...)
}

func (c *Config) loadDefaults() {
	if c.ShutdownTimeout == "" {
		c.ShutdownTimeout = "30s"
	}
	if c.Version == "" {
		c.Version = "0.1.0"
	}
}

func (c *Config) loadEnv() {
	if v := os.Getenv(EnvKisaanShutdownTimeout); v != "" {
		c.ShutdownTimeout = v
	}
	if v := os.Getenv(EnvKisaanVersion); v != "" {
		c.Version = v
	}
}

func (c *Config) validate() error {
	if _, err := time.ParseDuration(c.ShutdownTimeout); err != nil {
		return fmt.Errorf("invalid shutdown_timeout: %w", err)
	}
	return nil
}

func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

func overlayPath(dir string) string {
	env := os.Getenv(EnvKisaanEnv)
	if env == "" {
		return ""
	}
	path := filepath.Join(dir, fmt.Sprintf(OverlayConfigPattern, env))
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}
