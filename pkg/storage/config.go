package storage

import (
	"errors"
	"fmt"
	"os"
	"strconv"
)

// Config selects the blob backend. A connection string targets Azurite or a
// keyed account; an account URL signs in through the default Azure credential
// chain. With neither set the in-process store is used.
type Config struct {
	ContainerName     string `toml:"container_name"`
	ConnectionString  string `toml:"connection_string"`
	AccountURL        string `toml:"account_url"`
	MaxRetries        int    `toml:"max_retries"`
	UploadConcurrency int    `toml:"upload_concurrency"`
}

// Env names the environment variables that override Config.
type Env struct {
	ContainerName     string
	ConnectionString  string
	AccountURL        string
	MaxRetries        string
	UploadConcurrency string
}

// Enabled reports whether an Azure endpoint is configured.
func (c *Config) Enabled() bool {
	return c.ConnectionString != "" || c.AccountURL != ""
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *Config) Finalize(env *Env) error {
	if c.ContainerName == "" {
		c.ContainerName = "forms"
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.UploadConcurrency == 0 {
		c.UploadConcurrency = 2
	}
	if env != nil {
		if err := c.loadEnv(env); err != nil {
			return err
		}
	}
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *Config) Merge(overlay *Config) {
	for dst, src := range map[*string]string{
		&c.ContainerName:    overlay.ContainerName,
		&c.ConnectionString: overlay.ConnectionString,
		&c.AccountURL:       overlay.AccountURL,
	} {
		if src != "" {
			*dst = src
		}
	}
	if overlay.MaxRetries != 0 {
		c.MaxRetries = overlay.MaxRetries
	}
	if overlay.UploadConcurrency != 0 {
		c.UploadConcurrency = overlay.UploadConcurrency
	}
}

func (c *Config) loadEnv(env *Env) error {
	for dst, name := range map[*string]string{
		&c.ContainerName:    env.ContainerName,
		&c.ConnectionString: env.ConnectionString,
		&c.AccountURL:       env.AccountURL,
	} {
		if v := getenv(name); v != "" {
			*dst = v
		}
	}
	for dst, name := range map[*int]string{
		&c.MaxRetries:        env.MaxRetries,
		&c.UploadConcurrency: env.UploadConcurrency,
	} {
		v := getenv(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*dst = n
	}
	return nil
}

func (c *Config) validate() error {
	var errs []error
	if c.ConnectionString != "" && c.AccountURL != "" {
		errs = append(errs, errors.New("connection_string and account_url are mutually exclusive"))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("max_retries must not be negative, got %d", c.MaxRetries))
	}
	if c.UploadConcurrency < 1 {
		errs = append(errs, fmt.Errorf("upload_concurrency must be positive, got %d", c.UploadConcurrency))
	}
	return errors.Join(errs...)
}

func getenv(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}
