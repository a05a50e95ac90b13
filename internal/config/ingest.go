package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	EnvIngestDataGovURL       = "KISAAN_INGEST_DATA_GOV_URL"
	EnvIngestDataGovAPIKey    = "KISAAN_INGEST_DATA_GOV_API_KEY"
	EnvIngestDataGovResources = "KISAAN_INGEST_DATA_GOV_RESOURCES"
	EnvIngestLimit            = "KISAAN_INGEST_LIMIT"
	EnvIngestTimeout          = "KISAAN_INGEST_TIMEOUT"
	EnvIngestInterval         = "KISAAN_INGEST_INTERVAL"
)

// IngestConfig holds the scheduled pull of scheme records from open data
// portals into the moderation queue. An empty API key disables the pull.
type IngestConfig struct {
	DataGovURL       string   `toml:"data_gov_url"`
	DataGovAPIKey    string   `toml:"data_gov_api_key"`
	DataGovResources []string `toml:"data_gov_resources"`
	Limit            int      `toml:"limit"`
	Timeout          string   `toml:"timeout"`
	Interval         string   `toml:"interval"`
}

// Enabled reports whether the data.gov.in connector has credentials.
func (c *IngestConfig) Enabled() bool {
	return c.DataGovAPIKey != ""
}

// TimeoutDuration returns Timeout as a time.Duration.
func (c *IngestConfig) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

// IntervalDuration returns Interval as a time.Duration.
func (c *IngestConfig) IntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.Interval)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *IngestConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *IngestConfig) Merge(overlay *IngestConfig) {
	if overlay.DataGovURL != "" {
		c.DataGovURL = overlay.DataGovURL
	}
	if overlay.DataGovAPIKey != "" {
		c.DataGovAPIKey = overlay.DataGovAPIKey
	}
	if overlay.DataGovResources != nil {
		c.DataGovResources = overlay.DataGovResources
	}
	if overlay.Limit != 0 {
		c.Limit = overlay.Limit
	}
	if overlay.Timeout != "" {
		c.Timeout = overlay.Timeout
	}
	if overlay.Interval != "" {
		c.Interval = overlay.Interval
	}
}

func (c *IngestConfig) loadDefaults() {
	if c.DataGovURL == "" {
		c.DataGovURL = "https://api.data.gov.in/resource"
	}
	if c.DataGovResources == nil {
		c.DataGovResources = []string{
			"352b9082-b85a-4c47-a33c-54a7e29a3ec5",
			"9ef84268-d588-465a-a308-a864a43d0070",
		}
	}
	if c.Limit == 0 {
		c.Limit = 100
	}
	if c.Timeout == "" {
		c.Timeout = "20s"
	}
	if c.Interval == "" {
		c.Interval = "168h"
	}
}

func (c *IngestConfig) loadEnv() {
	if v := os.Getenv(EnvIngestDataGovURL); v != "" {
		c.DataGovURL = v
	}
	if v := os.Getenv(EnvIngestDataGovAPIKey); v != "" {
		c.DataGovAPIKey = v
	}
	if v := os.Getenv(EnvIngestDataGovResources); v != "" {
		c.DataGovResources = splitList(v)
	}
	if v := os.Getenv(EnvIngestLimit); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Limit = n
		}
	}
	if v := os.Getenv(EnvIngestTimeout); v != "" {
		c.Timeout = v
	}
	if v := os.Getenv(EnvIngestInterval); v != "" {
		c.Interval = v
	}
}

func (c *IngestConfig) validate() error {
	if _, err := url.ParseRequestURI(c.DataGovURL); err != nil {
		return fmt.Errorf("invalid data_gov_url: %w", err)
	}
	if c.Limit < 1 {
		return fmt.Errorf("limit must be at least 1")
	}
	if _, err := time.ParseDuration(c.Timeout); err != nil {
		return fmt.Errorf("invalid timeout: %w", err)
	}
	d, err := time.ParseDuration(c.Interval)
	if err != nil {
		return fmt.Errorf("invalid interval: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("interval must be positive")
	}
	if c.Enabled() && len(c.DataGovResources) == 0 {
		return fmt.Errorf("data_gov_resources must not be empty when the api key is set")
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for part := range strings.SplitSeq(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
