package config

import (
	"fmt"
	"net/url"
	"os"
	"time"
)

const (
	EnvMatchingURL     = "KISAAN_MATCHING_URL"
	EnvMatchingTimeout = "KISAAN_MATCHING_TIMEOUT"
	EnvSMSURL          = "KISAAN_SMS_URL"
	EnvSMSAuthKey      = "KISAAN_SMS_AUTH_KEY"
	EnvSMSSender       = "KISAAN_SMS_SENDER"
	EnvSMSTimeout      = "KISAAN_SMS_TIMEOUT"
)

// IntegrationsConfig holds endpoints of external collaborators.
// An empty SMS URL logs messages instead of sending them; an empty matching
// URL reports the matching service as unavailable.
type IntegrationsConfig struct {
	MatchingURL     string `toml:"matching_url"`
	MatchingTimeout string `toml:"matching_timeout"`
	SMSURL          string `toml:"sms_url"`
	SMSAuthKey      string `toml:"sms_auth_key"`
	SMSSender       string `toml:"sms_sender"`
	SMSTimeout      string `toml:"sms_timeout"`
}

// MatchingTimeoutDuration returns MatchingTimeout as a time.Duration.
func (c *IntegrationsConfig) MatchingTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.MatchingTimeout)
	return d
}

// SMSTimeoutDuration returns SMSTimeout as a time.Duration.
func (c *IntegrationsConfig) SMSTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.SMSTimeout)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *IntegrationsConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *IntegrationsConfig) Merge(overlay *IntegrationsConfig) {
	if overlay.MatchingURL != "" {
		c.MatchingURL = overlay.MatchingURL
	}
	if overlay.MatchingTimeout != "" {
		c.MatchingTimeout = overlay.MatchingTimeout
	}
	if overlay.SMSURL != "" {
		c.SMSURL = overlay.SMSURL
	}
	if overlay.SMSAuthKey != "" {
		c.SMSAuthKey = overlay.SMSAuthKey
	}
	if overlay.SMSSender != "" {
		c.SMSSender = overlay.SMSSender
	}
	if overlay.SMSTimeout != "" {
		c.SMSTimeout = overlay.SMSTimeout
	}
}

func (c *IntegrationsConfig) loadDefaults() {
	if c.MatchingTimeout == "" {
		c.MatchingTimeout = "10s"
	}
	if c.SMSSender == "" {
		c.SMSSender = "KISAAN"
	}
	if c.SMSTimeout == "" {
		c.SMSTimeout = "10s"
	}
}

func (c *IntegrationsConfig) loadEnv() {
	if v := os.Getenv(EnvMatchingURL); v != "" {
		c.MatchingURL = v
	}
	if v := os.Getenv(EnvMatchingTimeout); v != "" {
		c.MatchingTimeout = v
	}
	if v := os.Getenv(EnvSMSURL); v != "" {
		c.SMSURL = v
	}
	if v := os.Getenv(EnvSMSAuthKey); v != "" {
		c.SMSAuthKey = v
	}
	if v := os.Getenv(EnvSMSSender); v != "" {
		c.SMSSender = v
	}
	if v := os.Getenv(EnvSMSTimeout); v != "" {
		c.SMSTimeout = v
	}
}

func (c *IntegrationsConfig) validate() error {
	for name, value := range map[string]string{
		"matching_url": c.MatchingURL,
		"sms_url":      c.SMSURL,
	} {
		if value == "" {
			continue
		}
		if _, err := url.ParseRequestURI(value); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	if _, err := time.ParseDuration(c.MatchingTimeout); err != nil {
		return fmt.Errorf("invalid matching_timeout: %w", err)
	}
	if _, err := time.ParseDuration(c.SMSTimeout); err != nil {
		return fmt.Errorf("invalid sms_timeout: %w", err)
	}
	return nil
}
