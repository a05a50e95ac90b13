package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	EnvSessionsSessionTTL     = "KISAAN_SESSIONS_SESSION_TTL"
	EnvSessionsChallengeTTL   = "KISAAN_SESSIONS_CHALLENGE_TTL"
	EnvSessionsMaxOTPAttempts = "KISAAN_SESSIONS_MAX_OTP_ATTEMPTS"
	EnvSessionsSweepInterval  = "KISAAN_SESSIONS_SWEEP_INTERVAL"
	EnvSessionsOTPLength      = "KISAAN_SESSIONS_OTP_LENGTH"
	EnvSessionsOTPRateLimit   = "KISAAN_SESSIONS_OTP_RATE_LIMIT"
	EnvSessionsOTPRateWindow  = "KISAAN_SESSIONS_OTP_RATE_WINDOW"
	EnvSessionsOTPSecret      = "KISAAN_SESSIONS_OTP_SECRET"
)

// SessionsConfig holds the access session policy: TTLs, OTP bounds, and sweep cadence.
type SessionsConfig struct {
	SessionTTL     string `toml:"session_ttl"`
	ChallengeTTL   string `toml:"challenge_ttl"`
	MaxOTPAttempts int    `toml:"max_otp_attempts"`
	SweepInterval  string `toml:"sweep_interval"`
	OTPLength      int    `toml:"otp_length"`
	OTPRateLimit   int    `toml:"otp_rate_limit"`
	OTPRateWindow  string `toml:"otp_rate_window"`
	OTPSecret      string `toml:"otp_secret"`
}

// SessionTTLDuration returns SessionTTL as a time.Duration.
func (c *SessionsConfig) SessionTTLDuration() time.Duration {
	d, _ := time.ParseDuration(c.SessionTTL)
	return d
}

// ChallengeTTLDuration returns ChallengeTTL as a time.Duration.
func (c *SessionsConfig) ChallengeTTLDuration() time.Duration {
	d, _ := time.ParseDuration(c.ChallengeTTL)
	return d
}

// SweepIntervalDuration returns SweepInterval as a time.Duration.
func (c *SessionsConfig) SweepIntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.SweepInterval)
	return d
}

// OTPRateWindowDuration returns OTPRateWindow as a time.Duration.
func (c *SessionsConfig) OTPRateWindowDuration() time.Duration {
	d, _ := time.ParseDuration(c.OTPRateWindow)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *SessionsConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *SessionsConfig) Merge(overlay *SessionsConfig) {
	if overlay.SessionTTL != "" {
		c.SessionTTL = overlay.SessionTTL
	}
	if overlay.ChallengeTTL != "" {
		c.ChallengeTTL = overlay.ChallengeTTL
	}
	if overlay.MaxOTPAttempts != 0 {
		c.MaxOTPAttempts = overlay.MaxOTPAttempts
	}
	if overlay.SweepInterval != "" {
		c.SweepInterval = overlay.SweepInterval
	}
	if overlay.OTPLength != 0 {
		c.OTPLength = overlay.OTPLength
	}
	if overlay.OTPRateLimit != 0 {
		c.OTPRateLimit = overlay.OTPRateLimit
	}
	if overlay.OTPRateWindow != "" {
		c.OTPRateWindow = overlay.OTPRateWindow
	}
	if overlay.OTPSecret != "" {
		c.OTPSecret = overlay.OTPSecret
	}
}

func (c *SessionsConfig) loadDefaults() {
	if c.SessionTTL == "" {
		c.SessionTTL = "30m"
	}
	if c.ChallengeTTL == "" {
		c.ChallengeTTL = "5m"
	}
	if c.MaxOTPAttempts == 0 {
		c.MaxOTPAttempts = 5
	}
	if c.SweepInterval == "" {
		c.SweepInterval = "1m"
	}
	if c.OTPLength == 0 {
		c.OTPLength = 6
	}
	if c.OTPRateLimit == 0 {
		c.OTPRateLimit = 5
	}
	if c.OTPRateWindow == "" {
		c.OTPRateWindow = "1h"
	}
}

func (c *SessionsConfig) loadEnv() {
	if v := os.Getenv(EnvSessionsSessionTTL); v != "" {
		c.SessionTTL = v
	}
	if v := os.Getenv(EnvSessionsChallengeTTL); v != "" {
		c.ChallengeTTL = v
	}
	if v := os.Getenv(EnvSessionsMaxOTPAttempts); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxOTPAttempts = n
		}
	}
	if v := os.Getenv(EnvSessionsSweepInterval); v != "" {
		c.SweepInterval = v
	}
	if v := os.Getenv(EnvSessionsOTPLength); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.OTPLength = n
		}
	}
	if v := os.Getenv(EnvSessionsOTPRateLimit); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.OTPRateLimit = n
		}
	}
	if v := os.Getenv(EnvSessionsOTPRateWindow); v != "" {
		c.OTPRateWindow = v
	}
	if v := os.Getenv(EnvSessionsOTPSecret); v != "" {
		c.OTPSecret = v
	}
}

func (c *SessionsConfig) validate() error {
	for name, value := range map[string]string{
		"session_ttl":     c.SessionTTL,
		"challenge_ttl":   c.ChallengeTTL,
		"sweep_interval":  c.SweepInterval,
		"otp_rate_window": c.OTPRateWindow,
	} {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.MaxOTPAttempts < 1 {
		return fmt.Errorf("max_otp_attempts must be at least 1")
	}
	if c.OTPLength < 4 || c.OTPLength > 10 {
		return fmt.Errorf("otp_length must be between 4 and 10")
	}
	if c.OTPSecret == "" {
		return fmt.Errorf("otp_secret required")
	}
	return nil
}
