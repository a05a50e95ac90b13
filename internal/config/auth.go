package config

import (
	"fmt"
	"os"
	"time"
)

const (
	EnvAuthJWTSecret       = "KISAAN_AUTH_JWT_SECRET"
	EnvAuthIssuer          = "KISAAN_AUTH_ISSUER"
	EnvAuthAccessTokenTTL  = "KISAAN_AUTH_ACCESS_TOKEN_TTL"
	EnvAuthRefreshTokenTTL = "KISAAN_AUTH_REFRESH_TOKEN_TTL"
	EnvAuthOIDCIssuer      = "KISAAN_AUTH_OIDC_ISSUER"
	EnvAuthOIDCClientID    = "KISAAN_AUTH_OIDC_CLIENT_ID"
)

// AuthConfig holds token signing and verification settings.
// When OIDCIssuer is set, bearer tokens minted by that provider are accepted
// alongside locally signed tokens.
type AuthConfig struct {
	JWTSecret       string `toml:"jwt_secret"`
	Issuer          string `toml:"issuer"`
	AccessTokenTTL  string `toml:"access_token_ttl"`
	RefreshTokenTTL string `toml:"refresh_token_ttl"`
	OIDCIssuer      string `toml:"oidc_issuer"`
	OIDCClientID    string `toml:"oidc_client_id"`
}

// AccessTokenTTLDuration returns AccessTokenTTL as a time.Duration.
func (c *AuthConfig) AccessTokenTTLDuration() time.Duration {
	d, _ := time.ParseDuration(c.AccessTokenTTL)
	return d
}

// RefreshTokenTTLDuration returns RefreshTokenTTL as a time.Duration.
func (c *AuthConfig) RefreshTokenTTLDuration() time.Duration {
	d, _ := time.ParseDuration(c.RefreshTokenTTL)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *AuthConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *AuthConfig) Merge(overlay *AuthConfig) {
	if overlay.JWTSecret != "" {
		c.JWTSecret = overlay.JWTSecret
	}
	if overlay.Issuer != "" {
		c.Issuer = overlay.Issuer
	}
	if overlay.AccessTokenTTL != "" {
		c.AccessTokenTTL = overlay.AccessTokenTTL
	}
	if overlay.RefreshTokenTTL != "" {
		c.RefreshTokenTTL = overlay.RefreshTokenTTL
	}
	if overlay.OIDCIssuer != "" {
		c.OIDCIssuer = overlay.OIDCIssuer
	}
	if overlay.OIDCClientID != "" {
		c.OIDCClientID = overlay.OIDCClientID
	}
}

func (c *AuthConfig) loadDefaults() {
	if c.Issuer == "" {
		c.Issuer = "kisaanseva"
	}
	if c.AccessTokenTTL == "" {
		c.AccessTokenTTL = "30m"
	}
	if c.RefreshTokenTTL == "" {
		c.RefreshTokenTTL = "168h"
	}
}

func (c *AuthConfig) loadEnv() {
	if v := os.Getenv(EnvAuthJWTSecret); v != "" {
		c.JWTSecret = v
	}
	if v := os.Getenv(EnvAuthIssuer); v != "" {
		c.Issuer = v
	}
	if v := os.Getenv(EnvAuthAccessTokenTTL); v != "" {
		c.AccessTokenTTL = v
	}
	if v := os.Getenv(EnvAuthRefreshTokenTTL); v != "" {
		c.RefreshTokenTTL = v
	}
	if v := os.Getenv(EnvAuthOIDCIssuer); v != "" {
		c.OIDCIssuer = v
	}
	if v := os.Getenv(EnvAuthOIDCClientID); v != "" {
		c.OIDCClientID = v
	}
}

func (c *AuthConfig) validate() error {
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("jwt_secret must be at least 32 bytes")
	}
	if _, err := time.ParseDuration(c.AccessTokenTTL); err != nil {
		return fmt.Errorf("invalid access_token_ttl: %w", err)
	}
	if _, err := time.ParseDuration(c.RefreshTokenTTL); err != nil {
		return fmt.Errorf("invalid refresh_token_ttl: %w", err)
	}
	if c.OIDCIssuer != "" && c.OIDCClientID == "" {
		return fmt.Errorf("oidc_client_id required with oidc_issuer")
	}
	return nil
}
