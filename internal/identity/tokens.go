package identity

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	useAccess  = "access"
	useRefresh = "refresh"
)

// Claims are the JWT claims carried by locally issued tokens.
type Claims struct {
	Role     Role   `json:"role"`
	Use      string `json:"use"`
	Name     string `json:"name,omitempty"`
	Center   string `json:"center,omitempty"`
	FarmerID string `json:"farmer_id,omitempty"`
	jwt.RegisteredClaims
}

// Signer issues and parses HS256 tokens.
type Signer struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewSigner creates a Signer. A nil now uses time.Now.
func NewSigner(secret, issuer string, accessTTL, refreshTTL time.Duration, now func() time.Time) *Signer {
	if now == nil {
		now = time.Now
	}
	return &Signer{
		secret:     []byte(secret),
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        now,
	}
}

// RefreshTTL returns the refresh token lifetime.
func (s *Signer) RefreshTTL() time.Duration {
	return s.refreshTTL
}

// IssueAccess mints an access token for p.
func (s *Signer) IssueAccess(p Principal) (string, time.Time, error) {
	return s.issue(p, useAccess, s.accessTTL, uuid.NewString())
}

// IssueRefresh mints a refresh token for p identified by tokenID.
func (s *Signer) IssueRefresh(p Principal, tokenID string) (string, time.Time, error) {
	return s.issue(p, useRefresh, s.refreshTTL, tokenID)
}

// ParseAccess validates an access token and returns its principal.
func (s *Signer) ParseAccess(raw string) (*Principal, error) {
	claims, err := s.parse(raw, useAccess)
	if err != nil {
		return nil, err
	}
	return claims.principal()
}

// ParseRefresh validates a refresh token and returns its claims.
func (s *Signer) ParseRefresh(raw string) (*Claims, error) {
	return s.parse(raw, useRefresh)
}

func (s *Signer) issue(p Principal, use string, ttl time.Duration, tokenID string) (string, time.Time, error) {
	now := s.now()
	expires := now.Add(ttl)

	claims := Claims{
		Role:     p.Role,
		Use:      use,
		Name:     p.Name,
		Center:   p.Center,
		FarmerID: p.FarmerID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			Subject:   p.Subject,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", use, err)
	}
	return signed, expires, nil
}

func (s *Signer) parse(raw, use string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(
		raw,
		claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Use != use {
		return nil, fmt.Errorf("%w: expected %s token", ErrInvalidToken, use)
	}
	return claims, nil
}

func (c *Claims) principal() (*Principal, error) {
	p := &Principal{
		Subject:  c.Subject,
		Role:     c.Role,
		Name:     c.Name,
		Center:   c.Center,
		FarmerID: c.FarmerID,
	}

	switch c.Role {
	case RoleAgent:
		id, err := uuid.Parse(c.Subject)
		if err != nil {
			return nil, fmt.Errorf("%w: agent subject", ErrInvalidToken)
		}
		p.AgentID = id
	case RoleFarmer:
		if p.FarmerID == "" {
			p.FarmerID = c.Subject
		}
	default:
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, c.Role)
	}

	return p, nil
}
