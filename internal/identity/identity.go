// Package identity authenticates field agents and farmers. It issues and
// verifies bearer tokens, rotates refresh tokens, and carries the resolved
// Principal on the request context.
package identity

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Role distinguishes the kinds of callers the API serves.
type Role string

const (
	RoleAgent  Role = "agent"
	RoleFarmer Role = "farmer"
)

// Principal is the authenticated caller of a request.
// AgentID is set for agents; FarmerID is set for farmers.
type Principal struct {
	Subject  string    `json:"subject"`
	Role     Role      `json:"role"`
	AgentID  uuid.UUID `json:"agent_id,omitzero"`
	FarmerID string    `json:"farmer_id,omitempty"`
	Name     string    `json:"name,omitempty"`
	Center   string    `json:"center,omitempty"`
}

// Agent is a field operator at a service center.
type Agent struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone"`
	CenterName   string    `json:"center_name"`
	CenterCode   string    `json:"center_code"`
	CenterType   string    `json:"center_type"`
	IsActive     bool      `json:"is_active"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Principal returns the agent as an authenticated caller.
func (a *Agent) Principal() Principal {
	return Principal{
		Subject: a.ID.String(),
		Role:    RoleAgent,
		AgentID: a.ID,
		Name:    a.Name,
		Center:  a.CenterName,
	}
}

// LoginCommand carries agent credentials.
type LoginCommand struct {
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

// RefreshCommand carries a refresh token to exchange.
type RefreshCommand struct {
	RefreshToken string `json:"refresh_token"`
}

// TokenPair is the result of a login or refresh.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	AgentName    string    `json:"agent_name,omitempty"`
	CenterName   string    `json:"center_name,omitempty"`
}

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal stored on ctx, if any.
func FromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}
