package identity

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"

	"github.com/JaimeStill/kisaanseva/pkg/lifecycle"
)

type oidcClaims struct {
	Sub      string `json:"sub"`
	Name     string `json:"name"`
	Role     Role   `json:"role"`
	AgentID  string `json:"agent_id"`
	FarmerID string `json:"farmer_id"`
	Center   string `json:"center"`
}

// OIDCVerifier validates ID tokens from an external identity provider.
// Provider discovery runs during startup; until then every token is rejected.
type OIDCVerifier struct {
	issuer   string
	clientID string
	verifier atomic.Pointer[oidc.IDTokenVerifier]
	logger   *slog.Logger
}

// NewOIDCVerifier creates a verifier for the given issuer and client.
func NewOIDCVerifier(issuer, clientID string, logger *slog.Logger) *OIDCVerifier {
	return &OIDCVerifier{
		issuer:   issuer,
		clientID: clientID,
		logger:   logger.With("system", "oidc"),
	}
}

// Start registers provider discovery as a startup hook.
func (v *OIDCVerifier) Start(lc *lifecycle.Coordinator) {
	lc.OnStartup(func() {
		if _, err := v.discover(lc.Context()); err != nil {
			v.logger.Error("oidc provider discovery failed", "issuer", v.issuer, "error", err)
		}
	})
}

func (v *OIDCVerifier) discover(ctx context.Context) (*oidc.IDTokenVerifier, error) {
	provider, err := oidc.NewProvider(ctx, v.issuer)
	if err != nil {
		return nil, err
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: v.clientID})
	v.verifier.Store(verifier)
	v.logger.Info("oidc provider ready", "issuer", v.issuer)
	return verifier, nil
}

// Verify validates raw and maps its claims to a Principal. If discovery
// has not succeeded yet it is retried with the request context.
func (v *OIDCVerifier) Verify(ctx context.Context, raw string) (*Principal, error) {
	verifier := v.verifier.Load()
	if verifier == nil {
		var err error
		if verifier, err = v.discover(ctx); err != nil {
			return nil, fmt.Errorf("%w: oidc provider unavailable: %v", ErrInvalidToken, err)
		}
	}

	token, err := verifier.Verify(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	var claims oidcClaims
	if err := token.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: parse claims: %v", ErrInvalidToken, err)
	}

	p := &Principal{
		Subject:  claims.Sub,
		Role:     claims.Role,
		Name:     claims.Name,
		Center:   claims.Center,
		FarmerID: claims.FarmerID,
	}

	switch claims.Role {
	case RoleAgent:
		id, err := uuid.Parse(claims.AgentID)
		if err != nil {
			return nil, fmt.Errorf("%w: agent_id claim", ErrInvalidToken)
		}
		p.AgentID = id
	case RoleFarmer:
		if p.FarmerID == "" {
			return nil, fmt.Errorf("%w: farmer_id claim", ErrInvalidToken)
		}
	default:
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}

	return p, nil
}
