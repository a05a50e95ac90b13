package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// dummyHash is compared against when the phone is unknown so that failed
// logins take the same time whether or not the account exists.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("kisaanseva"), bcrypt.DefaultCost)

type repo struct {
	agents  AgentStore
	signer  *Signer
	refresh RefreshStore
	oidc    *OIDCVerifier
	logger  *slog.Logger
}

// New creates the identity system. oidc may be nil.
func New(
	agents AgentStore,
	signer *Signer,
	refresh RefreshStore,
	oidc *OIDCVerifier,
	logger *slog.Logger,
) System {
	return &repo{
		agents:  agents,
		signer:  signer,
		refresh: refresh,
		oidc:    oidc,
		logger:  logger.With("system", "identity"),
	}
}

func (r *repo) Handler() *Handler {
	return NewHandler(r, r.logger)
}

func (r *repo) Login(ctx context.Context, cmd LoginCommand) (*TokenPair, error) {
	if cmd.Phone == "" || cmd.Password == "" {
		return nil, ErrInvalidCredentials
	}

	agent, err := r.agents.FindAgentByPhone(ctx, cmd.Phone)
	if err != nil {
		if errors.Is(err, ErrAgentNotFound) {
			bcrypt.CompareHashAndPassword(dummyHash, []byte(cmd.Password))
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("find agent: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(agent.PasswordHash), []byte(cmd.Password)) != nil {
		return nil, ErrInvalidCredentials
	}
	if !agent.IsActive {
		return nil, ErrAgentInactive
	}

	pair, err := r.issuePair(ctx, agent.Principal())
	if err != nil {
		return nil, err
	}
	pair.AgentName = agent.Name
	pair.CenterName = agent.CenterName

	r.logger.Info("agent logged in", "agent_id", agent.ID, "center", agent.CenterCode)
	return pair, nil
}

func (r *repo) Refresh(ctx context.Context, cmd RefreshCommand) (*TokenPair, error) {
	claims, err := r.signer.ParseRefresh(cmd.RefreshToken)
	if err != nil {
		return nil, err
	}

	ok, err := r.refresh.Consume(ctx, claims.Subject, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("consume refresh token: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: refresh token revoked or already used", ErrInvalidToken)
	}

	p, err := claims.principal()
	if err != nil {
		return nil, err
	}

	if p.Role == RoleAgent {
		agent, err := r.agents.FindAgent(ctx, p.AgentID)
		if err != nil {
			if errors.Is(err, ErrAgentNotFound) {
				return nil, ErrInvalidToken
			}
			return nil, fmt.Errorf("find agent: %w", err)
		}
		if !agent.IsActive {
			return nil, ErrAgentInactive
		}
		fresh := agent.Principal()
		p = &fresh
	}

	pair, err := r.issuePair(ctx, *p)
	if err != nil {
		return nil, err
	}
	pair.AgentName = p.Name
	pair.CenterName = p.Center
	return pair, nil
}

func (r *repo) Logout(ctx context.Context, p *Principal) error {
	if p == nil {
		return ErrMissingToken
	}
	if err := r.refresh.Revoke(ctx, p.Subject); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	r.logger.Info("logged out", "subject", p.Subject, "role", p.Role)
	return nil
}

func (r *repo) Authenticate(ctx context.Context, raw string) (*Principal, error) {
	if raw == "" {
		return nil, ErrMissingToken
	}

	p, err := r.signer.ParseAccess(raw)
	if err == nil {
		return p, nil
	}
	if r.oidc == nil {
		return nil, err
	}
	return r.oidc.Verify(ctx, raw)
}

func (r *repo) FindAgent(ctx context.Context, id uuid.UUID) (*Agent, error) {
	return r.agents.FindAgent(ctx, id)
}

func (r *repo) issuePair(ctx context.Context, p Principal) (*TokenPair, error) {
	access, expires, err := r.signer.IssueAccess(p)
	if err != nil {
		return nil, err
	}

	tokenID := uuid.NewString()
	refresh, _, err := r.signer.IssueRefresh(p, tokenID)
	if err != nil {
		return nil, err
	}
	if err := r.refresh.Save(ctx, p.Subject, tokenID, r.signer.RefreshTTL()); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresAt:    expires,
	}, nil
}
