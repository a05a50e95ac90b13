package identity

import (
	"context"

	"github.com/google/uuid"
)

// System defines the public contract for authentication operations.
type System interface {
	Handler() *Handler

	Login(ctx context.Context, cmd LoginCommand) (*TokenPair, error)
	Refresh(ctx context.Context, cmd RefreshCommand) (*TokenPair, error)
	Logout(ctx context.Context, p *Principal) error
	Authenticate(ctx context.Context, raw string) (*Principal, error)
	FindAgent(ctx context.Context, id uuid.UUID) (*Agent, error)
}
