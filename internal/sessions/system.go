package sessions

import (
	"context"

	"github.com/google/uuid"

	"github.com/JaimeStill/kisaanseva/internal/farmers"
	"github.com/JaimeStill/kisaanseva/internal/identity"
	"github.com/JaimeStill/kisaanseva/pkg/pagination"
)

// Farmers resolves the farmer an agent asks to access.
type Farmers interface {
	Resolve(ctx context.Context, q string) (*farmers.Farmer, error)
}

// Agents resolves the requesting agent.
type Agents interface {
	FindAgent(ctx context.Context, id uuid.UUID) (*identity.Agent, error)
}

// Sender delivers the consent message to the farmer's registered phone.
type Sender interface {
	Send(ctx context.Context, phone, message string) error
}

// System defines the public contract for access session operations.
type System interface {
	Handler() *Handler

	RequestAccess(ctx context.Context, agentID uuid.UUID, cmd RequestCommand) (*Challenge, error)
	VerifyAccess(ctx context.Context, agentID uuid.UUID, cmd VerifyCommand) (*Verification, error)
	Find(ctx context.Context, agentID, sessionID uuid.UUID) (*Detail, error)
	End(ctx context.Context, agentID, sessionID uuid.UUID) (*Closure, error)
	Revoke(ctx context.Context, farmerID string, sessionID uuid.UUID) (*Closure, error)

	// Authorize returns the session when it is active and within its window.
	Authorize(ctx context.Context, sessionID uuid.UUID) (*Session, error)
	RecordAction(ctx context.Context, sessionID uuid.UUID, action, detail string) error
	RecordForm(ctx context.Context, sessionID uuid.UUID, form Form) error

	Activity(ctx context.Context, agentID uuid.UUID, page pagination.PageRequest) (*pagination.PageResult[LogEntry], error)
	AccessLog(ctx context.Context, farmerID string, page pagination.PageRequest) (*pagination.PageResult[LogEntry], error)

	// Sweep expires every overdue open session.
	Sweep(ctx context.Context) (int, error)
}
