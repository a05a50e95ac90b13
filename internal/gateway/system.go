package gateway

import (
	"context"

	"github.com/google/uuid"

	"github.com/JaimeStill/kisaanseva/internal/farmers"
	"github.com/JaimeStill/kisaanseva/internal/forms"
	"github.com/JaimeStill/kisaanseva/internal/matching"
	"github.com/JaimeStill/kisaanseva/internal/schemes"
	"github.com/JaimeStill/kisaanseva/internal/sessions"
	"github.com/JaimeStill/kisaanseva/pkg/storage"
)

// Sessions is the part of the session manager the gateway depends on.
type Sessions interface {
	Authorize(ctx context.Context, sessionID uuid.UUID) (*sessions.Session, error)
	RecordAction(ctx context.Context, sessionID uuid.UUID, action, detail string) error
	RecordForm(ctx context.Context, sessionID uuid.UUID, form sessions.Form) error
}

// Records loads full farmer records.
type Records interface {
	Record(ctx context.Context, farmerID string) (*farmers.Farmer, error)
}

// Evaluator produces eligibility verdicts for a farmer.
type Evaluator interface {
	Evaluate(ctx context.Context, f *farmers.Farmer) ([]matching.Verdict, error)
}

// Catalog resolves published records.
type Catalog interface {
	Find(ctx context.Context, id uuid.UUID) (*schemes.Scheme, error)
	Lookup(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*schemes.Scheme, error)
}

// Forms renders and stores application forms.
type Forms interface {
	Generate(ctx context.Context, req forms.Request) (*forms.Generated, error)
	Open(ctx context.Context, key string) (*storage.Blob, error)
	Remove(ctx context.Context, key string) error
}

// System defines the public contract for session-scoped data access.
type System interface {
	Handler(basePath string) *Handler

	// Authorize admits a caller to farmerID's data under sessionID. An empty
	// farmerID admits the session's own farmer.
	Authorize(ctx context.Context, sessionID uuid.UUID, farmerID string) (*Scope, error)
	Farmer(ctx context.Context, sessionID uuid.UUID, farmerID string) (*FarmerView, error)
	GenerateForm(ctx context.Context, sessionID uuid.UUID, cmd FormCommand) (*FormResult, error)
	OpenForm(ctx context.Context, sessionID uuid.UUID, name string) (*storage.Blob, error)
}
