package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/kisaanseva/internal/farmers"
	"github.com/JaimeStill/kisaanseva/internal/forms"
	"github.com/JaimeStill/kisaanseva/internal/identity"
	"github.com/JaimeStill/kisaanseva/internal/schemes"
	"github.com/JaimeStill/kisaanseva/internal/sessions"
	"github.com/JaimeStill/kisaanseva/pkg/metrics"
	"github.com/JaimeStill/kisaanseva/pkg/storage"
)

// Option configures the gateway.
type Option func(*repo)

// WithClock sets the time source used to date generated forms.
func WithClock(now func() time.Time) Option {
	return func(r *repo) {
		r.now = now
	}
}

type repo struct {
	sessions  Sessions
	records   Records
	evaluator Evaluator
	catalog   Catalog
	forms     Forms
	now       func() time.Time
	logger    *slog.Logger
}

// New creates the data gateway.
func New(
	sessions Sessions,
	records Records,
	evaluator Evaluator,
	catalog Catalog,
	forms Forms,
	logger *slog.Logger,
	opts ...Option,
) System {
	r := &repo{
		sessions:  sessions,
		records:   records,
		evaluator: evaluator,
		catalog:   catalog,
		forms:     forms,
		now:       time.Now,
		logger:    logger.With("system", "gateway"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *repo) Handler(basePath string) *Handler {
	return NewHandler(r, r.logger, basePath)
}

func (r *repo) Authorize(ctx context.Context, sessionID uuid.UUID, farmerID string) (*Scope, error) {
	_, scope, err := r.authorize(ctx, sessionID, farmerID)
	return scope, err
}

func (r *repo) authorize(ctx context.Context, sessionID uuid.UUID, farmerID string) (*sessions.Session, *Scope, error) {
	s, err := r.sessions.Authorize(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sessions.ErrNotFound) || errors.Is(err, sessions.ErrInactive) {
			return nil, nil, r.deny(sessionID, "session not active")
		}
		r.logger.Error("session authorization failed", "session_id", sessionID, "error", err)
		metrics.GatewayDecisions.WithLabelValues("error").Inc()
		return nil, nil, ErrUnauthorized
	}

	if farmerID != "" && farmerID != s.FarmerID {
		return nil, nil, r.deny(sessionID, "farmer mismatch")
	}

	if p, ok := identity.FromContext(ctx); ok {
		if p.Role != identity.RoleAgent || p.AgentID != s.AgentID {
			return nil, nil, r.deny(sessionID, "agent mismatch")
		}
	}

	metrics.GatewayDecisions.WithLabelValues("allowed").Inc()
	return s, &Scope{
		SessionID: s.SessionID,
		FarmerID:  s.FarmerID,
		AgentID:   s.AgentID,
		ExpiresAt: *s.ExpiresAt,
	}, nil
}

func (r *repo) deny(sessionID uuid.UUID, reason string) error {
	r.logger.Warn("gateway access denied", "session_id", sessionID, "reason", reason)
	metrics.GatewayDecisions.WithLabelValues("denied").Inc()
	return ErrUnauthorized
}

// record notes a read on the session before any data is released.
func (r *repo) record(ctx context.Context, scope *Scope, action, detail string) error {
	err := r.sessions.RecordAction(ctx, scope.SessionID, action, detail)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sessions.ErrInactive) {
		r.logger.Error("record session action failed", "session_id", scope.SessionID, "action", action, "error", err)
	}
	return ErrUnauthorized
}

func (r *repo) Farmer(ctx context.Context, sessionID uuid.UUID, farmerID string) (*FarmerView, error) {
	_, scope, err := r.authorize(ctx, sessionID, farmerID)
	if err != nil {
		return nil, err
	}
	if err := r.record(ctx, scope, ActionViewFarmer, ""); err != nil {
		return nil, err
	}

	f, err := r.records.Record(ctx, scope.FarmerID)
	if err != nil {
		return nil, fmt.Errorf("load farmer record: %w", err)
	}

	return &FarmerView{Farmer: *f, Schemes: r.matches(ctx, f)}, nil
}

// matches joins eligibility verdicts with the published catalog. Matching
// failures degrade to an empty list.
func (r *repo) matches(ctx context.Context, f *farmers.Farmer) []SchemeMatch {
	result := make([]SchemeMatch, 0)

	verdicts, err := r.evaluator.Evaluate(ctx, f)
	if err != nil {
		r.logger.Warn("eligibility evaluation unavailable", "farmer_id", f.FarmerID, "error", err)
		return result
	}

	ids := make([]uuid.UUID, 0, len(verdicts))
	for _, v := range verdicts {
		ids = append(ids, v.SchemeID)
	}
	catalog, err := r.catalog.Lookup(ctx, ids)
	if err != nil {
		r.logger.Warn("catalog lookup failed", "farmer_id", f.FarmerID, "error", err)
		return result
	}

	for _, v := range verdicts {
		s, ok := catalog[v.SchemeID]
		if !ok {
			continue
		}
		result = append(result, SchemeMatch{
			Scheme:         s,
			Eligibility:    v.Status,
			Score:          v.Score,
			MatchedRules:   nonNil(v.MatchedRules),
			UnmatchedRules: nonNil(v.UnmatchedRules),
		})
	}
	return result
}

func (r *repo) GenerateForm(ctx context.Context, sessionID uuid.UUID, cmd FormCommand) (*FormResult, error) {
	if cmd.SchemeID == uuid.Nil {
		return nil, fmt.Errorf("%w: scheme_id is required", ErrInvalidRequest)
	}

	s, scope, err := r.authorize(ctx, sessionID, "")
	if err != nil {
		return nil, err
	}

	scheme, err := r.catalog.Find(ctx, cmd.SchemeID)
	if err != nil {
		return nil, err
	}
	if !scheme.IsActive {
		return nil, schemes.ErrNotFound
	}
	if err := r.record(ctx, scope, ActionGenerateForm, scheme.ID.String()); err != nil {
		return nil, err
	}

	f, err := r.records.Record(ctx, scope.FarmerID)
	if err != nil {
		return nil, fmt.Errorf("load farmer record: %w", err)
	}

	at := r.now()
	gen, err := r.forms.Generate(ctx, forms.Request{
		Farmer:    f,
		Scheme:    scheme,
		AgentName: s.AgentName,
		SessionID: scope.SessionID,
		At:        at,
	})
	if err != nil {
		return nil, err
	}

	err = r.sessions.RecordForm(ctx, scope.SessionID, sessions.Form{
		FileKey:  gen.FileKey,
		FileName: gen.FileName,
		SchemeID: scheme.ID.String(),
		At:       at,
	})
	if err != nil {
		if rmErr := r.forms.Remove(context.WithoutCancel(ctx), gen.FileKey); rmErr != nil {
			r.logger.Error("remove orphaned form failed", "file_key", gen.FileKey, "error", rmErr)
		}
		if errors.Is(err, sessions.ErrInactive) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("record form: %w", err)
	}

	return &FormResult{
		FileKey:  gen.FileKey,
		FileName: gen.FileName,
		Message:  "Form generated successfully",
	}, nil
}

func (r *repo) OpenForm(ctx context.Context, sessionID uuid.UUID, name string) (*storage.Blob, error) {
	s, scope, err := r.authorize(ctx, sessionID, "")
	if err != nil {
		return nil, err
	}

	if name == "" || path.Base(name) != name {
		return nil, forms.ErrNotFound
	}
	issued := slices.ContainsFunc(s.Forms, func(f sessions.Form) bool {
		return f.FileName == name
	})
	if !issued {
		return nil, forms.ErrNotFound
	}

	if err := r.record(ctx, scope, ActionDownloadForm, name); err != nil {
		return nil, err
	}

	return r.forms.Open(ctx, forms.Key(scope.FarmerID, scope.SessionID, name))
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
