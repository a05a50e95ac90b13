package staging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/kisaanseva/internal/audit"
	"github.com/JaimeStill/kisaanseva/internal/schemes"
	"github.com/JaimeStill/kisaanseva/pkg/metrics"
	"github.com/JaimeStill/kisaanseva/pkg/pagination"
	"github.com/JaimeStill/kisaanseva/pkg/validation"
)

// Option configures the moderation engine.
type Option func(*repo)

// WithClock sets the engine's time source.
func WithClock(now func() time.Time) Option {
	return func(r *repo) {
		r.now = now
	}
}

type repo struct {
	store      Store
	dispatcher Dispatcher
	recorder   audit.Recorder
	now        func() time.Time
	logger     *slog.Logger
	pagination pagination.Config
}

// New creates the moderation engine. Approved items are published through
// store and fanned out by dispatcher after the publish commits.
func New(
	store Store,
	dispatcher Dispatcher,
	recorder audit.Recorder,
	logger *slog.Logger,
	pagination pagination.Config,
	opts ...Option,
) System {
	r := &repo{
		store:      store,
		dispatcher: dispatcher,
		recorder:   recorder,
		now:        time.Now,
		logger:     logger.With("system", "staging"),
		pagination: pagination,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *repo) Handler() *Handler {
	return NewHandler(r, r.logger, r.pagination)
}

func validate(c *schemes.Content) error {
	if err := validation.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidItem, err)
	}
	return nil
}

func (r *repo) Create(ctx context.Context, actor string, cmd CreateCommand) (*Item, error) {
	cmd.Content.Normalize()
	if err := validate(&cmd.Content); err != nil {
		return nil, err
	}

	source := strings.TrimSpace(cmd.Source)
	if source == "" {
		source = SourceManual
	}
	if err := validation.Var(source, sourceTag); err != nil {
		return nil, fmt.Errorf("%w: source: %v", ErrInvalidItem, err)
	}

	now := r.now().UTC()
	item := &Item{
		ID:        uuid.New(),
		Content:   cmd.Content,
		Source:    source,
		Status:    StatusPending,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if source != SourceManual {
		item.RawData = cmd.RawData
		if ref := strings.TrimSpace(cmd.SourceRef); ref != "" {
			item.SourceRef = &ref
		}
	}

	if err := r.store.Create(ctx, item); err != nil {
		return nil, fmt.Errorf("create staged item: %w", err)
	}

	metrics.StagingTransitions.WithLabelValues("created").Inc()
	r.audit(ctx, actor, "staging.created", item, map[string]any{"source": source})
	r.logger.Info("staged item created", "id", item.ID, "item_type", item.ItemType, "source", source)
	return item, nil
}

func (r *repo) Update(ctx context.Context, actor string, id uuid.UUID, cmd UpdateCommand) (*Item, error) {
	item, err := r.store.Update(ctx, id, func(i *Item) error {
		if i.Status != StatusPending {
			return ErrInvalidState
		}
		if cmd.Version != nil && *cmd.Version != i.Version {
			return ErrVersionConflict
		}

		cmd.apply(&i.Content)
		i.Content.Normalize()
		if err := validate(&i.Content); err != nil {
			return err
		}

		i.Version++
		i.UpdatedAt = r.now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.StagingTransitions.WithLabelValues("updated").Inc()
	r.audit(ctx, actor, "staging.updated", item, map[string]any{"version": item.Version})
	return item, nil
}

func (r *repo) review(actor string, cmd ReviewCommand) Review {
	reviewer := strings.TrimSpace(cmd.ReviewedBy)
	if reviewer == "" {
		reviewer = actor
	}
	rv := Review{Reviewer: reviewer, At: r.now().UTC()}
	if notes := strings.TrimSpace(cmd.ReviewNotes); notes != "" {
		rv.Notes = &notes
	}
	return rv
}

func (r *repo) Approve(ctx context.Context, actor string, id uuid.UUID, cmd ReviewCommand) (*Approval, error) {
	rv := r.review(actor, cmd)

	item, scheme, err := r.store.Approve(ctx, id, rv)
	if err != nil {
		if !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrInvalidState) {
			r.logger.Error("approve staged item failed", "id", id, "error", err)
		}
		return nil, err
	}

	metrics.StagingTransitions.WithLabelValues("approved").Inc()
	r.audit(ctx, actor, "staging.approved", item, map[string]any{
		"reviewed_by": rv.Reviewer,
		"scheme_id":   scheme.ID,
	})
	r.recorder.Record(ctx, audit.Event{
		Actor:       actor,
		Action:      "scheme.published",
		SubjectType: audit.SubjectScheme,
		SubjectID:   scheme.ID.String(),
		Details:     map[string]any{"staged_item_id": item.ID},
	})

	stats := r.dispatcher.Run(context.WithoutCancel(ctx), scheme)

	r.logger.Info("staged item approved",
		"id", item.ID,
		"scheme_id", scheme.ID,
		"reviewed_by", rv.Reviewer,
		"matched", stats.Matched,
		"notified", stats.Notified,
		"failed", stats.Failed,
	)

	return &Approval{
		Message:       fmt.Sprintf("Item approved and published. %d farmers notified.", stats.Notified),
		Item:          item,
		Scheme:        scheme,
		MatchingStats: stats,
	}, nil
}

func (r *repo) Reject(ctx context.Context, actor string, id uuid.UUID, cmd ReviewCommand) (*Rejection, error) {
	rv := r.review(actor, cmd)

	item, err := r.store.Reject(ctx, id, rv)
	if err != nil {
		return nil, err
	}

	metrics.StagingTransitions.WithLabelValues("rejected").Inc()
	r.audit(ctx, actor, "staging.rejected", item, map[string]any{"reviewed_by": rv.Reviewer})
	r.logger.Info("staged item rejected", "id", item.ID, "reviewed_by", rv.Reviewer)

	return &Rejection{Message: "Item rejected", Item: item}, nil
}

func (r *repo) Find(ctx context.Context, id uuid.UUID) (*Item, error) {
	return r.store.Find(ctx, id)
}

func (r *repo) List(
	ctx context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Item], error) {
	page.Normalize(r.pagination)
	return r.store.List(ctx, page, filters)
}

func (r *repo) PendingCount(ctx context.Context) (int, error) {
	return r.store.PendingCount(ctx)
}

func (r *repo) audit(ctx context.Context, actor, action string, i *Item, details map[string]any) {
	r.recorder.Record(ctx, audit.Event{
		Actor:       actor,
		Action:      action,
		SubjectType: audit.SubjectStagedItem,
		SubjectID:   i.ID.String(),
		Details:     details,
	})
}
