package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/kisaanseva/pkg/events"
	"github.com/JaimeStill/kisaanseva/pkg/pagination"
)

type repo struct {
	store      Store
	publisher  events.Publisher
	topic      string
	now        func() time.Time
	logger     *slog.Logger
	pagination pagination.Config
}

// New creates the audit system. Events are stored and then published to
// topic on publisher.
func New(
	store Store,
	publisher events.Publisher,
	topic string,
	logger *slog.Logger,
	pagination pagination.Config,
) System {
	return &repo{
		store:      store,
		publisher:  publisher,
		topic:      topic,
		now:        time.Now,
		logger:     logger.With("system", "audit"),
		pagination: pagination,
	}
}

func (r *repo) Handler() *Handler {
	return NewHandler(r, r.logger, r.pagination)
}

func (r *repo) Record(ctx context.Context, e Event) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = r.now().UTC()
	}

	if err := r.store.Insert(ctx, e); err != nil {
		r.logger.Error("audit insert failed",
			"action", e.Action,
			"subject_type", e.SubjectType,
			"subject_id", e.SubjectID,
			"error", err,
		)
	}

	msg := events.Message{
		Topic: r.topic,
		Key:   e.SubjectType + ":" + e.SubjectID,
		Value: e,
		Headers: map[string]string{
			"action": e.Action,
		},
	}
	if err := r.publisher.Publish(ctx, msg); err != nil {
		r.logger.Warn("audit publish failed", "action", e.Action, "error", err)
	}
}

func (r *repo) List(
	ctx context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Event], error) {
	page.Normalize(r.pagination)
	return r.store.List(ctx, page, filters)
}
