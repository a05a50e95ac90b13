package schemes

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/JaimeStill/kisaanseva/pkg/pagination"
)

type repo struct {
	Store
	logger     *slog.Logger
	pagination pagination.Config
}

// New creates the catalog system over store.
func New(store Store, logger *slog.Logger, pagination pagination.Config) System {
	return &repo{
		Store:      store,
		logger:     logger.With("system", "schemes"),
		pagination: pagination,
	}
}

func (r *repo) Handler() *Handler {
	return NewHandler(r, r.logger, r.pagination)
}

func (r *repo) Browse(
	ctx context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Scheme], error) {
	page.Normalize(r.pagination)
	return r.Store.List(ctx, page, filters)
}

// Lookup resolves published records by id, skipping ids that are unknown or
// withdrawn.
func (r *repo) Lookup(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Scheme, error) {
	found := make(map[uuid.UUID]*Scheme, len(ids))
	for _, id := range ids {
		if _, ok := found[id]; ok {
			continue
		}
		s, err := r.Store.Find(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if s.IsActive {
			found[id] = s
		}
	}
	return found, nil
}
