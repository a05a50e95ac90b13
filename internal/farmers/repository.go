package farmers

import (
	"context"
	"log/slog"
	"strings"

	"github.com/JaimeStill/kisaanseva/pkg/formatting"
)

type repo struct {
	Store
	logger *slog.Logger
}

// New creates the farmer directory system over store.
func New(store Store, logger *slog.Logger) System {
	return &repo{
		Store:  store,
		logger: logger.With("system", "farmers"),
	}
}

func (r *repo) Handler() *Handler {
	return NewHandler(r, r.logger)
}

func (r *repo) Lookup(ctx context.Context, q string) (*Summary, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, ErrInvalidQuery
	}

	f, err := r.Resolve(ctx, q)
	if err != nil {
		return nil, err
	}

	return &Summary{
		FarmerID:    f.FarmerID,
		Name:        f.Name,
		PhoneMasked: formatting.MaskPhone(f.Phone),
		District:    f.District,
		State:       f.State,
	}, nil
}
