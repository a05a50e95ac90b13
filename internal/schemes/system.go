package schemes

import (
	"context"

	"github.com/google/uuid"

	"github.com/JaimeStill/kisaanseva/pkg/pagination"
)

// System defines the public contract for the published catalog.
type System interface {
	Store

	Handler() *Handler
	Browse(ctx context.Context, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Scheme], error)
	Lookup(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Scheme, error)
}
