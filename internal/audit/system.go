package audit

import (
	"context"

	"github.com/JaimeStill/kisaanseva/pkg/pagination"
)

// System defines the public contract for the audit trail.
type System interface {
	Recorder

	Handler() *Handler
	List(ctx context.Context, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Event], error)
}
