package staging

import (
	"context"

	"github.com/google/uuid"

	"github.com/JaimeStill/kisaanseva/internal/fanout"
	"github.com/JaimeStill/kisaanseva/internal/schemes"
	"github.com/JaimeStill/kisaanseva/pkg/pagination"
)

// Dispatcher runs notification fan-out for a newly published record.
type Dispatcher interface {
	Run(ctx context.Context, s *schemes.Scheme) fanout.Stats
}

// System defines the public contract for the moderation workflow.
type System interface {
	Handler() *Handler

	Create(ctx context.Context, actor string, cmd CreateCommand) (*Item, error)
	Update(ctx context.Context, actor string, id uuid.UUID, cmd UpdateCommand) (*Item, error)
	Approve(ctx context.Context, actor string, id uuid.UUID, cmd ReviewCommand) (*Approval, error)
	Reject(ctx context.Context, actor string, id uuid.UUID, cmd ReviewCommand) (*Rejection, error)

	Find(ctx context.Context, id uuid.UUID) (*Item, error)
	List(ctx context.Context, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Item], error)
	PendingCount(ctx context.Context) (int, error)
}
