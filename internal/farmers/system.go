package farmers

import "context"

// System defines the public contract for farmer directory operations.
type System interface {
	Store

	Handler() *Handler
	Lookup(ctx context.Context, q string) (*Summary, error)
}
