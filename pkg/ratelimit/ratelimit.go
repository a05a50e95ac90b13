// Package ratelimit provides fixed-budget limiters keyed by caller-defined strings.
package ratelimit

import (
	"context"
	"time"
)

// Decision reports the outcome of a single Allow call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter admits at most limit events per window for each key.
// A non-positive limit admits everything.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error)
}
