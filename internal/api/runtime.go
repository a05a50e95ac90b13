package api

import (
	"log/slog"
	"time"

	"github.com/JaimeStill/kisaanseva/internal/config"
	"github.com/JaimeStill/kisaanseva/internal/identity"
	"github.com/JaimeStill/kisaanseva/internal/infrastructure"
	"github.com/JaimeStill/kisaanseva/pkg/cache"
	"github.com/JaimeStill/kisaanseva/pkg/database"
	"github.com/JaimeStill/kisaanseva/pkg/events"
	"github.com/JaimeStill/kisaanseva/pkg/lifecycle"
	"github.com/JaimeStill/kisaanseva/pkg/pagination"
	"github.com/JaimeStill/kisaanseva/pkg/ratelimit"
	"github.com/JaimeStill/kisaanseva/pkg/storage"
)

// Runtime is the slice of infrastructure the domain systems are built from.
// Cache is nil when Redis is not configured; the Redis-or-memory choices are
// made here so domain code never branches on it.
type Runtime struct {
	Lifecycle  *lifecycle.Coordinator
	Logger     *slog.Logger
	Database   database.System
	Storage    storage.System
	Cache      cache.System
	Events     events.Publisher
	Pagination pagination.Config
	Now        func() time.Time
}

func NewRuntime(cfg *config.Config, infra *infrastructure.Infrastructure) *Runtime {
	return &Runtime{
		Lifecycle:  infra.Lifecycle,
		Logger:     infra.Logger.With("module", "api"),
		Database:   infra.Database,
		Storage:    infra.Storage,
		Cache:      infra.Cache,
		Events:     infra.Events,
		Pagination: cfg.API.Pagination,
		Now:        time.Now,
	}
}

// Limiter counts OTP requests in Redis so every replica shares one budget.
func (r *Runtime) Limiter() ratelimit.Limiter {
	if r.Cache == nil {
		return ratelimit.NewMemory(r.Now)
	}
	return ratelimit.NewRedis(r.Cache.Client(), r.Now)
}

// RefreshStore tracks issued refresh tokens.
func (r *Runtime) RefreshStore() identity.RefreshStore {
	if r.Cache == nil {
		return identity.NewMemoryRefreshStore(r.Now)
	}
	c := r.Cache
	return identity.NewRedisRefreshStore(c.Client(), func(subject string) string {
		return c.Key("refresh", subject)
	})
}
