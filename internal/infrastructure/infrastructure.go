// Package infrastructure provides core service initialization for application startup.
// It assembles common dependencies (logging, database, storage, cache, events)
// that domain systems require.
package infrastructure

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/JaimeStill/kisaanseva/internal/config"
	"github.com/JaimeStill/kisaanseva/pkg/cache"
	"github.com/JaimeStill/kisaanseva/pkg/database"
	"github.com/JaimeStill/kisaanseva/pkg/events"
	"github.com/JaimeStill/kisaanseva/pkg/lifecycle"
	"github.com/JaimeStill/kisaanseva/pkg/storage"
)

// Infrastructure holds the core systems required by all domain modules.
// Cache is nil when Redis is not configured. Events always publishes:
// to Kafka when brokers are configured, otherwise to the log.
type Infrastructure struct {
	Lifecycle *lifecycle.Coordinator
	Logger    *slog.Logger
	Database  database.System
	Storage   storage.System
	Cache     cache.System
	Events    events.Publisher

	starters []starter
}

type starter interface {
	Start(lc *lifecycle.Coordinator) error
}

// New creates an Infrastructure from the application configuration.
// It initializes all systems but does not start them; call Start separately.
func New(cfg *config.Config) (*Infrastructure, error) {
	lc := lifecycle.New()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	db, err := database.New(&cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("database init failed: %w", err)
	}

	infra := &Infrastructure{
		Lifecycle: lc,
		Logger:    logger,
		Database:  db,
		starters:  []starter{db},
	}

	if cfg.Storage.Enabled() {
		store, err := storage.New(&cfg.Storage, logger)
		if err != nil {
			return nil, fmt.Errorf("storage init failed: %w", err)
		}
		infra.Storage = store
	} else {
		logger.Warn("blob storage not configured, generated forms are kept in memory")
		infra.Storage = storage.NewMemory()
	}
	infra.starters = append(infra.starters, infra.Storage)

	if cfg.Redis.Enabled() {
		c, err := cache.New(&cfg.Redis, logger)
		if err != nil {
			return nil, fmt.Errorf("cache init failed: %w", err)
		}
		infra.Cache = c
		infra.starters = append(infra.starters, c)
	}

	if cfg.Events.Enabled() {
		ev, err := events.New(&cfg.Events, logger)
		if err != nil {
			return nil, fmt.Errorf("events init failed: %w", err)
		}
		infra.Events = ev
		infra.starters = append(infra.starters, ev)
	} else {
		infra.Events = events.NewLogPublisher(logger)
	}

	return infra, nil
}

// Start registers all infrastructure systems with the lifecycle coordinator.
func (i *Infrastructure) Start() error {
	for _, s := range i.starters {
		if err := s.Start(i.Lifecycle); err != nil {
			return fmt.Errorf("%T start failed: %w", s, err)
		}
	}
	return nil
}

// Ready reports whether every readiness-aware system is ready to serve.
func (i *Infrastructure) Ready() bool {
	if !i.Lifecycle.Ready() || !i.Database.Ready() {
		return false
	}
	if i.Cache != nil && !i.Cache.Ready() {
		return false
	}
	return true
}
