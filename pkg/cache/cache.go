// Package cache provides a lifecycle-managed Redis client.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/redis/go-redis/v9"

	"github.com/JaimeStill/kisaanseva/pkg/lifecycle"
)

// System manages a Redis connection and lifecycle coordination.
type System interface {
	lifecycle.ReadinessChecker

	// Client returns the underlying go-redis client.
	Client() *redis.Client
	// Key joins parts under the configured key prefix.
	Key(parts ...string) string
	// Ping checks that Redis is reachable.
	Ping(ctx context.Context) error
	// Start registers startup and shutdown hooks with the coordinator.
	Start(lc *lifecycle.Coordinator) error
}

type cache struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
	ready  atomic.Bool
}

// New creates a cache system from the given configuration.
// No connection is attempted until Start is called.
func New(cfg *Config, logger *slog.Logger) (System, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("redis addr required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeoutDuration(),
	})

	return &cache{
		client: client,
		prefix: cfg.KeyPrefix,
		logger: logger.With("system", "cache"),
	}, nil
}

func (c *cache) Client() *redis.Client {
	return c.client
}

func (c *cache) Key(parts ...string) string {
	return c.prefix + ":" + strings.Join(parts, ":")
}

func (c *cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *cache) Ready() bool {
	return c.ready.Load()
}

func (c *cache) Start(lc *lifecycle.Coordinator) error {
	c.logger.Info("starting cache connection")

	lc.OnStartup(func() {
		if err := c.Ping(lc.Context()); err != nil {
			c.logger.Error("cache ping failed", "error", err)
			return
		}
		c.ready.Store(true)
		c.logger.Info("cache connection established", "addr", c.client.Options().Addr)
	})

	lc.OnShutdown(func() {
		<-lc.Context().Done()
		c.ready.Store(false)
		c.logger.Info("closing cache connection")
		if err := c.client.Close(); err != nil {
			c.logger.Error("cache close failed", "error", err)
		}
	})

	return nil
}
