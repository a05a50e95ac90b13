// Package database owns the PostgreSQL pool and tracks whether it can serve.
package database

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/JaimeStill/kisaanseva/pkg/lifecycle"
)

// connectAttempts bounds the startup pings before the pool is left unready
// for the health probe to recover.
const connectAttempts = 5

var ErrNotReady = errors.New("database not ready")

// System is the shared connection pool.
type System interface {
	lifecycle.ReadinessChecker
	Connection() *sql.DB
	// Ping checks the pool, failing with ErrNotReady until the first
	// successful connect.
	Ping(ctx context.Context) error
	// Start connects on startup, probes health until shutdown, then closes
	// the pool.
	Start(lc *lifecycle.Coordinator) error
}

type database struct {
	conn           *sql.DB
	logger         *slog.Logger
	connTimeout    time.Duration
	healthInterval time.Duration
	ready          atomic.Bool
}

// New opens a lazy pgx pool; nothing is dialed until Start.
func New(cfg *Config, logger *slog.Logger) (System, error) {
	cc, err := cfg.ConnConfig()
	if err != nil {
		return nil, err
	}

	db := stdlib.OpenDB(*cc)
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetimeDuration())
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTimeDuration())

	return &database{
		conn:           db,
		logger:         logger.With("system", "database", "host", cfg.Host, "name", cfg.Name),
		connTimeout:    cfg.ConnTimeoutDuration(),
		healthInterval: cfg.HealthIntervalDuration(),
	}, nil
}

func (d *database) Connection() *sql.DB { return d.conn }

func (d *database) Ready() bool { return d.ready.Load() }

func (d *database) Ping(ctx context.Context) error {
	if !d.ready.Load() {
		return ErrNotReady
	}
	return d.ping(ctx)
}

func (d *database) ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, d.connTimeout)
	defer cancel()
	return d.conn.PingContext(ctx)
}

func (d *database) Start(lc *lifecycle.Coordinator) error {
	lc.OnStartup(func() {
		d.connect(lc.Context())
	})

	lc.Every(d.healthInterval, d.probe)

	lc.OnShutdown(func() {
		<-lc.Context().Done()
		d.ready.Store(false)
		if err := d.conn.Close(); err != nil {
			d.logger.Error("database close failed", "error", err)
			return
		}
		d.logger.Info("database connection closed")
	})

	return nil
}

// connect pings with doubling backoff until the pool answers, the attempts
// run out, or ctx ends.
func (d *database) connect(ctx context.Context) {
	wait := 250 * time.Millisecond
	for attempt := 1; ; attempt++ {
		began := time.Now()
		err := d.ping(ctx)
		if err == nil {
			d.ready.Store(true)
			d.logger.Info("database connection established", "latency", time.Since(began), "attempt", attempt)
			return
		}
		if attempt == connectAttempts {
			d.logger.Error("database unreachable", "error", err, "attempts", attempt)
			return
		}

		d.logger.Warn("database ping failed", "error", err, "attempt", attempt, "retry_in", wait)
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
		wait *= 2
	}
}

func (d *database) probe(ctx context.Context) {
	err := d.ping(ctx)
	up := err == nil
	if d.ready.Swap(up) == up {
		return
	}
	if up {
		d.logger.Info("database connection recovered")
	} else {
		d.logger.Warn("database connection lost", "error", err)
	}
}
