package fanout

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/JaimeStill/kisaanseva/internal/schemes"
	"github.com/JaimeStill/kisaanseva/pkg/lifecycle"
)

const retryBatch = 20

// Source lists published records whose fan-out must be re-driven.
type Source interface {
	PendingFanout(ctx context.Context, cutoff time.Time, maxAttempts, limit int) ([]schemes.Scheme, error)
}

// Worker re-drives fan-out for records left pending or failed.
type Worker struct {
	source     Source
	dispatcher *Dispatcher
	cfg        Config
	now        func() time.Time
	logger     *slog.Logger
}

// NewWorker creates a retry worker over source.
func NewWorker(source Source, dispatcher *Dispatcher, cfg Config, logger *slog.Logger) *Worker {
	return &Worker{
		source:     source,
		dispatcher: dispatcher,
		cfg:        cfg,
		now:        time.Now,
		logger:     logger.With("module", "fanout-worker"),
	}
}

// Start schedules Tick on the coordinator at the retry interval.
func (w *Worker) Start(lc *lifecycle.Coordinator) {
	w.logger.Info("starting fanout retry worker", "interval", w.cfg.RetryInterval)
	lc.Every(w.cfg.RetryInterval, func(ctx context.Context) {
		if _, err := w.Tick(ctx); err != nil {
			w.logger.Error("fanout retry failed", "error", err)
		}
	})
}

// Tick re-drives one batch of records and returns how many were run.
// Records published within the last run timeout are skipped so a run still
// in flight after approval is not duplicated.
func (w *Worker) Tick(ctx context.Context) (int, error) {
	cutoff := w.now().Add(-w.cfg.Timeout)
	pending, err := w.source.PendingFanout(ctx, cutoff, w.cfg.MaxAttempts, retryBatch)
	if err != nil {
		return 0, fmt.Errorf("list pending fanout: %w", err)
	}

	for i := range pending {
		if ctx.Err() != nil {
			return i, ctx.Err()
		}
		s := &pending[i]
		w.logger.Info("re-driving fanout",
			"scheme_id", s.ID,
			"attempts", s.Fanout.Attempts,
			"status", s.Fanout.Status,
		)
		w.dispatcher.Run(ctx, s)
	}
	return len(pending), nil
}
