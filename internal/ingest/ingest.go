// Package ingest pulls scheme records from open data sources into the
// moderation queue. Nothing ingested is published until a reviewer approves
// it.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/JaimeStill/kisaanseva/internal/staging"
	"github.com/JaimeStill/kisaanseva/pkg/lifecycle"
	"github.com/JaimeStill/kisaanseva/pkg/metrics"
)

// Connector fetches records from one source, already shaped as staging
// commands.
type Connector interface {
	Name() string
	Fetch(ctx context.Context) ([]staging.CreateCommand, error)
}

// Stager accepts new items into the moderation queue.
type Stager interface {
	Create(ctx context.Context, actor string, cmd staging.CreateCommand) (*staging.Item, error)
}

// Result counts what one run did per outcome.
type Result struct {
	Fetched int `json:"fetched"`
	Staged  int `json:"staged"`
	Skipped int `json:"skipped"`
	Invalid int `json:"invalid"`
	Failed  int `json:"failed"`
}

// Syncer runs every connector and stages what they return.
type Syncer struct {
	stager     Stager
	connectors []Connector
	logger     *slog.Logger
}

// New creates a Syncer over connectors.
func New(stager Stager, logger *slog.Logger, connectors ...Connector) *Syncer {
	return &Syncer{
		stager:     stager,
		connectors: connectors,
		logger:     logger.With("module", "ingest"),
	}
}

// Start schedules Run on the coordinator at interval. A Syncer without
// connectors schedules nothing.
func (s *Syncer) Start(lc *lifecycle.Coordinator, interval time.Duration) {
	if len(s.connectors) == 0 {
		s.logger.Info("no ingest connectors configured")
		return
	}
	s.logger.Info("starting ingest", "interval", interval, "connectors", len(s.connectors))
	lc.Every(interval, func(ctx context.Context) {
		if _, err := s.Run(ctx); err != nil {
			s.logger.Error("ingest run failed", "error", err)
		}
	})
}

// Run fetches from every connector and stages each record. A connector that
// fails to fetch is logged and skipped; records already staged are counted
// as skipped. Errors from the staging store end the run.
func (s *Syncer) Run(ctx context.Context) (Result, error) {
	var total Result
	for _, c := range s.connectors {
		r, err := s.run(ctx, c)
		total.Fetched += r.Fetched
		total.Staged += r.Staged
		total.Skipped += r.Skipped
		total.Invalid += r.Invalid
		total.Failed += r.Failed
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (s *Syncer) run(ctx context.Context, c Connector) (Result, error) {
	var r Result
	source := c.Name()
	logger := s.logger.With("source", source)

	cmds, err := c.Fetch(ctx)
	if err != nil {
		r.Failed++
		metrics.IngestRecords.WithLabelValues(source, "fetch_failed").Inc()
		logger.Warn("fetch failed", "error", err)
		return r, nil
	}
	r.Fetched = len(cmds)

	for _, cmd := range cmds {
		_, err := s.stager.Create(ctx, "ingest:"+source, cmd)
		switch {
		case err == nil:
			r.Staged++
			metrics.IngestRecords.WithLabelValues(source, "staged").Inc()
		case errors.Is(err, staging.ErrDuplicate):
			r.Skipped++
			metrics.IngestRecords.WithLabelValues(source, "duplicate").Inc()
		case errors.Is(err, staging.ErrInvalidItem):
			r.Invalid++
			metrics.IngestRecords.WithLabelValues(source, "invalid").Inc()
			logger.Debug("record rejected", "name", cmd.NameEn, "error", err)
		default:
			return r, fmt.Errorf("stage %s record: %w", source, err)
		}
	}

	logger.Info("ingest complete",
		"fetched", r.Fetched,
		"staged", r.Staged,
		"skipped", r.Skipped,
		"invalid", r.Invalid,
	)
	return r, nil
}
