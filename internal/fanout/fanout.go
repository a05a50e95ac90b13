// Package fanout delivers notices for a newly published scheme to every
// farmer the matching service selects, and re-drives runs that did not
// complete.
package fanout

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/JaimeStill/kisaanseva/internal/matching"
	"github.com/JaimeStill/kisaanseva/internal/notifications"
	"github.com/JaimeStill/kisaanseva/internal/schemes"
	"github.com/JaimeStill/kisaanseva/pkg/metrics"
)

// Config bounds a fan-out run.
type Config struct {
	BatchSize     int
	Concurrency   int
	Timeout       time.Duration
	RetryInterval time.Duration
	MaxAttempts   int
}

// Stats summarizes a fan-out run.
type Stats struct {
	Matched  int `json:"matched"`
	Notified int `json:"notified"`
	Failed   int `json:"failed"`
}

// Matcher selects the farmers a published item applies to.
type Matcher interface {
	MatchFarmers(ctx context.Context, c matching.Content) ([]string, error)
}

// Recorder persists the outcome of a run on the published record, and the
// farmers each completed batch reached so that a re-driven run skips them.
type Recorder interface {
	RecordFanout(ctx context.Context, id uuid.UUID, o schemes.Outcome) error
	Delivered(ctx context.Context, id uuid.UUID) ([]string, error)
	RecordDelivered(ctx context.Context, id uuid.UUID, farmerIDs []string, at time.Time) error
}

// Dispatcher runs fan-out for published records.
type Dispatcher struct {
	matcher  Matcher
	notifier notifications.Notifier
	recorder Recorder
	cfg      Config
	now      func() time.Time
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(
	matcher Matcher,
	notifier notifications.Notifier,
	recorder Recorder,
	cfg Config,
	logger *slog.Logger,
) *Dispatcher {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 100
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Dispatcher{
		matcher:  matcher,
		notifier: notifier,
		recorder: recorder,
		cfg:      cfg,
		now:      time.Now,
		logger:   logger.With("module", "fanout"),
	}
}

// Run matches and notifies farmers for s. Batch failures are counted, not
// returned, and the outcome is recorded on the published record even when
// ctx is done.
func (d *Dispatcher) Run(ctx context.Context, s *schemes.Scheme) Stats {
	start := d.now()
	if d.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
	}

	var stats Stats
	outcome := schemes.Outcome{Status: schemes.FanoutComplete}

	ids, err := d.matcher.MatchFarmers(ctx, content(s))
	if err != nil {
		outcome.Status = schemes.FanoutFailed
		outcome.Error = fmt.Sprintf("match farmers: %v", err)
		d.logger.Warn("fanout matching failed", "scheme_id", s.ID, "error", err)
	} else if delivered, err := d.recorder.Delivered(ctx, s.ID); err != nil {
		stats.Matched = len(ids)
		stats.Failed = len(ids)
		outcome.Status = schemes.FanoutFailed
		outcome.Error = fmt.Sprintf("load deliveries: %v", err)
		d.logger.Warn("fanout deliveries unavailable", "scheme_id", s.ID, "error", err)
	} else {
		stats = d.notify(ctx, s, ids, delivered)
		if stats.Failed > 0 {
			outcome.Status = schemes.FanoutFailed
			outcome.Error = fmt.Sprintf("%d of %d notifications failed", stats.Failed, stats.Matched)
		}
	}

	outcome.Matched = stats.Matched
	outcome.Notified = stats.Notified
	outcome.Failed = stats.Failed
	outcome.At = d.now()

	if err := d.recorder.RecordFanout(context.WithoutCancel(ctx), s.ID, outcome); err != nil {
		d.logger.Error("record fanout outcome failed", "scheme_id", s.ID, "error", err)
	}

	metrics.FanoutFarmers.WithLabelValues("matched").Add(float64(stats.Matched))
	metrics.FanoutFarmers.WithLabelValues("notified").Add(float64(stats.Notified))
	metrics.FanoutFarmers.WithLabelValues("failed").Add(float64(stats.Failed))
	metrics.FanoutDuration.Observe(d.now().Sub(start).Seconds())

	d.logger.Info("fanout complete",
		"scheme_id", s.ID,
		"status", outcome.Status,
		"matched", stats.Matched,
		"notified", stats.Notified,
		"failed", stats.Failed,
	)
	return stats
}

// notify sends the notice to every matched farmer not already delivered to.
// A batch is recorded as delivered only when all of it went out, so a retry
// resends partially delivered batches and nothing else.
func (d *Dispatcher) notify(ctx context.Context, s *schemes.Scheme, ids, delivered []string) Stats {
	stats := Stats{Matched: len(ids)}
	notice := noticeFor(s)

	done := make(map[string]struct{}, len(delivered))
	for _, id := range delivered {
		done[id] = struct{}{}
	}
	remaining := slices.DeleteFunc(slices.Clone(ids), func(id string) bool {
		_, ok := done[id]
		return ok
	})
	stats.Notified = len(ids) - len(remaining)
	if stats.Notified > 0 {
		d.logger.Info("skipping farmers already notified", "scheme_id", s.ID, "count", stats.Notified)
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(d.cfg.Concurrency)

	for batch := range slices.Chunk(remaining, d.cfg.BatchSize) {
		g.Go(func() error {
			sent, err := d.notifier.Notify(ctx, batch, notice)
			if err != nil {
				d.logger.Warn("notification batch failed",
					"scheme_id", s.ID, "batch", len(batch), "error", err)
			}
			sent = min(max(sent, 0), len(batch))

			if err == nil && sent == len(batch) {
				if err := d.recorder.RecordDelivered(context.WithoutCancel(ctx), s.ID, batch, d.now()); err != nil {
					d.logger.Error("record fanout batch failed", "scheme_id", s.ID, "error", err)
				}
			}

			mu.Lock()
			defer mu.Unlock()
			stats.Notified += sent
			stats.Failed += len(batch) - sent
			return nil
		})
	}
	_ = g.Wait()

	return stats
}

func content(s *schemes.Scheme) matching.Content {
	c := matching.Content{
		SchemeID: s.ID,
		ItemType: s.ItemType,
		Name:     s.NameEn,
		Rules:    make([]matching.Rule, 0, len(s.Rules)),
	}
	if s.TargetState != nil {
		c.TargetState = *s.TargetState
	}
	for _, r := range s.Rules {
		c.Rules = append(c.Rules, matching.Rule{
			RuleType:    r.RuleType,
			RuleValue:   r.RuleValue,
			IsMandatory: r.IsMandatory,
		})
	}
	return c
}

func noticeFor(s *schemes.Scheme) notifications.Notice {
	n := notifications.Notice{
		SchemeID: s.ID,
		ItemType: s.ItemType,
		Title:    "New " + s.ItemType + ": " + s.NameEn,
	}
	name := s.NameEn
	if s.BenefitAmount != nil {
		name += " (" + *s.BenefitAmount + ")"
	}
	n.Body = "You may be eligible for " + name + ". Visit your nearest service center to apply."
	return n
}
