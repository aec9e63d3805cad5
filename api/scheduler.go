/*
scheduler.go - Periodic invoice status sweep

PURPOSE:
  Runs the invoice sweep on a cron schedule so invoices drift to Overdue
  without anyone touching them, and catch up with payments recorded while
  no bill existed yet.

DESIGN:
  - robfig/cron drives the schedule (UTC, standard 5-field spec)
  - A run never overlaps the previous one; overlapping ticks are skipped
  - Each run gets its own timeout so a stuck database cannot pile up runs
  - Results are logged and exported as Prometheus metrics

CONFIGURATION:
  - Schedule: cron spec (default "0 * * * *", hourly)
  - Enabled:  whether Start schedules anything

USAGE:
  scheduler, err := NewSweepScheduler(invoices, "0 * * * *", logger, metrics)
  scheduler.Start()
  // ... later
  scheduler.Stop(ctx)

SEE ALSO:
  - billing/invoices.go: InvoiceSynchronizer.Sweep
  - handlers.go: TriggerSweep endpoint (manual run)
*/
package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/prosuite/rent-ledger/billing"
)

// Sweeper is the part of the invoice synchronizer the scheduler drives.
type Sweeper interface {
	Sweep(ctx context.Context) (billing.SweepResult, error)
}

// SweepScheduler runs the invoice sweep periodically.
type SweepScheduler struct {
	sweeper  Sweeper
	schedule string
	timeout  time.Duration
	logger   *zap.Logger
	metrics  *Metrics

	cron    *cron.Cron
	running sync.Mutex

	mu      sync.Mutex
	lastRun *SweepRun
}

// SweepRun is the outcome of one sweep, scheduled or manual.
type SweepRun struct {
	StartedAt time.Time           `json:"startedAt"`
	Duration  string              `json:"duration"`
	Result    billing.SweepResult `json:"result"`
	Error     string              `json:"error,omitempty"`
}

// NewSweepScheduler validates the cron spec and builds a stopped scheduler.
func NewSweepScheduler(sweeper Sweeper, schedule string, logger *zap.Logger, metrics *Metrics) (*SweepScheduler, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SweepScheduler{
		sweeper:  sweeper,
		schedule: schedule,
		timeout:  5 * time.Minute,
		logger:   logger,
		metrics:  metrics,
	}, nil
}

// Start schedules the sweep. Calling Start twice is a no-op.
func (s *SweepScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return nil
	}
	c := cron.New(cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(s.schedule, s.tick); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	c.Start()
	s.cron = c

	s.logger.Info("invoice sweep scheduled", zap.String("schedule", s.schedule))
	return nil
}

// Stop halts scheduling and waits for a running sweep, or for ctx.
func (s *SweepScheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
		s.logger.Info("invoice sweep stopped")
	case <-ctx.Done():
		s.logger.Warn("invoice sweep stop timed out")
	}
}

func (s *SweepScheduler) tick() {
	if !s.running.TryLock() {
		s.logger.Warn("previous invoice sweep still running; skipping tick")
		return
	}
	defer s.running.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	s.run(ctx)
}

// RunNow triggers an immediate sweep and waits for it.
func (s *SweepScheduler) RunNow(ctx context.Context) SweepRun {
	s.running.Lock()
	defer s.running.Unlock()
	return s.run(ctx)
}

// LastRun returns the most recent sweep outcome, if any.
func (s *SweepScheduler) LastRun() *SweepRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastRun == nil {
		return nil
	}
	r := *s.lastRun
	return &r
}

// NextRun returns when the next scheduled sweep fires, or zero when stopped.
func (s *SweepScheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return time.Time{}
	}
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (s *SweepScheduler) run(ctx context.Context) SweepRun {
	start := time.Now()
	result, err := s.sweeper.Sweep(ctx)
	elapsed := time.Since(start)

	run := SweepRun{StartedAt: start.UTC(), Duration: elapsed.String(), Result: result}
	if err != nil {
		run.Error = err.Error()
		s.logger.Error("invoice sweep failed", zap.Error(err), zap.Duration("duration", elapsed))
	} else {
		s.logger.Info("invoice sweep completed",
			zap.Int("checked", result.Checked),
			zap.Int("updated", result.Updated),
			zap.Int("skipped", result.Skipped),
			zap.Int("failed", result.Failed),
			zap.Duration("duration", elapsed))
	}
	if s.metrics != nil {
		s.metrics.observeSweep(result.Updated, elapsed, err)
	}

	s.mu.Lock()
	s.lastRun = &run
	s.mu.Unlock()
	return run
}
