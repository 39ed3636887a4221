// Package scheduler runs the redistribution sweep on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lorrc/support-redistributor/internal/core/ports"
	"github.com/lorrc/support-redistributor/internal/infrastructure/logging"
	"github.com/robfig/cron/v3"
)

// Scheduler triggers RunOnce on every tick of its cron spec.
type Scheduler struct {
	cron       *cron.Cron
	service    ports.RedistributionService
	runTimeout time.Duration
	logger     *slog.Logger

	// base is cancelled by Stop so an in-flight run ends early.
	base   context.Context
	cancel context.CancelFunc
}

// New creates a scheduler for spec, a standard five-field cron expression
// or a descriptor such as "@every 1m".
func New(spec string, service ports.RedistributionService, runTimeout time.Duration, logger *slog.Logger) (*Scheduler, error) {
	logger = logger.With("component", "scheduler")
	base, cancel := context.WithCancel(context.Background())

	s := &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cron.DiscardLogger),
			recoverJob(logger),
		)),
		service:    service,
		runTimeout: runTimeout,
		logger:     logger,
		base:       base,
		cancel:     cancel,
	}

	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		cancel()
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start begins ticking in the background.
func (s *Scheduler) Start() {
	s.logger.Info("scheduler started")
	s.cron.Start()
}

// Stop halts the schedule, cancels any in-flight run, and waits for it to
// return or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	s.cancel()

	select {
	case <-done.Done():
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) tick() {
	ctx := logging.WithTrigger(s.base, "schedule")
	if s.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.runTimeout)
		defer cancel()
	}

	result, err := s.service.RunOnce(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "scheduled redistribution failed", "error", err)
		return
	}
	if result.Redistributed > 0 {
		s.logger.InfoContext(ctx, "scheduled redistribution finished", "redistributed", result.Redistributed)
	}
}

// recoverJob keeps a panicking run from killing the cron goroutine.
func recoverJob(logger *slog.Logger) cron.JobWrapper {
	return func(j cron.Job) cron.Job {
		return cron.FuncJob(func() {
			defer func() {
				if r := recover(); r != nil {
					logging.LogPanic(logger, r)
				}
			}()
			j.Run()
		})
	}
}
