package scheduler

import (
	"context"
	"log/slog"
	"time"

	"instapost/internal/domain"
)

// Runner performs one scrape run.
type Runner interface {
	Run(ctx context.Context) (*domain.ScrapeStats, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context) (*domain.ScrapeStats, error)

func (f RunnerFunc) Run(ctx context.Context) (*domain.ScrapeStats, error) {
	return f(ctx)
}

type Scheduler struct {
	runner     Runner
	interval   time.Duration
	runTimeout time.Duration
	logger     *slog.Logger
}

func NewScheduler(runner Runner, interval, runTimeout time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		runner:     runner,
		interval:   interval,
		runTimeout: runTimeout,
		logger:     logger,
	}
}

// Start runs immediately and then on every interval tick until ctx is
// cancelled. With a zero interval it runs once and returns that run's error.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.interval <= 0 {
		return s.run(ctx)
	}

	s.logger.Info("scheduler started", "interval", s.interval)

	s.run(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.run(ctx)
		}
	}
}

func (s *Scheduler) run(ctx context.Context) error {
	runCtx := ctx
	if s.runTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.runTimeout)
		defer cancel()
	}

	if _, err := s.runner.Run(runCtx); err != nil {
		s.logger.Error("scrape run failed", "error", err)
		return err
	}
	return nil
}
