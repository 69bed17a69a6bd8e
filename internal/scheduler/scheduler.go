// Package scheduler runs the periodic maintenance jobs: subscription expiry
// and request log retention.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/aman-churiwal/api-marketplace/internal/config"
	"github.com/aman-churiwal/api-marketplace/internal/service"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const jobTimeout = 5 * time.Minute

type Sweeper interface {
	Sweep(ctx context.Context) (service.SweepReport, error)
}

type LogCleaner interface {
	CleanupOldLogs(ctx context.Context, retentionDays int) (int64, error)
}

type Scheduler struct {
	cron     *cron.Cron
	cfg      config.SchedulerConfig
	sweeper  Sweeper
	cleaner  LogCleaner
	notifier service.Notifier
	logger   zerolog.Logger
}

// New builds the scheduler. notifier may be nil.
func New(cfg config.SchedulerConfig, sweeper Sweeper, cleaner LogCleaner, notifier service.Notifier, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)),
		),
		cfg:      cfg,
		sweeper:  sweeper,
		cleaner:  cleaner,
		notifier: notifier,
		logger:   logger.With().Str("component", "scheduler").Logger(),
	}
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.SubscriptionSweep, func() { s.RunSweep(context.Background()) }); err != nil {
		return fmt.Errorf("failed to add subscription sweep job: %w", err)
	}

	if s.cfg.LogRetentionDays > 0 {
		if _, err := s.cron.AddFunc(s.cfg.LogCleanup, func() { s.RunLogCleanup(context.Background()) }); err != nil {
			return fmt.Errorf("failed to add log cleanup job: %w", err)
		}
	}

	s.cron.Start()
	s.logger.Info().
		Str("sweep", s.cfg.SubscriptionSweep).
		Str("log_cleanup", s.cfg.LogCleanup).
		Msg("scheduler started")

	return nil
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("scheduler stopped")
}

// RunSweep expires due subscriptions once.
func (s *Scheduler) RunSweep(ctx context.Context) service.SweepReport {
	ctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	report, err := s.sweeper.Sweep(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("subscription sweep failed")
		s.notify(ctx, fmt.Sprintf("Subscription sweep failed: %v", err))
		return report
	}

	if report.Expired > 0 || report.Failed > 0 {
		s.notify(ctx, fmt.Sprintf("Subscription sweep: %d expired, %d downgraded, %d failed",
			report.Expired, report.Downgraded, report.Failed))
	}

	return report
}

// RunLogCleanup deletes request logs past the retention window once.
func (s *Scheduler) RunLogCleanup(ctx context.Context) int64 {
	ctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	deleted, err := s.cleaner.CleanupOldLogs(ctx, s.cfg.LogRetentionDays)
	if err != nil {
		s.logger.Error().Err(err).Msg("request log cleanup failed")
		return 0
	}

	s.logger.Info().Int64("deleted", deleted).Int("retention_days", s.cfg.LogRetentionDays).Msg("request log cleanup finished")
	return deleted
}

func (s *Scheduler) notify(ctx context.Context, text string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, text); err != nil {
		s.logger.Warn().Err(err).Msg("failed to notify operators")
	}
}
