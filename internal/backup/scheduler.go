// Package backup runs periodic backups of the persisted catalog and ledger.
package backup

import (
	"context"
	"log/slog"
	"time"
)

// Backuper creates one backup. Failures are reported through ok and logged by the implementation.
type Backuper interface {
	Backup(ctx context.Context) (files []string, ok bool)
}

// Scheduler triggers a backup every interval.
type Scheduler struct {
	target   Backuper
	interval time.Duration
	logger   *slog.Logger
}

func NewScheduler(target Backuper, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		target:   target,
		interval: interval,
		logger:   logger.With("component", "backup"),
	}
}

// Run blocks until ctx is cancelled. A non-positive interval disables the scheduler
// and Run returns immediately. A failed backup never stops the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.interval <= 0 {
		s.logger.InfoContext(ctx, "Periodic backups disabled")
		return nil
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "Periodic backups enabled", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "Backup scheduler stopped")
			return nil
		case <-ticker.C:
			if _, ok := s.target.Backup(ctx); !ok {
				s.logger.WarnContext(ctx, "Scheduled backup failed, retrying at next tick")
			}
		}
	}
}
