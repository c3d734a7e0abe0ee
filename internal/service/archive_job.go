package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/tradecost/internal/domain"
	"github.com/alanyoungcy/tradecost/internal/schedule"
)

const archiveLockKey = "archive:slippage_log"

// ArchiveJob moves slippage log rows older than the retention window to
// cold storage on a schedule. Runs across processes are serialised with a
// distributed lock when one is configured.
type ArchiveJob struct {
	archiver      domain.Archiver
	locks         domain.LockManager
	retentionDays int
	lockTTL       time.Duration
	logger        *slog.Logger
	now           func() time.Time
}

// NewArchiveJob creates an ArchiveJob. locks may be nil.
func NewArchiveJob(archiver domain.Archiver, locks domain.LockManager, retentionDays int, lockTTL time.Duration, logger *slog.Logger) *ArchiveJob {
	if lockTTL <= 0 {
		lockTTL = 10 * time.Minute
	}
	return &ArchiveJob{
		archiver:      archiver,
		locks:         locks,
		retentionDays: retentionDays,
		lockTTL:       lockTTL,
		logger:        logger.With(slog.String("component", "archive_job")),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// RunOnce archives everything logged before the retention cutoff. It
// returns the number of archived rows; a held lock yields 0 and no error.
func (j *ArchiveJob) RunOnce(ctx context.Context) (int64, error) {
	if j.locks != nil {
		unlock, err := j.locks.Acquire(ctx, archiveLockKey, j.lockTTL)
		if errors.Is(err, domain.ErrLockHeld) {
			j.logger.InfoContext(ctx, "archive: another run holds the lock, skipping")
			return 0, nil
		}
		if err != nil {
			return 0, fmt.Errorf("archive: acquire lock: %w", err)
		}
		defer unlock()
	}

	cutoff := j.now().Add(-time.Duration(j.retentionDays) * 24 * time.Hour)
	j.logger.InfoContext(ctx, "archive: starting run",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", j.retentionDays),
	)
	n, err := j.archiver.ArchiveSlippageLog(ctx, cutoff)
	if err != nil {
		return n, fmt.Errorf("archive: slippage log before %v: %w", cutoff, err)
	}
	j.logger.InfoContext(ctx, "archive: run complete", slog.Int64("rows", n))
	return n, nil
}

// RunCron runs the job at every time matching cron until ctx is cancelled.
func (j *ArchiveJob) RunCron(ctx context.Context, cron schedule.Cron) error {
	j.logger.Info("archive: cron started", slog.String("cron", cron.String()))
	for {
		next, err := cron.Next(j.now())
		if err != nil {
			return fmt.Errorf("archive: %w", err)
		}
		wait := time.Until(next)
		j.logger.Info("archive: waiting for next run",
			slog.Time("next_run", next),
			slog.Duration("wait", wait),
		)
		if err := j.waitAndRun(ctx, wait); err != nil {
			return err
		}
	}
}

// RunEvery runs the job immediately and then every interval.
func (j *ArchiveJob) RunEvery(ctx context.Context, interval time.Duration) error {
	wait := time.Duration(0)
	for {
		if err := j.waitAndRun(ctx, wait); err != nil {
			return err
		}
		wait = interval
	}
}

func (j *ArchiveJob) waitAndRun(ctx context.Context, wait time.Duration) error {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		j.logger.Info("archive: stopped")
		return ctx.Err()
	case <-timer.C:
	}
	if _, err := j.RunOnce(ctx); err != nil {
		j.logger.Error("archive: run failed", slog.String("error", err.Error()))
	}
	return nil
}
