package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/shopfeed-backend/pkg/logger"
)

const (
	defaultTaskRetention     = 7 * 24 * time.Hour
	defaultConfirmationTTL   = 72 * time.Hour
	taskRetentionJobName     = "task-retention"
	confirmationTokenJobName = "confirmation-token-cleanup"
)

type finishedTaskPurger interface {
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type confirmationTokenPurger interface {
	DeleteConfirmationTokensBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// retentionJob deletes rows older than now minus the retention window.
type retentionJob struct {
	name      string
	logg      *logger.Logger
	purge     func(ctx context.Context, cutoff time.Time) (int64, error)
	retention time.Duration
	now       func() time.Time
}

func (j *retentionJob) Name() string { return j.name }

func (j *retentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	deleted, err := j.purge(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("%s: %w", j.name, err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"retention":    j.retention.String(),
		"rows_deleted": deleted,
	}), "cron.retention_purged")
	return nil
}

// NewTaskRetentionJob purges finished tasks once their results have aged out.
func NewTaskRetentionJob(logg *logger.Logger, repo finishedTaskPurger, retention time.Duration) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if repo == nil {
		return nil, fmt.Errorf("tasks repository required")
	}
	if retention <= 0 {
		retention = defaultTaskRetention
	}
	return &retentionJob{
		name:      taskRetentionJobName,
		logg:      logg,
		purge:     repo.DeleteFinishedBefore,
		retention: retention,
		now:       time.Now,
	}, nil
}

// NewConfirmationTokenCleanupJob drops email confirmation tokens past their TTL.
func NewConfirmationTokenCleanupJob(logg *logger.Logger, repo confirmationTokenPurger, ttl time.Duration) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if repo == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if ttl <= 0 {
		ttl = defaultConfirmationTTL
	}
	return &retentionJob{
		name:      confirmationTokenJobName,
		logg:      logg,
		purge:     repo.DeleteConfirmationTokensBefore,
		retention: ttl,
		now:       time.Now,
	}, nil
}
