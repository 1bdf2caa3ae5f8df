package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/pharmacy-backend/pkg/logger"
)

const defaultNotificationRetention = 30 * 24 * time.Hour

type NotificationRetentionJobParams struct {
	Logger     *logger.Logger
	Repository notificationPurger
	Retention  time.Duration
}

type notificationPurger interface {
	DeleteReadOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// NewNotificationRetentionJob purges read notifications older than Retention.
func NewNotificationRetentionJob(params NotificationRetentionJobParams) (Job, error) {
	if params.Repository == nil {
		return nil, errors.New("notifications repository required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultNotificationRetention
	}
	return &notificationRetentionJob{
		logg:      params.Logger,
		repo:      params.Repository,
		retention: retention,
		now:       time.Now,
	}, nil
}

type notificationRetentionJob struct {
	logg      *logger.Logger
	repo      notificationPurger
	retention time.Duration
	now       func() time.Time
}

func (j *notificationRetentionJob) Name() string { return "notification-retention" }

func (j *notificationRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	deleted, err := j.repo.DeleteReadOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("purge notifications: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": deleted,
	}), "notification retention complete")
	return nil
}
