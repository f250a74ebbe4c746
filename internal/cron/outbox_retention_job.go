package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/orderledger/pkg/logger"
)

const defaultOutboxRetention = 30 * 24 * time.Hour

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxRetentionRepo interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
	CountStuck(ctx context.Context, maxAttempts int) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger      *logger.Logger
	DB          txRunner
	Repository  outboxRetentionRepo
	Retention   time.Duration
	MaxAttempts int
}

// NewOutboxRetentionJob prunes dispatched outbox rows and reports rows that
// exhausted their attempts, which are kept for inspection.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	if params.MaxAttempts <= 0 {
		return nil, fmt.Errorf("max attempts must be positive")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultOutboxRetention
	}
	return &outboxRetentionJob{
		logg:        params.Logger,
		db:          params.DB,
		repo:        params.Repository,
		retention:   retention,
		maxAttempts: params.MaxAttempts,
		now:         time.Now,
	}, nil
}

type outboxRetentionJob struct {
	logg        *logger.Logger
	db          txRunner
	repo        outboxRetentionRepo
	retention   time.Duration
	maxAttempts int
	now         func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	var deleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := j.repo.DeletePublishedBefore(ctx, tx, cutoff)
		deleted = rows
		return err
	})
	if err != nil {
		return fmt.Errorf("outbox retention: %w", err)
	}

	stuck, err := j.repo.CountStuck(ctx, j.maxAttempts)
	if err != nil {
		return fmt.Errorf("count stuck outbox rows: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": deleted,
		"rows_stuck":   stuck,
	})
	if stuck > 0 {
		j.logg.Warn(logCtx, "outbox has events that will not be retried")
	}
	j.logg.Info(logCtx, "outbox retention cleanup complete")
	return nil
}
