package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/orderledger/pkg/logger"
)

type cashbackExpirer interface {
	ExpireStale(ctx context.Context) (int64, error)
}

// NewCashbackExpiryJob expires eligible cashbacks whose deadline passed.
func NewCashbackExpiryJob(logg *logger.Logger, cashback cashbackExpirer) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if cashback == nil {
		return nil, fmt.Errorf("cashback service required")
	}
	return &cashbackExpiryJob{logg: logg, cashback: cashback}, nil
}

type cashbackExpiryJob struct {
	logg     *logger.Logger
	cashback cashbackExpirer
}

func (j *cashbackExpiryJob) Name() string { return "cashback-expiry" }

func (j *cashbackExpiryJob) Run(ctx context.Context) error {
	n, err := j.cashback.ExpireStale(ctx)
	if err != nil {
		return err
	}
	j.logg.Info(j.logg.WithField(ctx, "expired", n), "cashback expiry sweep complete")
	return nil
}
