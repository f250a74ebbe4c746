package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/orderledger/internal/wallet"
	"github.com/angelmondragon/orderledger/pkg/logger"
)

const reconcilePageSize = 100

type walletReconciler interface {
	ListWalletOwners(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error)
	Reconcile(ctx context.Context, userID uuid.UUID) (*wallet.Reconciliation, error)
}

// NewWalletReconcileJob replays every wallet's transaction log against its
// cached balance. Each drifting wallet is reported; the sweep never stops at
// the first one.
func NewWalletReconcileJob(logg *logger.Logger, wallets walletReconciler) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if wallets == nil {
		return nil, fmt.Errorf("wallet service required")
	}
	return &walletReconcileJob{logg: logg, wallets: wallets, pageSize: reconcilePageSize}, nil
}

type walletReconcileJob struct {
	logg     *logger.Logger
	wallets  walletReconciler
	pageSize int
}

func (j *walletReconcileJob) Name() string { return "wallet-reconcile" }

func (j *walletReconcileJob) Run(ctx context.Context) error {
	var (
		errs    error
		checked int
		after   = uuid.Nil
	)
	for {
		owners, err := j.wallets.ListWalletOwners(ctx, after, j.pageSize)
		if err != nil {
			return multierr.Append(errs, err)
		}
		for _, owner := range owners {
			checked++
			if _, err := j.wallets.Reconcile(ctx, owner); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("wallet of %s: %w", owner, err))
			}
		}
		if len(owners) < j.pageSize {
			break
		}
		after = owners[len(owners)-1]
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"wallets_checked": checked,
		"wallets_failed":  len(multierr.Errors(errs)),
	})
	j.logg.Info(logCtx, "wallet reconciliation complete")
	return errs
}
