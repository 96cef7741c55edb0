package cron

import (
	"context"
	"fmt"

	"github.com/perkmint/perkmint-backend/internal/reconcile"
	"github.com/perkmint/perkmint-backend/pkg/logger"
)

// SettlementTimeoutJobParams configure the stale-settlement sweep.
type SettlementTimeoutJobParams struct {
	Logger     *logger.Logger
	Reconciler settlementExpirer
}

type settlementExpirer interface {
	ExpireStale(ctx context.Context) (*reconcile.PassStats, error)
}

// NewSettlementTimeoutJob builds the job that resolves audit transactions
// stuck in pending past the settlement deadline. Rows that turn out to be
// mined are confirmed or failed by the sweep; receiptless rows are cancelled
// and their entity changes rolled back.
func NewSettlementTimeoutJob(params SettlementTimeoutJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reconciler == nil {
		return nil, fmt.Errorf("reconciler required")
	}
	return &settlementTimeoutJob{
		logg:       params.Logger,
		reconciler: params.Reconciler,
	}, nil
}

type settlementTimeoutJob struct {
	logg       *logger.Logger
	reconciler settlementExpirer
}

func (j *settlementTimeoutJob) Name() string { return "settlement-timeout" }

func (j *settlementTimeoutJob) Run(ctx context.Context) error {
	stats, err := j.reconciler.ExpireStale(ctx)
	if err != nil {
		return fmt.Errorf("settlement timeout: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"scanned":   stats.Scanned,
		"confirmed": stats.Confirmed,
		"failed":    stats.Failed,
		"cancelled": stats.Cancelled,
	})
	j.logg.Info(logCtx, "settlement timeout sweep complete")
	return nil
}
