package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/perkmint/perkmint-backend/pkg/logger"
)

// VoucherExpiryJobParams configure the expired-voucher sweep.
type VoucherExpiryJobParams struct {
	Logger     *logger.Logger
	Repository voucherDeactivator
}

type voucherDeactivator interface {
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}

// NewVoucherExpiryJob builds the job that deactivates vouchers past their
// expiry. Validation already rejects expired vouchers on its own, so the
// sweep is hygiene that keeps listings and counts honest.
func NewVoucherExpiryJob(params VoucherExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("voucher repository required")
	}
	return &voucherExpiryJob{
		logg: params.Logger,
		repo: params.Repository,
		now:  time.Now,
	}, nil
}

type voucherExpiryJob struct {
	logg *logger.Logger
	repo voucherDeactivator
	now  func() time.Time
}

func (j *voucherExpiryJob) Name() string { return "voucher-expiry" }

func (j *voucherExpiryJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	deactivated, err := j.repo.DeactivateExpired(ctx, now)
	if err != nil {
		return fmt.Errorf("voucher expiry: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"as_of":       now,
		"deactivated": deactivated,
	})
	j.logg.Info(logCtx, "voucher expiry sweep complete")
	return nil
}
