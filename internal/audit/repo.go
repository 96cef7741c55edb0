package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/perkmint/perkmint-backend/pkg/db/models"
	"github.com/perkmint/perkmint-backend/pkg/enums"
)

// Repository manages persistence for audit transactions. The Mark* methods
// perform guarded updates: the WHERE clause re-asserts the pending status so
// a terminal row can never move again, whatever the caller believed.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, txn *models.AuditTransaction) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.AuditTransaction, error)
	FindByExternalRef(ctx context.Context, ref string) (*models.AuditTransaction, error)
	ListByVoucher(ctx context.Context, voucherID uuid.UUID, limit int) ([]models.AuditTransaction, error)
	ListByLottery(ctx context.Context, lotteryID uuid.UUID, limit int) ([]models.AuditTransaction, error)
	ListPendingWithRef(ctx context.Context, limit int) ([]models.AuditTransaction, error)
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.AuditTransaction, error)
	MarkConfirmed(ctx context.Context, id uuid.UUID, costActual *decimal.Decimal, confirmedAt time.Time) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID) (bool, error)
	MarkCancelled(ctx context.Context, id uuid.UUID) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an audit repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, txn *models.AuditTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.AuditTransaction, error) {
	var txn models.AuditTransaction
	if err := r.db.WithContext(ctx).First(&txn, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *repository) FindByExternalRef(ctx context.Context, ref string) (*models.AuditTransaction, error) {
	var txn models.AuditTransaction
	if err := r.db.WithContext(ctx).First(&txn, "external_ref = ?", ref).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *repository) ListByVoucher(ctx context.Context, voucherID uuid.UUID, limit int) ([]models.AuditTransaction, error) {
	var txns []models.AuditTransaction
	query := r.db.WithContext(ctx).
		Where("voucher_id = ?", voucherID).
		Order("created_at DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

func (r *repository) ListByLottery(ctx context.Context, lotteryID uuid.UUID, limit int) ([]models.AuditTransaction, error) {
	var txns []models.AuditTransaction
	query := r.db.WithContext(ctx).
		Where("lottery_id = ?", lotteryID).
		Order("created_at DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

// ListPendingWithRef returns the oldest pending transactions that carry an
// external reference, the correlation work queue.
func (r *repository) ListPendingWithRef(ctx context.Context, limit int) ([]models.AuditTransaction, error) {
	var txns []models.AuditTransaction
	query := r.db.WithContext(ctx).
		Where("status = ? AND external_ref IS NOT NULL", enums.AuditStatusPending).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

func (r *repository) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.AuditTransaction, error) {
	var txns []models.AuditTransaction
	query := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", enums.AuditStatusPending, cutoff).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

func (r *repository) MarkConfirmed(ctx context.Context, id uuid.UUID, costActual *decimal.Decimal, confirmedAt time.Time) (bool, error) {
	updates := map[string]any{
		"status":       enums.AuditStatusConfirmed,
		"confirmed_at": confirmedAt,
	}
	if costActual != nil {
		updates["cost_actual"] = *costActual
	}
	return r.transition(ctx, id, updates)
}

func (r *repository) MarkFailed(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.transition(ctx, id, map[string]any{"status": enums.AuditStatusFailed})
}

func (r *repository) MarkCancelled(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.transition(ctx, id, map[string]any{"status": enums.AuditStatusCancelled})
}

func (r *repository) transition(ctx context.Context, id uuid.UUID, updates map[string]any) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.AuditTransaction{}).
		Where("id = ? AND status = ?", id, enums.AuditStatusPending).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
