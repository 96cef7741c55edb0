package voucher

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/perkmint/perkmint-backend/pkg/db/models"
	"github.com/perkmint/perkmint-backend/pkg/enums"
	"github.com/perkmint/perkmint-backend/pkg/pagination"
)

// Repository manages voucher persistence. Mutating methods are guarded: the
// WHERE clause re-asserts the entity preconditions against the freshest row
// so concurrent operations on the same voucher cannot both win. A false
// return means the row no longer satisfies the preconditions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, voucher *models.Voucher) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Voucher, error)
	FindByLedgerTokenID(ctx context.Context, tokenID int64) (*models.Voucher, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, params pagination.Params) ([]models.Voucher, *pagination.Cursor, error)
	MarkUsed(ctx context.Context, id, userID uuid.UUID, now time.Time) (bool, error)
	TransferOwner(ctx context.Context, id, fromUserID, toUserID uuid.UUID, now time.Time) (bool, error)
	MarkRecycled(ctx context.Context, id uuid.UUID) (bool, error)
	SetSettlementStatus(ctx context.Context, id uuid.UUID, status enums.SettlementStatus) (bool, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a voucher repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, voucher *models.Voucher) error {
	return r.db.WithContext(ctx).Create(voucher).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Voucher, error) {
	var voucher models.Voucher
	if err := r.db.WithContext(ctx).First(&voucher, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &voucher, nil
}

func (r *repository) FindByLedgerTokenID(ctx context.Context, tokenID int64) (*models.Voucher, error) {
	var voucher models.Voucher
	if err := r.db.WithContext(ctx).First(&voucher, "ledger_token_id = ?", tokenID).Error; err != nil {
		return nil, err
	}
	return &voucher, nil
}

func (r *repository) ListByOwner(ctx context.Context, ownerID uuid.UUID, params pagination.Params) ([]models.Voucher, *pagination.Cursor, error) {
	normalized := pagination.NormalizeLimit(params.Limit)
	limit := pagination.LimitWithBuffer(params.Limit)

	query := r.db.WithContext(ctx).Where("current_owner_id = ?", ownerID)

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, nil, err
	}
	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var vouchers []models.Voucher
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&vouchers).Error; err != nil {
		return nil, nil, err
	}

	if len(vouchers) > normalized {
		next := vouchers[normalized]
		vouchers = vouchers[:normalized]
		return vouchers, &pagination.Cursor{CreatedAt: next.CreatedAt, ID: next.ID}, nil
	}
	return vouchers, nil, nil
}

func (r *repository) MarkUsed(ctx context.Context, id, userID uuid.UUID, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Voucher{}).
		Where("id = ? AND is_used = ? AND is_active = ? AND remaining_quantity > 0", id, false, true).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Updates(map[string]any{
			"is_used":            true,
			"used_at":            now,
			"current_owner_id":   userID,
			"remaining_quantity": gorm.Expr("remaining_quantity - 1"),
			"settlement_status":  enums.SettlementStatusPending,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) TransferOwner(ctx context.Context, id, fromUserID, toUserID uuid.UUID, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Voucher{}).
		Where("id = ? AND current_owner_id = ? AND is_used = ? AND is_transferable = ? AND is_active = ?",
			id, fromUserID, false, true, true).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Updates(map[string]any{
			"current_owner_id":  toUserID,
			"settlement_status": enums.SettlementStatusPending,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// MarkRecycled deactivates an already-used voucher. Recycling an unused
// voucher is refused by the guard.
func (r *repository) MarkRecycled(ctx context.Context, id uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Voucher{}).
		Where("id = ? AND is_used = ? AND is_active = ?", id, true, true).
		Updates(map[string]any{
			"is_active":         false,
			"settlement_status": enums.SettlementStatusPending,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) SetSettlementStatus(ctx context.Context, id uuid.UUID, status enums.SettlementStatus) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Voucher{}).
		Where("id = ?", id).
		UpdateColumn("settlement_status", status)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// Update applies raw column updates. Reserved for the reconciler's
// compensation and repair paths; request handling goes through the guarded
// methods above.
func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Voucher{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Voucher{}).
		Where("is_active = ? AND expires_at IS NOT NULL AND expires_at <= ?", true, now).
		UpdateColumn("is_active", false)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
