package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/perkmint/perkmint-backend/pkg/enums"
)

// Voucher is one mintable, transferable discount instrument. The row is
// business truth; settlement_status tracks how far the external ledger has
// confirmed the most recent submission against it.
type Voucher struct {
	ID                uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	LedgerTokenID     int64                  `gorm:"column:ledger_token_id;not null;uniqueIndex"`
	MerchantRef       string                 `gorm:"column:merchant_ref;not null"`
	OriginalOwnerID   uuid.UUID              `gorm:"column:original_owner_id;type:uuid;not null"`
	CurrentOwnerID    uuid.UUID              `gorm:"column:current_owner_id;type:uuid;not null"`
	DiscountType      enums.DiscountType     `gorm:"column:discount_type;type:discount_type_enum;not null"`
	DiscountValue     decimal.Decimal        `gorm:"column:discount_value;type:numeric(12,2);not null"`
	MinimumPurchase   decimal.Decimal        `gorm:"column:minimum_purchase;type:numeric(12,2);not null;default:0"`
	MaxQuantity       int                    `gorm:"column:max_quantity;not null;default:1"`
	RemainingQuantity int                    `gorm:"column:remaining_quantity;not null;default:1"`
	TotalMinted       int                    `gorm:"column:total_minted;not null;default:1"`
	IsUsed            bool                   `gorm:"column:is_used;not null;default:false"`
	IsTransferable    bool                   `gorm:"column:is_transferable;not null;default:true"`
	IsActive          bool                   `gorm:"column:is_active;not null;default:true"`
	SettlementStatus  enums.SettlementStatus `gorm:"column:settlement_status;type:settlement_status_enum;not null;default:'pending'"`
	MetadataURI       string                 `gorm:"column:metadata_uri;not null"`
	ExpiresAt         *time.Time             `gorm:"column:expires_at"`
	UsedAt            *time.Time             `gorm:"column:used_at"`
	CreatedAt         time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

// Expired reports whether the voucher is past its expiry timestamp.
func (v *Voucher) Expired(now time.Time) bool {
	return v.ExpiresAt != nil && !v.ExpiresAt.After(now)
}

// ValidForUse reports whether the voucher can be redeemed at now. The
// returned reason names the first failing check.
func (v *Voucher) ValidForUse(now time.Time) (bool, string) {
	switch {
	case v.IsUsed:
		return false, "voucher already used"
	case !v.IsActive:
		return false, "voucher is inactive"
	case v.RemainingQuantity <= 0:
		return false, "voucher has no remaining quantity"
	case v.Expired(now):
		return false, "voucher has expired"
	}
	return true, ""
}

// CanBeTransferred reports whether ownership may move at now.
func (v *Voucher) CanBeTransferred(now time.Time) (bool, string) {
	switch {
	case v.IsUsed:
		return false, "used vouchers cannot be transferred"
	case !v.IsTransferable:
		return false, "voucher is not transferable"
	case !v.IsActive:
		return false, "voucher is inactive"
	case v.Expired(now):
		return false, "voucher has expired"
	}
	return true, ""
}

// CalculateDiscount returns the discount granted against purchaseAmount.
// Zero below the minimum purchase; the result never exceeds purchaseAmount.
func (v *Voucher) CalculateDiscount(purchaseAmount decimal.Decimal) decimal.Decimal {
	if purchaseAmount.LessThan(v.MinimumPurchase) {
		return decimal.Zero
	}

	var discount decimal.Decimal
	switch v.DiscountType {
	case enums.DiscountTypePercentage:
		discount = purchaseAmount.Mul(v.DiscountValue).Div(decimal.NewFromInt(100))
	case enums.DiscountTypeFixed:
		discount = v.DiscountValue
	default:
		return decimal.Zero
	}

	if discount.GreaterThan(purchaseAmount) {
		return purchaseAmount
	}
	return discount
}
