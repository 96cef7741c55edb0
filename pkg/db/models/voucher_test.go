package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/perkmint/perkmint-backend/pkg/enums"
)

func activeVoucher() *Voucher {
	return &Voucher{
		ID:                uuid.New(),
		LedgerTokenID:     7,
		MerchantRef:       "merchant-001",
		OriginalOwnerID:   uuid.New(),
		CurrentOwnerID:    uuid.New(),
		DiscountType:      enums.DiscountTypePercentage,
		DiscountValue:     decimal.NewFromInt(20),
		MinimumPurchase:   decimal.NewFromInt(50),
		MaxQuantity:       1,
		RemainingQuantity: 1,
		TotalMinted:       1,
		IsTransferable:    true,
		IsActive:          true,
		SettlementStatus:  enums.SettlementStatusPending,
	}
}

func TestCalculateDiscountPercentage(t *testing.T) {
	t.Parallel()

	v := activeVoucher()

	if got := v.CalculateDiscount(decimal.NewFromInt(30)); !got.IsZero() {
		t.Fatalf("expected zero discount below minimum purchase, got %s", got)
	}
	if got := v.CalculateDiscount(decimal.NewFromInt(200)); !got.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("expected discount 40, got %s", got)
	}
}

func TestCalculateDiscountFixed(t *testing.T) {
	t.Parallel()

	v := activeVoucher()
	v.DiscountType = enums.DiscountTypeFixed
	v.DiscountValue = decimal.NewFromInt(75)
	v.MinimumPurchase = decimal.Zero

	if got := v.CalculateDiscount(decimal.NewFromInt(60)); !got.Equal(decimal.NewFromInt(60)) {
		t.Fatalf("expected discount capped at purchase amount, got %s", got)
	}
	if got := v.CalculateDiscount(decimal.NewFromInt(100)); !got.Equal(decimal.NewFromInt(75)) {
		t.Fatalf("expected discount 75, got %s", got)
	}
}

func TestCalculateDiscountNeverExceedsPurchase(t *testing.T) {
	t.Parallel()

	v := activeVoucher()
	v.DiscountValue = decimal.NewFromInt(150)
	v.MinimumPurchase = decimal.Zero

	amounts := []decimal.Decimal{
		decimal.NewFromInt(1),
		decimal.NewFromInt(99),
		decimal.NewFromFloat(0.01),
		decimal.NewFromInt(10_000),
	}
	for _, amount := range amounts {
		if got := v.CalculateDiscount(amount); got.GreaterThan(amount) {
			t.Fatalf("discount %s exceeds purchase amount %s", got, amount)
		}
	}
}

func TestValidForUse(t *testing.T) {
	t.Parallel()

	now := time.Now()

	v := activeVoucher()
	if ok, reason := v.ValidForUse(now); !ok {
		t.Fatalf("expected voucher valid for use, got reason %q", reason)
	}

	used := activeVoucher()
	used.IsUsed = true
	if ok, reason := used.ValidForUse(now); ok || reason != "voucher already used" {
		t.Fatalf("expected already-used refusal, got ok=%v reason=%q", ok, reason)
	}

	inactive := activeVoucher()
	inactive.IsActive = false
	if ok, _ := inactive.ValidForUse(now); ok {
		t.Fatal("expected inactive voucher to be refused")
	}

	drained := activeVoucher()
	drained.RemainingQuantity = 0
	if ok, _ := drained.ValidForUse(now); ok {
		t.Fatal("expected drained voucher to be refused")
	}

	expired := activeVoucher()
	past := now.Add(-time.Hour)
	expired.ExpiresAt = &past
	if ok, reason := expired.ValidForUse(now); ok || reason != "voucher has expired" {
		t.Fatalf("expected expiry refusal, got ok=%v reason=%q", ok, reason)
	}
}

func TestCanBeTransferredFlags(t *testing.T) {
	t.Parallel()

	now := time.Now()

	v := activeVoucher()
	if ok, reason := v.CanBeTransferred(now); !ok {
		t.Fatalf("expected transferable voucher, got reason %q", reason)
	}

	used := activeVoucher()
	used.IsUsed = true
	if ok, reason := used.CanBeTransferred(now); ok || reason != "used vouchers cannot be transferred" {
		t.Fatalf("expected used refusal, got ok=%v reason=%q", ok, reason)
	}

	locked := activeVoucher()
	locked.IsTransferable = false
	if ok, reason := locked.CanBeTransferred(now); ok || reason != "voucher is not transferable" {
		t.Fatalf("expected non-transferable refusal, got ok=%v reason=%q", ok, reason)
	}

	expired := activeVoucher()
	past := now.Add(-time.Minute)
	expired.ExpiresAt = &past
	if ok, _ := expired.CanBeTransferred(now); ok {
		t.Fatal("expected expired voucher to refuse transfer")
	}
}

func TestExpired(t *testing.T) {
	t.Parallel()

	now := time.Now()

	v := activeVoucher()
	if v.Expired(now) {
		t.Fatal("voucher without expiry must not expire")
	}

	at := now
	v.ExpiresAt = &at
	if !v.Expired(now) {
		t.Fatal("voucher expiring exactly now must be expired")
	}

	future := now.Add(time.Hour)
	v.ExpiresAt = &future
	if v.Expired(now) {
		t.Fatal("voucher expiring in the future must not be expired")
	}
}
