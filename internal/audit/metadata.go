package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/perkmint/perkmint-backend/pkg/db/models"
	"github.com/perkmint/perkmint-backend/pkg/enums"
)

// VoucherSnapshot is the voucher's mutable pre-state, captured immediately
// before a ledger submission. Compensation restores these fields when the
// submission fails or expires.
type VoucherSnapshot struct {
	CurrentOwnerID    uuid.UUID              `json:"current_owner_id"`
	IsUsed            bool                   `json:"is_used"`
	IsActive          bool                   `json:"is_active"`
	RemainingQuantity int                    `json:"remaining_quantity"`
	UsedAt            *time.Time             `json:"used_at,omitempty"`
	SettlementStatus  enums.SettlementStatus `json:"settlement_status"`
}

// SnapshotVoucher captures the compensation-relevant fields of a voucher.
func SnapshotVoucher(v *models.Voucher) *VoucherSnapshot {
	if v == nil {
		return nil
	}
	return &VoucherSnapshot{
		CurrentOwnerID:    v.CurrentOwnerID,
		IsUsed:            v.IsUsed,
		IsActive:          v.IsActive,
		RemainingQuantity: v.RemainingQuantity,
		UsedAt:            v.UsedAt,
		SettlementStatus:  v.SettlementStatus,
	}
}

// Metadata is the document stored in audit_transactions.metadata.
type Metadata struct {
	Snapshot        *VoucherSnapshot `json:"snapshot,omitempty"`
	AdvisoryTokenID *int64           `json:"advisory_token_id,omitempty"`
	Recipient       string           `json:"recipient,omitempty"`
	FromAddress     string           `json:"from_address,omitempty"`
	ToAddress       string           `json:"to_address,omitempty"`
	PurchaseAmount  *decimal.Decimal `json:"purchase_amount,omitempty"`
	PrizeIndex      *int             `json:"prize_index,omitempty"`
	Repair          string           `json:"repair,omitempty"`
}

// Encode serializes the metadata document for storage.
func (m Metadata) Encode() (json.RawMessage, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// DecodeMetadata parses a stored metadata document. Empty input yields an
// empty document, not an error, so old rows stay readable.
func DecodeMetadata(raw json.RawMessage) (*Metadata, error) {
	meta := &Metadata{}
	if len(raw) == 0 {
		return meta, nil
	}
	if err := json.Unmarshal(raw, meta); err != nil {
		return nil, err
	}
	return meta, nil
}
