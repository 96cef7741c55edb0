package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/perkmint/perkmint-backend/pkg/enums"
)

// AuditTransaction correlates one state-changing operation with its external
// ledger reference. Rows are append-only except for the one-directional
// status transition out of pending.
type AuditTransaction struct {
	ID           uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ActorID      uuid.UUID         `gorm:"column:actor_id;type:uuid;not null"`
	VoucherID    *uuid.UUID        `gorm:"column:voucher_id;type:uuid"`
	LotteryID    *uuid.UUID        `gorm:"column:lottery_id;type:uuid"`
	Kind         enums.AuditKind   `gorm:"column:kind;type:audit_kind_enum;not null"`
	ExternalRef  *string           `gorm:"column:external_ref"`
	CostEstimate *decimal.Decimal  `gorm:"column:cost_estimate;type:numeric(30,18)"`
	CostActual   *decimal.Decimal  `gorm:"column:cost_actual;type:numeric(30,18)"`
	Status       enums.AuditStatus `gorm:"column:status;type:audit_status_enum;not null;default:'pending'"`
	Metadata     json.RawMessage   `gorm:"column:metadata;type:jsonb"`
	CreatedAt    time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time         `gorm:"column:updated_at;autoUpdateTime"`
	ConfirmedAt  *time.Time        `gorm:"column:confirmed_at"`
}
