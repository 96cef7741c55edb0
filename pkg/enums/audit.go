package enums

import "fmt"

// AuditKind maps to the audit_kind_enum enum in Postgres.
type AuditKind string

const (
	AuditKindMint         AuditKind = "mint"
	AuditKindTransfer     AuditKind = "transfer"
	AuditKindUse          AuditKind = "use"
	AuditKindRecycle      AuditKind = "recycle"
	AuditKindLotteryEntry AuditKind = "lottery_entry"
	AuditKindLotteryWin   AuditKind = "lottery_win"
)

var validAuditKinds = []AuditKind{
	AuditKindMint,
	AuditKindTransfer,
	AuditKindUse,
	AuditKindRecycle,
	AuditKindLotteryEntry,
	AuditKindLotteryWin,
}

// IsValid reports whether the value matches the canonical audit kind enum.
func (k AuditKind) IsValid() bool {
	for _, candidate := range validAuditKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseAuditKind converts raw input into AuditKind.
func ParseAuditKind(value string) (AuditKind, error) {
	for _, candidate := range validAuditKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid audit kind %q", value)
}

// RequiresLedgerRef reports whether transactions of this kind must carry an
// external ledger reference. Lottery entries and wins settle entirely inside
// the relational store.
func (k AuditKind) RequiresLedgerRef() bool {
	switch k {
	case AuditKindLotteryEntry, AuditKindLotteryWin:
		return false
	default:
		return true
	}
}

// AuditStatus maps to the audit_status_enum enum in Postgres.
type AuditStatus string

const (
	AuditStatusPending   AuditStatus = "pending"
	AuditStatusConfirmed AuditStatus = "confirmed"
	AuditStatusFailed    AuditStatus = "failed"
	AuditStatusCancelled AuditStatus = "cancelled"
)

var validAuditStatuses = []AuditStatus{
	AuditStatusPending,
	AuditStatusConfirmed,
	AuditStatusFailed,
	AuditStatusCancelled,
}

// IsValid reports whether the value matches the canonical audit status enum.
func (s AuditStatus) IsValid() bool {
	for _, candidate := range validAuditStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseAuditStatus converts raw input into AuditStatus.
func ParseAuditStatus(value string) (AuditStatus, error) {
	for _, candidate := range validAuditStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid audit status %q", value)
}

// Terminal reports whether the status admits no further transitions.
func (s AuditStatus) Terminal() bool {
	switch s {
	case AuditStatusConfirmed, AuditStatusFailed, AuditStatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo enforces the one-directional status machine: pending is
// the only state with outgoing edges.
func (s AuditStatus) CanTransitionTo(next AuditStatus) bool {
	if s != AuditStatusPending {
		return false
	}
	return next.Terminal()
}
