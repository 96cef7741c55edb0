package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/perkmint/perkmint-backend/pkg/enums"
)

// VoucherMintedEvent signals a voucher batch reached the ledger.
type VoucherMintedEvent struct {
	VoucherID     uuid.UUID `json:"voucher_id"`
	LedgerTokenID int64     `json:"ledger_token_id"`
	MerchantRef   string    `json:"merchant_ref"`
	OwnerID       uuid.UUID `json:"owner_id"`
	Quantity      int       `json:"quantity"`
	TxHash        string    `json:"tx_hash"`
}

// VoucherUsedEvent is emitted when a voucher is redeemed at a merchant.
type VoucherUsedEvent struct {
	VoucherID       uuid.UUID       `json:"voucher_id"`
	LedgerTokenID   int64           `json:"ledger_token_id"`
	UserID          uuid.UUID       `json:"user_id"`
	PurchaseAmount  decimal.Decimal `json:"purchase_amount"`
	DiscountApplied decimal.Decimal `json:"discount_applied"`
	UsedAt          time.Time       `json:"used_at"`
}

// VoucherTransferredEvent is emitted when ownership moves between users.
type VoucherTransferredEvent struct {
	VoucherID     uuid.UUID `json:"voucher_id"`
	LedgerTokenID int64     `json:"ledger_token_id"`
	FromUserID    uuid.UUID `json:"from_user_id"`
	ToUserID      uuid.UUID `json:"to_user_id"`
	TransferredAt time.Time `json:"transferred_at"`
}

// VoucherRecycledEvent is emitted when a spent voucher is reclaimed.
type VoucherRecycledEvent struct {
	VoucherID     uuid.UUID `json:"voucher_id"`
	LedgerTokenID int64     `json:"ledger_token_id"`
	RecycledAt    time.Time `json:"recycled_at"`
	Reason        string    `json:"reason,omitempty"`
}

// LotteryCreatedEvent announces a newly opened lottery.
type LotteryCreatedEvent struct {
	LotteryID      uuid.UUID `json:"lottery_id"`
	Title          string    `json:"title"`
	StartsAt       time.Time `json:"starts_at"`
	EndsAt         time.Time `json:"ends_at"`
	TotalPrizes    int       `json:"total_prizes"`
	SeedCommitment *string   `json:"seed_commitment,omitempty"`
}

// LotteryEnteredEvent records a participant joining a lottery.
type LotteryEnteredEvent struct {
	LotteryID   uuid.UUID `json:"lottery_id"`
	UserID      uuid.UUID `json:"user_id"`
	EntryNumber int       `json:"entry_number"`
	EnteredAt   time.Time `json:"entered_at"`
}

// LotteryWinner is one prize assignment inside a draw event.
type LotteryWinner struct {
	UserID      uuid.UUID         `json:"user_id"`
	PrizeIndex  int               `json:"prize_index"`
	PrizeType   enums.PrizeType   `json:"prize_type"`
	PrizeValue  decimal.Decimal   `json:"prize_value"`
	PrizeRarity enums.PrizeRarity `json:"prize_rarity"`
}

// LotteryDrawnEvent carries the reproducible draw outcome.
type LotteryDrawnEvent struct {
	LotteryID    uuid.UUID       `json:"lottery_id"`
	Seed         string          `json:"seed"`
	Participants int             `json:"participants"`
	Winners      []LotteryWinner `json:"winners"`
	DrawnAt      time.Time       `json:"drawn_at"`
}

// SettlementConfirmedEvent is emitted when the ledger confirms an audit transaction.
type SettlementConfirmedEvent struct {
	AuditTransactionID uuid.UUID        `json:"audit_transaction_id"`
	Kind               enums.AuditKind  `json:"kind"`
	ExternalRef        string           `json:"external_ref"`
	CostActual         *decimal.Decimal `json:"cost_actual,omitempty"`
	ConfirmedAt        time.Time        `json:"confirmed_at"`
}

// SettlementFailedEvent is emitted when a submission is rejected or reverted.
type SettlementFailedEvent struct {
	AuditTransactionID uuid.UUID       `json:"audit_transaction_id"`
	Kind               enums.AuditKind `json:"kind"`
	ExternalRef        *string         `json:"external_ref,omitempty"`
	Reason             string          `json:"reason"`
}
