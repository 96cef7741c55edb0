package chain

import (
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ErrReceiptNotFound reports that a transaction has not been mined yet.
// Callers poll again later; it is not a failure.
var ErrReceiptNotFound = errors.New("receipt not found")

// Submission is the immediate result of a write call. The transaction is
// pending at this point; finality arrives through Receipt or Events.
type Submission struct {
	TxHash       string
	TokenID      uint64
	CostEstimate decimal.Decimal
	SubmittedAt  time.Time
}

// Confirmation is a mined transaction outcome.
type Confirmation struct {
	TxHash      string
	Success     bool
	BlockNumber uint64
	GasUsed     uint64
	CostActual  decimal.Decimal
}

// EventKind names a contract log type.
type EventKind string

const (
	EventMinted      EventKind = "VoucherMinted"
	EventTransferred EventKind = "VoucherTransferred"
	EventRedeemed    EventKind = "VoucherRedeemed"
	EventRecycled    EventKind = "VoucherRecycled"
)

// Event is one decoded contract log.
type Event struct {
	Kind        EventKind
	TokenID     uint64
	From        common.Address
	To          common.Address
	MerchantRef string
	TxHash      string
	BlockNumber uint64
}

// TokenState is the contract's view of one token. Exists is false when the
// token id has never been assigned.
type TokenState struct {
	Exists      bool
	Owner       common.Address
	Redeemed    bool
	Recycled    bool
	MerchantRef string
}
