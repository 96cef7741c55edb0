package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateVoucher          OutboxAggregateType = "voucher"
	AggregateLottery          OutboxAggregateType = "lottery"
	AggregateAuditTransaction OutboxAggregateType = "audit_transaction"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateVoucher,
	AggregateLottery,
	AggregateAuditTransaction,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventVoucherMinted      OutboxEventType = "voucher_minted"
	EventVoucherUsed        OutboxEventType = "voucher_used"
	EventVoucherTransferred OutboxEventType = "voucher_transferred"
	EventVoucherRecycled    OutboxEventType = "voucher_recycled"
	EventLotteryCreated     OutboxEventType = "lottery_created"
	EventLotteryEntered     OutboxEventType = "lottery_entered"
	EventLotteryDrawn       OutboxEventType = "lottery_drawn"
	EventSettlementReached  OutboxEventType = "settlement_confirmed"
	EventSettlementFailed   OutboxEventType = "settlement_failed"
)

var validOutboxEventTypes = []OutboxEventType{
	EventVoucherMinted,
	EventVoucherUsed,
	EventVoucherTransferred,
	EventVoucherRecycled,
	EventLotteryCreated,
	EventLotteryEntered,
	EventLotteryDrawn,
	EventSettlementReached,
	EventSettlementFailed,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

// OutboxDLQErrorReason records why an event was parked in the DLQ.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

var validOutboxDLQErrorReasons = []OutboxDLQErrorReason{
	OutboxDLQReasonMaxAttempts,
	OutboxDLQReasonNonRetryable,
}

func (r OutboxDLQErrorReason) IsValid() bool {
	for _, candidate := range validOutboxDLQErrorReasons {
		if candidate == r {
			return true
		}
	}
	return false
}
