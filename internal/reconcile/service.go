package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/perkmint/perkmint-backend/internal/audit"
	"github.com/perkmint/perkmint-backend/internal/voucher"
	"github.com/perkmint/perkmint-backend/pkg/chain"
	"github.com/perkmint/perkmint-backend/pkg/config"
	"github.com/perkmint/perkmint-backend/pkg/db/models"
	"github.com/perkmint/perkmint-backend/pkg/enums"
	pkgerrors "github.com/perkmint/perkmint-backend/pkg/errors"
	"github.com/perkmint/perkmint-backend/pkg/logger"
	"github.com/perkmint/perkmint-backend/pkg/metrics"
	"github.com/perkmint/perkmint-backend/pkg/outbox"
	"github.com/perkmint/perkmint-backend/pkg/outbox/payloads"
)

const (
	taskCorrelate = "correlate"
	taskExpire    = "expire_stale"
	taskRepair    = "repair_orphans"

	defaultBatchSize      = 25
	defaultPendingTimeout = 30 * time.Minute
	defaultLookbackBlocks = 5000
	defaultReceiptRetries = 3
	defaultRetryBase      = 200 * time.Millisecond
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// outboxPublisher queues settlement outcomes. Repair and expiry paths can
// revisit a row, so emission must be idempotent per type/aggregate pair.
type outboxPublisher interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ledgerReader is the read-only slice of the chain client: receipts and
// event logs are the only source of confirmed status.
type ledgerReader interface {
	Receipt(ctx context.Context, txHash string) (*chain.Confirmation, error)
	Events(ctx context.Context, fromBlock, toBlock uint64) ([]chain.Event, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Service resolves pending audit transactions against the ledger. The store
// holds business truth; the ledger holds settlement truth. Whenever the two
// disagree after confirmation, the store moves.
type Service interface {
	CorrelateOnce(ctx context.Context) (*PassStats, error)
	ExpireStale(ctx context.Context) (*PassStats, error)
	RepairOrphans(ctx context.Context) (*PassStats, error)
}

// PassStats reports what one reconciliation pass did.
type PassStats struct {
	Scanned   int
	Confirmed int
	Failed    int
	Cancelled int
	Skipped   int
	Repaired  int
	Errors    int
}

type service struct {
	audits   audit.Repository
	vouchers voucher.Repository
	ledger   ledgerReader
	tx       txRunner
	outbox   outboxPublisher
	worker   *metrics.WorkerMetrics
	logg     *logger.Logger

	batchSize      int
	pendingTimeout time.Duration
	lookbackBlocks uint64
	receiptRetries uint64
	retryBase      time.Duration
}

// NewService wires a reconciler. The metrics handle may be nil; recording
// becomes a no-op.
func NewService(
	audits audit.Repository,
	vouchers voucher.Repository,
	ledger ledgerReader,
	tx txRunner,
	ob outboxPublisher,
	worker *metrics.WorkerMetrics,
	cfg config.ReconcilerConfig,
	logg *logger.Logger,
) (Service, error) {
	if audits == nil {
		return nil, fmt.Errorf("audit repository is required")
	}
	if vouchers == nil {
		return nil, fmt.Errorf("voucher repository is required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("ledger reader is required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner is required")
	}
	if ob == nil {
		return nil, fmt.Errorf("outbox publisher is required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger is required")
	}

	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	pendingTimeout := cfg.PendingTimeout
	if pendingTimeout <= 0 {
		pendingTimeout = defaultPendingTimeout
	}
	lookback := cfg.LookbackBlocks
	if lookback == 0 {
		lookback = defaultLookbackBlocks
	}
	retries := cfg.ReceiptRetries
	if retries == 0 {
		retries = defaultReceiptRetries
	}
	retryBase := cfg.ReceiptRetryBase
	if retryBase <= 0 {
		retryBase = defaultRetryBase
	}

	return &service{
		audits:         audits,
		vouchers:       vouchers,
		ledger:         ledger,
		tx:             tx,
		outbox:         ob,
		worker:         worker,
		logg:           logg,
		batchSize:      batch,
		pendingTimeout: pendingTimeout,
		lookbackBlocks: lookback,
		receiptRetries: retries,
		retryBase:      retryBase,
	}, nil
}

// CorrelateOnce resolves one batch of pending audit transactions against
// mined receipts. Rows without a receipt yet are skipped for a later pass.
func (s *service) CorrelateOnce(ctx context.Context) (*PassStats, error) {
	started := time.Now()
	stats := &PassStats{}

	rows, err := s.audits.ListPendingWithRef(ctx, s.batchSize)
	if err != nil {
		s.worker.IncFailure(taskCorrelate)
		return stats, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending audit transactions")
	}
	stats.Scanned = len(rows)

	var errs error
	for i := range rows {
		row := rows[i]
		conf, err := s.lookupReceipt(ctx, *row.ExternalRef)
		if err != nil {
			if errors.Is(err, chain.ErrReceiptNotFound) {
				stats.Skipped++
				continue
			}
			stats.Errors++
			errs = multierr.Append(errs, fmt.Errorf("receipt %s: %w", *row.ExternalRef, err))
			continue
		}

		if conf.Success {
			if err := s.confirmRow(ctx, &row, conf); err != nil {
				stats.Errors++
				errs = multierr.Append(errs, fmt.Errorf("confirm %s: %w", row.ID, err))
				continue
			}
			stats.Confirmed++
			continue
		}

		if err := s.failRow(ctx, &row, "ledger transaction reverted"); err != nil {
			stats.Errors++
			errs = multierr.Append(errs, fmt.Errorf("fail %s: %w", row.ID, err))
			continue
		}
		stats.Failed++
	}

	s.finishPass(taskCorrelate, started, stats, errs)
	return stats, errs
}

// ExpireStale cancels pending rows older than the deadline that still have
// no receipt. A stale row that turns out to be mined is correlated instead.
func (s *service) ExpireStale(ctx context.Context) (*PassStats, error) {
	started := time.Now()
	stats := &PassStats{}

	cutoff := time.Now().UTC().Add(-s.pendingTimeout)
	rows, err := s.audits.ListStalePending(ctx, cutoff, s.batchSize)
	if err != nil {
		s.worker.IncFailure(taskExpire)
		return stats, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stale audit transactions")
	}
	stats.Scanned = len(rows)

	var errs error
	for i := range rows {
		row := rows[i]
		if row.ExternalRef != nil {
			conf, err := s.ledger.Receipt(ctx, *row.ExternalRef)
			if err == nil {
				// Mined after all; resolve it properly instead of cancelling.
				if conf.Success {
					if err := s.confirmRow(ctx, &row, conf); err != nil {
						stats.Errors++
						errs = multierr.Append(errs, fmt.Errorf("confirm %s: %w", row.ID, err))
						continue
					}
					stats.Confirmed++
				} else {
					if err := s.failRow(ctx, &row, "ledger transaction reverted"); err != nil {
						stats.Errors++
						errs = multierr.Append(errs, fmt.Errorf("fail %s: %w", row.ID, err))
						continue
					}
					stats.Failed++
				}
				continue
			}
			if !errors.Is(err, chain.ErrReceiptNotFound) {
				stats.Errors++
				errs = multierr.Append(errs, fmt.Errorf("receipt %s: %w", *row.ExternalRef, err))
				continue
			}
		}

		if err := s.cancelRow(ctx, &row); err != nil {
			stats.Errors++
			errs = multierr.Append(errs, fmt.Errorf("cancel %s: %w", row.ID, err))
			continue
		}
		stats.Cancelled++
	}

	s.finishPass(taskExpire, started, stats, errs)
	return stats, errs
}

// RepairOrphans scans the recent event window for transactions the store
// never recorded, the step-three failure case: the ledger moved and the
// commit did not. Repairs always move the store toward the ledger.
func (s *service) RepairOrphans(ctx context.Context) (*PassStats, error) {
	started := time.Now()
	stats := &PassStats{}

	head, err := s.ledger.BlockNumber(ctx)
	if err != nil {
		s.worker.IncFailure(taskRepair)
		return stats, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read ledger head")
	}
	from := uint64(0)
	if head > s.lookbackBlocks {
		from = head - s.lookbackBlocks
	}

	events, err := s.ledger.Events(ctx, from, head)
	if err != nil {
		s.worker.IncFailure(taskRepair)
		return stats, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "scan ledger events")
	}
	stats.Scanned = len(events)

	var errs error
	for i := range events {
		event := events[i]
		if _, err := s.audits.FindByExternalRef(ctx, event.TxHash); err == nil {
			continue
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			stats.Errors++
			errs = multierr.Append(errs, fmt.Errorf("lookup %s: %w", event.TxHash, err))
			continue
		}

		if err := s.repairOrphan(ctx, event); err != nil {
			stats.Errors++
			errs = multierr.Append(errs, fmt.Errorf("repair %s: %w", event.TxHash, err))
			continue
		}
		stats.Repaired++
	}

	s.finishPass(taskRepair, started, stats, errs)
	return stats, errs
}

// lookupReceipt polls for a receipt with bounded exponential retries on
// transient errors. ErrReceiptNotFound passes straight through: not mined
// yet is an answer, not a failure.
func (s *service) lookupReceipt(ctx context.Context, ref string) (*chain.Confirmation, error) {
	var conf *chain.Confirmation
	backoff := retry.WithMaxRetries(s.receiptRetries, retry.NewExponential(s.retryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		conf, err = s.ledger.Receipt(ctx, ref)
		if err != nil {
			if errors.Is(err, chain.ErrReceiptNotFound) {
				return err
			}
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return conf, nil
}

func (s *service) confirmRow(ctx context.Context, row *models.AuditTransaction, conf *chain.Confirmation) error {
	now := time.Now().UTC()
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		updated, err := s.audits.WithTx(tx).MarkConfirmed(ctx, row.ID, &conf.CostActual, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "confirm audit transaction")
		}
		if !updated {
			// Another pass resolved the row first.
			return nil
		}

		if row.VoucherID != nil {
			if _, err := s.vouchers.WithTx(tx).SetSettlementStatus(ctx, *row.VoucherID, enums.SettlementStatusSettled); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "settle voucher")
			}
			if row.Kind == enums.AuditKindMint {
				if err := s.verifyMintTokenID(ctx, tx, row, conf); err != nil {
					return err
				}
			}
		}

		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSettlementReached,
			AggregateType: enums.AggregateAuditTransaction,
			AggregateID:   row.ID,
			Version:       1,
			Data: payloads.SettlementConfirmedEvent{
				AuditTransactionID: row.ID,
				Kind:               row.Kind,
				ExternalRef:        *row.ExternalRef,
				CostActual:         &conf.CostActual,
				ConfirmedAt:        now,
			},
		})
	})
	if err != nil {
		return err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"audit_transaction_id": row.ID.String(),
		"kind":                 row.Kind,
		"external_ref":         *row.ExternalRef,
		"block_number":         conf.BlockNumber,
	}), "audit transaction confirmed")
	return nil
}

// verifyMintTokenID checks the token id the ledger actually assigned against
// the advisory id recorded at submit time. The ledger wins.
func (s *service) verifyMintTokenID(ctx context.Context, tx *gorm.DB, row *models.AuditTransaction, conf *chain.Confirmation) error {
	events, err := s.ledger.Events(ctx, conf.BlockNumber, conf.BlockNumber)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load mint events")
	}

	var minted *chain.Event
	for i := range events {
		if events[i].Kind == chain.EventMinted && strings.EqualFold(events[i].TxHash, *row.ExternalRef) {
			minted = &events[i]
			break
		}
	}
	if minted == nil {
		s.logg.Warn(s.logg.WithField(ctx, "external_ref", *row.ExternalRef),
			"mint confirmed without a minted event in its block")
		return nil
	}

	vouchers := s.vouchers.WithTx(tx)
	stored, err := vouchers.FindByID(ctx, *row.VoucherID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load voucher")
	}

	actual := int64(minted.TokenID)
	if stored.LedgerTokenID == actual {
		return nil
	}

	if err := vouchers.Update(ctx, stored.ID, map[string]any{"ledger_token_id": actual}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "repair ledger token id")
	}
	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
		"voucher_id":      stored.ID.String(),
		"stored_token_id": stored.LedgerTokenID,
		"ledger_token_id": actual,
		"external_ref":    *row.ExternalRef,
	}), "ledger assigned a different token id; store repaired")
	s.worker.AddItems(taskCorrelate, "token_id_repaired", 1)
	return nil
}

func (s *service) failRow(ctx context.Context, row *models.AuditTransaction, reason string) error {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		updated, err := s.audits.WithTx(tx).MarkFailed(ctx, row.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "fail audit transaction")
		}
		if !updated {
			return nil
		}
		if err := s.compensate(ctx, tx, row); err != nil {
			return err
		}
		return s.emitSettlementFailed(ctx, tx, row, reason)
	})
	if err != nil {
		return err
	}

	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
		"audit_transaction_id": row.ID.String(),
		"kind":                 row.Kind,
		"external_ref":         derefRef(row.ExternalRef),
		"reason":               reason,
	}), "audit transaction failed; store compensated")
	return nil
}

func (s *service) cancelRow(ctx context.Context, row *models.AuditTransaction) error {
	const reason = "submission expired without a receipt"
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		updated, err := s.audits.WithTx(tx).MarkCancelled(ctx, row.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "cancel audit transaction")
		}
		if !updated {
			return nil
		}
		if err := s.compensate(ctx, tx, row); err != nil {
			return err
		}
		return s.emitSettlementFailed(ctx, tx, row, reason)
	})
	if err != nil {
		return err
	}

	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
		"audit_transaction_id": row.ID.String(),
		"kind":                 row.Kind,
		"external_ref":         derefRef(row.ExternalRef),
		"pending_since":        row.CreatedAt,
	}), "stale audit transaction cancelled; store compensated")
	return nil
}

// compensate restores the voucher's pre-submission state from the snapshot
// captured at commit time, marking the settlement failed.
func (s *service) compensate(ctx context.Context, tx *gorm.DB, row *models.AuditTransaction) error {
	if row.VoucherID == nil {
		return nil
	}

	meta, err := audit.DecodeMetadata(row.Metadata)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode audit metadata")
	}

	updates := map[string]any{"settlement_status": enums.SettlementStatusFailed}
	switch row.Kind {
	case enums.AuditKindMint:
		updates["is_active"] = false
	case enums.AuditKindUse:
		if meta.Snapshot == nil {
			s.missingSnapshot(ctx, row)
			break
		}
		updates["is_used"] = meta.Snapshot.IsUsed
		updates["used_at"] = meta.Snapshot.UsedAt
		updates["current_owner_id"] = meta.Snapshot.CurrentOwnerID
		updates["remaining_quantity"] = meta.Snapshot.RemainingQuantity
		updates["is_active"] = meta.Snapshot.IsActive
	case enums.AuditKindTransfer:
		if meta.Snapshot == nil {
			s.missingSnapshot(ctx, row)
			break
		}
		updates["current_owner_id"] = meta.Snapshot.CurrentOwnerID
	case enums.AuditKindRecycle:
		if meta.Snapshot == nil {
			s.missingSnapshot(ctx, row)
			break
		}
		updates["is_active"] = meta.Snapshot.IsActive
	default:
		return nil
	}

	if err := s.vouchers.WithTx(tx).Update(ctx, *row.VoucherID, updates); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "compensate voucher")
	}
	return nil
}

func (s *service) missingSnapshot(ctx context.Context, row *models.AuditTransaction) {
	s.logg.Error(s.logg.WithFields(ctx, map[string]any{
		"audit_transaction_id": row.ID.String(),
		"kind":                 row.Kind,
	}), "compensation snapshot missing; only settlement status reset", nil)
}

// repairOrphan records a mined event the store never saw. The audit row is
// recreated in confirmed status with repair provenance; any existing voucher
// row is moved to the ledger's state.
func (s *service) repairOrphan(ctx context.Context, event chain.Event) error {
	now := time.Now().UTC()

	kind, ok := auditKindForEvent(event.Kind)
	if !ok {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"event_kind": event.Kind,
			"tx_hash":    event.TxHash,
		}), "unrecognized ledger event kind; skipping")
		return nil
	}

	stored, err := s.vouchers.FindByLedgerTokenID(ctx, int64(event.TokenID))
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load voucher by token id")
	}

	meta := audit.Metadata{
		Repair: fmt.Sprintf("recovered from ledger event %s for token %d", event.Kind, event.TokenID),
	}
	if event.From != (common.Address{}) {
		meta.FromAddress = event.From.Hex()
	}
	if event.To != (common.Address{}) {
		meta.ToAddress = event.To.Hex()
	}
	raw, err := meta.Encode()
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode repair metadata")
	}

	txHash := event.TxHash
	repairRow := &models.AuditTransaction{
		ID:          uuid.New(),
		ActorID:     uuid.Nil,
		Kind:        kind,
		ExternalRef: &txHash,
		Status:      enums.AuditStatusConfirmed,
		Metadata:    raw,
		ConfirmedAt: &now,
	}
	if stored != nil {
		repairRow.VoucherID = &stored.ID
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if stored != nil {
			updates := s.orphanRepairUpdates(event, stored, now)
			if err := s.vouchers.WithTx(tx).Update(ctx, stored.ID, updates); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "repair voucher state")
			}
		}
		if err := s.audits.WithTx(tx).Create(ctx, repairRow); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "create repair audit row")
		}
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSettlementReached,
			AggregateType: enums.AggregateAuditTransaction,
			AggregateID:   repairRow.ID,
			Version:       1,
			Data: payloads.SettlementConfirmedEvent{
				AuditTransactionID: repairRow.ID,
				Kind:               kind,
				ExternalRef:        txHash,
				ConfirmedAt:        now,
			},
		})
	})
	if err != nil {
		return err
	}

	fields := map[string]any{
		"tx_hash":    event.TxHash,
		"event_kind": event.Kind,
		"token_id":   event.TokenID,
	}
	if stored != nil {
		fields["voucher_id"] = stored.ID.String()
		s.logg.Warn(s.logg.WithFields(ctx, fields), "orphaned ledger event repaired")
	} else {
		s.logg.Error(s.logg.WithFields(ctx, fields),
			"orphaned ledger event has no voucher row; audit trail recorded, manual backfill required", nil)
	}
	return nil
}

// orphanRepairUpdates maps a mined event onto voucher columns. Ownership is
// tracked at user level in the store, so address-level moves only settle the
// row; they cannot name a new owner.
func (s *service) orphanRepairUpdates(event chain.Event, stored *models.Voucher, now time.Time) map[string]any {
	updates := map[string]any{"settlement_status": enums.SettlementStatusSettled}
	switch event.Kind {
	case chain.EventRedeemed:
		if !stored.IsUsed {
			remaining := stored.RemainingQuantity - 1
			if remaining < 0 {
				remaining = 0
			}
			updates["is_used"] = true
			updates["used_at"] = now
			updates["remaining_quantity"] = remaining
		}
	case chain.EventRecycled:
		updates["is_active"] = false
	}
	return updates
}

func (s *service) emitSettlementFailed(ctx context.Context, tx *gorm.DB, row *models.AuditTransaction, reason string) error {
	return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventSettlementFailed,
		AggregateType: enums.AggregateAuditTransaction,
		AggregateID:   row.ID,
		Version:       1,
		Data: payloads.SettlementFailedEvent{
			AuditTransactionID: row.ID,
			Kind:               row.Kind,
			ExternalRef:        row.ExternalRef,
			Reason:             reason,
		},
	})
}

func (s *service) finishPass(task string, started time.Time, stats *PassStats, errs error) {
	s.worker.ObserveDuration(task, time.Since(started))
	if errs != nil {
		s.worker.IncFailure(task)
	} else {
		s.worker.IncSuccess(task)
	}
	s.worker.AddItems(task, "confirmed", stats.Confirmed)
	s.worker.AddItems(task, "failed", stats.Failed)
	s.worker.AddItems(task, "cancelled", stats.Cancelled)
	s.worker.AddItems(task, "skipped", stats.Skipped)
	s.worker.AddItems(task, "repaired", stats.Repaired)
	s.worker.AddItems(task, "error", stats.Errors)
}

func auditKindForEvent(kind chain.EventKind) (enums.AuditKind, bool) {
	switch kind {
	case chain.EventMinted:
		return enums.AuditKindMint, true
	case chain.EventRedeemed:
		return enums.AuditKindUse, true
	case chain.EventTransferred:
		return enums.AuditKindTransfer, true
	case chain.EventRecycled:
		return enums.AuditKindRecycle, true
	default:
		return "", false
	}
}

func derefRef(ref *string) string {
	if ref == nil {
		return ""
	}
	return *ref
}
