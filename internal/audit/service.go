package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/perkmint/perkmint-backend/pkg/db/models"
	"github.com/perkmint/perkmint-backend/pkg/enums"
	pkgerrors "github.com/perkmint/perkmint-backend/pkg/errors"
)

// Service defines operations over the audit trail. Record is the only way
// rows are born; the Mark* methods are the only way they change.
type Service interface {
	Record(ctx context.Context, tx *gorm.DB, input RecordInput) (*models.AuditTransaction, error)
	MarkConfirmed(ctx context.Context, id uuid.UUID, costActual *decimal.Decimal) error
	MarkFailed(ctx context.Context, id uuid.UUID) error
	MarkCancelled(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*models.AuditTransaction, error)
	FindByExternalRef(ctx context.Context, ref string) (*models.AuditTransaction, error)
	ListByVoucher(ctx context.Context, voucherID uuid.UUID, limit int) ([]models.AuditTransaction, error)
	ListByLottery(ctx context.Context, lotteryID uuid.UUID, limit int) ([]models.AuditTransaction, error)
	ListPendingWithRef(ctx context.Context, limit int) ([]models.AuditTransaction, error)
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.AuditTransaction, error)
}

// RecordInput captures the immutable data an audit transaction requires.
// Kinds that settle on the external ledger must carry the submission
// reference and start pending; store-only kinds (lottery entries and wins)
// are born confirmed with no reference.
type RecordInput struct {
	ActorID      uuid.UUID
	VoucherID    *uuid.UUID
	LotteryID    *uuid.UUID
	Kind         enums.AuditKind
	ExternalRef  *string
	CostEstimate *decimal.Decimal
	Metadata     json.RawMessage
}

type service struct {
	repo Repository
}

// NewService wires an audit service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("audit repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Record(ctx context.Context, tx *gorm.DB, input RecordInput) (*models.AuditTransaction, error) {
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "actor id required")
	}
	if !input.Kind.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid audit kind %q", input.Kind))
	}

	switch input.Kind {
	case enums.AuditKindLotteryEntry, enums.AuditKindLotteryWin:
		if input.LotteryID == nil || *input.LotteryID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "lottery id required")
		}
	default:
		if input.VoucherID == nil || *input.VoucherID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "voucher id required")
		}
	}

	txn := &models.AuditTransaction{
		ActorID:      input.ActorID,
		VoucherID:    input.VoucherID,
		LotteryID:    input.LotteryID,
		Kind:         input.Kind,
		CostEstimate: input.CostEstimate,
		Metadata:     input.Metadata,
	}

	if input.Kind.RequiresLedgerRef() {
		if input.ExternalRef == nil || *input.ExternalRef == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "external reference required")
		}
		txn.ExternalRef = input.ExternalRef
		txn.Status = enums.AuditStatusPending
	} else {
		if input.ExternalRef != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "store-only audit kinds carry no external reference")
		}
		now := time.Now().UTC()
		txn.Status = enums.AuditStatusConfirmed
		txn.ConfirmedAt = &now
	}

	if err := s.repo.WithTx(tx).Create(ctx, txn); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "create audit transaction")
	}
	return txn, nil
}

func (s *service) MarkConfirmed(ctx context.Context, id uuid.UUID, costActual *decimal.Decimal) error {
	if id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "audit transaction id required")
	}
	updated, err := s.repo.MarkConfirmed(ctx, id, costActual, time.Now().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "confirm audit transaction")
	}
	if !updated {
		return s.transitionRefused(ctx, id)
	}
	return nil
}

func (s *service) MarkFailed(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "audit transaction id required")
	}
	updated, err := s.repo.MarkFailed(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "fail audit transaction")
	}
	if !updated {
		return s.transitionRefused(ctx, id)
	}
	return nil
}

func (s *service) MarkCancelled(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "audit transaction id required")
	}
	updated, err := s.repo.MarkCancelled(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "cancel audit transaction")
	}
	if !updated {
		return s.transitionRefused(ctx, id)
	}
	return nil
}

// transitionRefused distinguishes a missing row from one already terminal.
func (s *service) transitionRefused(ctx context.Context, id uuid.UUID) error {
	txn, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "audit transaction not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load audit transaction")
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict,
		fmt.Sprintf("audit transaction is %s, not pending", txn.Status))
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.AuditTransaction, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "audit transaction id required")
	}
	txn, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "audit transaction not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load audit transaction")
	}
	return txn, nil
}

func (s *service) FindByExternalRef(ctx context.Context, ref string) (*models.AuditTransaction, error) {
	if ref == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "external reference required")
	}
	txn, err := s.repo.FindByExternalRef(ctx, ref)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "audit transaction not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load audit transaction")
	}
	return txn, nil
}

func (s *service) ListByVoucher(ctx context.Context, voucherID uuid.UUID, limit int) ([]models.AuditTransaction, error) {
	if voucherID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "voucher id required")
	}
	txns, err := s.repo.ListByVoucher(ctx, voucherID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list audit transactions")
	}
	return txns, nil
}

func (s *service) ListByLottery(ctx context.Context, lotteryID uuid.UUID, limit int) ([]models.AuditTransaction, error) {
	if lotteryID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "lottery id required")
	}
	txns, err := s.repo.ListByLottery(ctx, lotteryID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list audit transactions")
	}
	return txns, nil
}

func (s *service) ListPendingWithRef(ctx context.Context, limit int) ([]models.AuditTransaction, error) {
	txns, err := s.repo.ListPendingWithRef(ctx, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending audit transactions")
	}
	return txns, nil
}

func (s *service) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.AuditTransaction, error) {
	txns, err := s.repo.ListStalePending(ctx, cutoff, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stale audit transactions")
	}
	return txns, nil
}
