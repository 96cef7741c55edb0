package voucher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/perkmint/perkmint-backend/internal/audit"
	"github.com/perkmint/perkmint-backend/pkg/chain"
	dbpkg "github.com/perkmint/perkmint-backend/pkg/db"
	"github.com/perkmint/perkmint-backend/pkg/db/models"
	"github.com/perkmint/perkmint-backend/pkg/enums"
	pkgerrors "github.com/perkmint/perkmint-backend/pkg/errors"
	"github.com/perkmint/perkmint-backend/pkg/logger"
	"github.com/perkmint/perkmint-backend/pkg/outbox"
	"github.com/perkmint/perkmint-backend/pkg/outbox/payloads"
	"github.com/perkmint/perkmint-backend/pkg/pagination"
	"github.com/perkmint/perkmint-backend/pkg/storage/ipfs"
)

const auditTrailLimit = 10

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type auditRecorder interface {
	Record(ctx context.Context, tx *gorm.DB, input audit.RecordInput) (*models.AuditTransaction, error)
	ListByVoucher(ctx context.Context, voucherID uuid.UUID, limit int) ([]models.AuditTransaction, error)
}

// ledgerGateway is the slice of the chain client the coordinator submits
// through. Reads used by reconciliation live elsewhere.
type ledgerGateway interface {
	Mint(ctx context.Context, recipient common.Address, merchantRef, metadataURI string) (*chain.Submission, error)
	Use(ctx context.Context, tokenID uint64) (*chain.Submission, error)
	Transfer(ctx context.Context, from, to common.Address, tokenID uint64) (*chain.Submission, error)
	Recycle(ctx context.Context, tokenID uint64) (*chain.Submission, error)
	Custody() common.Address
}

type metadataStore interface {
	AddVoucherMetadata(ctx context.Context, meta ipfs.VoucherMetadata) (string, error)
}

// Service coordinates the voucher lifecycle: every mutation runs the same
// validate → submit → commit protocol, with confirmation arriving later
// through the reconciler.
type Service interface {
	Mint(ctx context.Context, input MintInput) (*models.Voucher, error)
	Use(ctx context.Context, input UseInput) (*UseResult, error)
	Transfer(ctx context.Context, input TransferInput) (*models.Voucher, error)
	Recycle(ctx context.Context, input RecycleInput) (*models.Voucher, error)
	Get(ctx context.Context, id uuid.UUID) (*Detail, error)
	List(ctx context.Context, ownerID uuid.UUID, params pagination.Params) (*List, error)
	PreviewDiscount(ctx context.Context, id uuid.UUID, purchaseAmount decimal.Decimal) (*DiscountPreview, error)
}

type service struct {
	repo     Repository
	auditSvc auditRecorder
	ledger   ledgerGateway
	metadata metadataStore
	tx       txRunner
	outbox   outboxPublisher
	logg     *logger.Logger
}

// MintInput carries the typed parameters for a new voucher. The actor
// becomes the original and current owner.
type MintInput struct {
	ActorID          uuid.UUID
	ActorRole        string
	MerchantRef      string
	DiscountType     enums.DiscountType
	DiscountValue    decimal.Decimal
	MinimumPurchase  decimal.Decimal
	MaxQuantity      int
	IsTransferable   bool
	ExpiresAt        *time.Time
	RecipientAddress string
}

// UseInput redeems a voucher against a purchase.
type UseInput struct {
	VoucherID      uuid.UUID
	ActorID        uuid.UUID
	ActorRole      string
	PurchaseAmount decimal.Decimal
}

// UseResult reports the applied discount alongside the updated voucher.
type UseResult struct {
	Voucher         *models.Voucher
	DiscountApplied decimal.Decimal
	FinalAmount     decimal.Decimal
}

// TransferInput moves ownership between users.
type TransferInput struct {
	VoucherID   uuid.UUID
	ActorID     uuid.UUID
	ActorRole   string
	ToUserID    uuid.UUID
	FromAddress string
	ToAddress   string
}

// RecycleInput reclaims a used voucher. Operator-only at the API boundary.
type RecycleInput struct {
	VoucherID uuid.UUID
	ActorID   uuid.UUID
	ActorRole string
	Reason    string
}

// Detail pairs a voucher with its recent audit trail.
type Detail struct {
	Voucher    *models.Voucher
	AuditTrail []models.AuditTransaction
}

// List is one cursor page of vouchers.
type List struct {
	Vouchers   []models.Voucher
	NextCursor string
}

// DiscountPreview reports what a redemption would grant without running one.
type DiscountPreview struct {
	VoucherID      uuid.UUID
	PurchaseAmount decimal.Decimal
	Discount       decimal.Decimal
	FinalAmount    decimal.Decimal
	Usable         bool
	Reason         string
}

// NewService builds a voucher lifecycle coordinator with the required dependencies.
func NewService(
	repo Repository,
	auditSvc auditRecorder,
	ledger ledgerGateway,
	metadata metadataStore,
	tx txRunner,
	ob outboxPublisher,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("voucher repository required")
	}
	if auditSvc == nil {
		return nil, fmt.Errorf("audit recorder required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("ledger gateway required")
	}
	if metadata == nil {
		return nil, fmt.Errorf("metadata store required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if ob == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:     repo,
		auditSvc: auditSvc,
		ledger:   ledger,
		metadata: metadata,
		tx:       tx,
		outbox:   ob,
		logg:     logg,
	}, nil
}

func (s *service) Mint(ctx context.Context, input MintInput) (*models.Voucher, error) {
	if err := validateMintInput(input); err != nil {
		return nil, err
	}
	now := time.Now().UTC()

	// The content reference is a hard precondition for the on-ledger mint.
	metadataURI, err := s.metadata.AddVoucherMetadata(ctx, ipfs.VoucherMetadata{
		MerchantRef:     input.MerchantRef,
		DiscountType:    string(input.DiscountType),
		DiscountValue:   input.DiscountValue.String(),
		MinimumPurchase: input.MinimumPurchase.String(),
		MaxQuantity:     input.MaxQuantity,
		ExpiresAt:       input.ExpiresAt,
		IssuedAt:        now,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "voucher metadata upload failed")
	}

	recipient := s.resolveAddress(input.RecipientAddress)
	submission, err := s.ledger.Mint(ctx, recipient, input.MerchantRef, metadataURI)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeLedgerSubmission, err, "mint submission failed")
	}

	voucher := &models.Voucher{
		ID:                uuid.New(),
		LedgerTokenID:     int64(submission.TokenID),
		MerchantRef:       input.MerchantRef,
		OriginalOwnerID:   input.ActorID,
		CurrentOwnerID:    input.ActorID,
		DiscountType:      input.DiscountType,
		DiscountValue:     input.DiscountValue,
		MinimumPurchase:   input.MinimumPurchase,
		MaxQuantity:       input.MaxQuantity,
		RemainingQuantity: input.MaxQuantity,
		TotalMinted:       1,
		IsTransferable:    input.IsTransferable,
		IsActive:          true,
		SettlementStatus:  enums.SettlementStatusPending,
		MetadataURI:       metadataURI,
		ExpiresAt:         input.ExpiresAt,
	}

	advisory := voucher.LedgerTokenID
	meta, err := audit.Metadata{
		AdvisoryTokenID: &advisory,
		Recipient:       recipient.Hex(),
	}.Encode()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode audit metadata")
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, voucher); err != nil {
			return err
		}
		if _, err := s.auditSvc.Record(ctx, tx, audit.RecordInput{
			ActorID:      input.ActorID,
			VoucherID:    &voucher.ID,
			Kind:         enums.AuditKindMint,
			ExternalRef:  &submission.TxHash,
			CostEstimate: &submission.CostEstimate,
			Metadata:     meta,
		}); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventVoucherMinted,
			AggregateType: enums.AggregateVoucher,
			AggregateID:   voucher.ID,
			Version:       1,
			Actor:         actorRef(input.ActorID, input.ActorRole),
			Data: payloads.VoucherMintedEvent{
				VoucherID:     voucher.ID,
				LedgerTokenID: voucher.LedgerTokenID,
				MerchantRef:   voucher.MerchantRef,
				OwnerID:       voucher.CurrentOwnerID,
				Quantity:      voucher.MaxQuantity,
				TxHash:        submission.TxHash,
			},
		})
	})
	if err != nil {
		if dbpkg.IsUniqueViolation(err, "") {
			return nil, s.escalateInconsistent(ctx, "mint", submission.TxHash,
				pkgerrors.Wrap(pkgerrors.CodeInconsistent, err, "advisory token id already assigned"))
		}
		return nil, s.escalateInconsistent(ctx, "mint", submission.TxHash, err)
	}

	ctx = s.logg.WithVoucherID(ctx, voucher.ID.String())
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"ledger_token_id": voucher.LedgerTokenID,
		"external_ref":    submission.TxHash,
	}), "voucher minted")
	return voucher, nil
}

func (s *service) Use(ctx context.Context, input UseInput) (*UseResult, error) {
	if input.VoucherID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "voucher id required")
	}
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if !input.PurchaseAmount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "purchase amount must be positive")
	}
	now := time.Now().UTC()

	voucher, err := s.load(ctx, input.VoucherID)
	if err != nil {
		return nil, err
	}
	if ok, reason := voucher.ValidForUse(now); !ok {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, reason)
	}
	if input.PurchaseAmount.LessThan(voucher.MinimumPurchase) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "purchase amount below minimum purchase")
	}
	discount := voucher.CalculateDiscount(input.PurchaseAmount)

	submission, err := s.ledger.Use(ctx, uint64(voucher.LedgerTokenID))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeLedgerSubmission, err, "use submission failed")
	}

	var updated *models.Voucher
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		fresh, err := repo.FindByID(ctx, input.VoucherID)
		if err != nil {
			return err
		}
		snapshot := audit.SnapshotVoucher(fresh)
		if ok, reason := fresh.ValidForUse(now); !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, reason)
		}

		won, err := repo.MarkUsed(ctx, input.VoucherID, input.ActorID, now)
		if err != nil {
			return err
		}
		if !won {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "voucher state changed concurrently")
		}

		meta, err := audit.Metadata{
			Snapshot:       snapshot,
			PurchaseAmount: &input.PurchaseAmount,
		}.Encode()
		if err != nil {
			return err
		}
		if _, err := s.auditSvc.Record(ctx, tx, audit.RecordInput{
			ActorID:      input.ActorID,
			VoucherID:    &input.VoucherID,
			Kind:         enums.AuditKindUse,
			ExternalRef:  &submission.TxHash,
			CostEstimate: &submission.CostEstimate,
			Metadata:     meta,
		}); err != nil {
			return err
		}

		fresh.IsUsed = true
		fresh.UsedAt = &now
		fresh.CurrentOwnerID = input.ActorID
		if fresh.RemainingQuantity > 0 {
			fresh.RemainingQuantity--
		}
		fresh.SettlementStatus = enums.SettlementStatusPending
		updated = fresh

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventVoucherUsed,
			AggregateType: enums.AggregateVoucher,
			AggregateID:   input.VoucherID,
			Version:       1,
			Actor:         actorRef(input.ActorID, input.ActorRole),
			Data: payloads.VoucherUsedEvent{
				VoucherID:       input.VoucherID,
				LedgerTokenID:   fresh.LedgerTokenID,
				UserID:          input.ActorID,
				PurchaseAmount:  input.PurchaseAmount,
				DiscountApplied: discount,
				UsedAt:          now,
			},
		})
	})
	if err != nil {
		return nil, s.escalateInconsistent(ctx, "use", submission.TxHash, err)
	}

	s.logg.Info(s.logg.WithFields(s.logg.WithVoucherID(ctx, input.VoucherID.String()), map[string]any{
		"external_ref": submission.TxHash,
		"discount":     discount.String(),
	}), "voucher used")
	return &UseResult{
		Voucher:         updated,
		DiscountApplied: discount,
		FinalAmount:     input.PurchaseAmount.Sub(discount),
	}, nil
}

func (s *service) Transfer(ctx context.Context, input TransferInput) (*models.Voucher, error) {
	if input.VoucherID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "voucher id required")
	}
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.ToUserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "recipient user id required")
	}
	if input.ToUserID == input.ActorID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cannot transfer a voucher to yourself")
	}
	now := time.Now().UTC()

	voucher, err := s.load(ctx, input.VoucherID)
	if err != nil {
		return nil, err
	}
	if voucher.CurrentOwnerID != input.ActorID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not current owner")
	}
	if ok, reason := voucher.CanBeTransferred(now); !ok {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, reason)
	}

	from := s.resolveAddress(input.FromAddress)
	to := s.resolveAddress(input.ToAddress)
	submission, err := s.ledger.Transfer(ctx, from, to, uint64(voucher.LedgerTokenID))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeLedgerSubmission, err, "transfer submission failed")
	}

	var updated *models.Voucher
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		fresh, err := repo.FindByID(ctx, input.VoucherID)
		if err != nil {
			return err
		}
		snapshot := audit.SnapshotVoucher(fresh)
		if fresh.CurrentOwnerID != input.ActorID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "not current owner")
		}
		if ok, reason := fresh.CanBeTransferred(now); !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, reason)
		}

		won, err := repo.TransferOwner(ctx, input.VoucherID, input.ActorID, input.ToUserID, now)
		if err != nil {
			return err
		}
		if !won {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "voucher state changed concurrently")
		}

		meta, err := audit.Metadata{
			Snapshot:    snapshot,
			FromAddress: from.Hex(),
			ToAddress:   to.Hex(),
		}.Encode()
		if err != nil {
			return err
		}
		if _, err := s.auditSvc.Record(ctx, tx, audit.RecordInput{
			ActorID:      input.ActorID,
			VoucherID:    &input.VoucherID,
			Kind:         enums.AuditKindTransfer,
			ExternalRef:  &submission.TxHash,
			CostEstimate: &submission.CostEstimate,
			Metadata:     meta,
		}); err != nil {
			return err
		}

		fresh.CurrentOwnerID = input.ToUserID
		fresh.SettlementStatus = enums.SettlementStatusPending
		updated = fresh

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventVoucherTransferred,
			AggregateType: enums.AggregateVoucher,
			AggregateID:   input.VoucherID,
			Version:       1,
			Actor:         actorRef(input.ActorID, input.ActorRole),
			Data: payloads.VoucherTransferredEvent{
				VoucherID:     input.VoucherID,
				LedgerTokenID: fresh.LedgerTokenID,
				FromUserID:    input.ActorID,
				ToUserID:      input.ToUserID,
				TransferredAt: now,
			},
		})
	})
	if err != nil {
		return nil, s.escalateInconsistent(ctx, "transfer", submission.TxHash, err)
	}

	s.logg.Info(s.logg.WithFields(s.logg.WithVoucherID(ctx, input.VoucherID.String()), map[string]any{
		"external_ref": submission.TxHash,
		"to_user_id":   input.ToUserID.String(),
	}), "voucher transferred")
	return updated, nil
}

func (s *service) Recycle(ctx context.Context, input RecycleInput) (*models.Voucher, error) {
	if input.VoucherID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "voucher id required")
	}
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	now := time.Now().UTC()

	voucher, err := s.load(ctx, input.VoucherID)
	if err != nil {
		return nil, err
	}
	if !voucher.IsUsed {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only used vouchers can be recycled")
	}
	if !voucher.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "voucher is already inactive")
	}

	submission, err := s.ledger.Recycle(ctx, uint64(voucher.LedgerTokenID))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeLedgerSubmission, err, "recycle submission failed")
	}

	var updated *models.Voucher
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		fresh, err := repo.FindByID(ctx, input.VoucherID)
		if err != nil {
			return err
		}
		snapshot := audit.SnapshotVoucher(fresh)

		won, err := repo.MarkRecycled(ctx, input.VoucherID)
		if err != nil {
			return err
		}
		if !won {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "voucher state changed concurrently")
		}

		meta, err := audit.Metadata{Snapshot: snapshot}.Encode()
		if err != nil {
			return err
		}
		if _, err := s.auditSvc.Record(ctx, tx, audit.RecordInput{
			ActorID:      input.ActorID,
			VoucherID:    &input.VoucherID,
			Kind:         enums.AuditKindRecycle,
			ExternalRef:  &submission.TxHash,
			CostEstimate: &submission.CostEstimate,
			Metadata:     meta,
		}); err != nil {
			return err
		}

		fresh.IsActive = false
		fresh.SettlementStatus = enums.SettlementStatusPending
		updated = fresh

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventVoucherRecycled,
			AggregateType: enums.AggregateVoucher,
			AggregateID:   input.VoucherID,
			Version:       1,
			Actor:         actorRef(input.ActorID, input.ActorRole),
			Data: payloads.VoucherRecycledEvent{
				VoucherID:     input.VoucherID,
				LedgerTokenID: fresh.LedgerTokenID,
				RecycledAt:    now,
				Reason:        input.Reason,
			},
		})
	})
	if err != nil {
		return nil, s.escalateInconsistent(ctx, "recycle", submission.TxHash, err)
	}

	s.logg.Info(s.logg.WithFields(s.logg.WithVoucherID(ctx, input.VoucherID.String()), map[string]any{
		"external_ref": submission.TxHash,
	}), "voucher recycled")
	return updated, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*Detail, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "voucher id required")
	}
	voucher, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	trail, err := s.auditSvc.ListByVoucher(ctx, id, auditTrailLimit)
	if err != nil {
		return nil, err
	}
	return &Detail{Voucher: voucher, AuditTrail: trail}, nil
}

func (s *service) List(ctx context.Context, ownerID uuid.UUID, params pagination.Params) (*List, error) {
	if ownerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	vouchers, next, err := s.repo.ListByOwner(ctx, ownerID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list vouchers")
	}
	list := &List{Vouchers: vouchers}
	if next != nil {
		list.NextCursor = pagination.EncodeCursor(*next)
	}
	return list, nil
}

func (s *service) PreviewDiscount(ctx context.Context, id uuid.UUID, purchaseAmount decimal.Decimal) (*DiscountPreview, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "voucher id required")
	}
	if purchaseAmount.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "purchase amount must not be negative")
	}
	voucher, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	discount := voucher.CalculateDiscount(purchaseAmount)
	usable, reason := voucher.ValidForUse(time.Now().UTC())
	return &DiscountPreview{
		VoucherID:      id,
		PurchaseAmount: purchaseAmount,
		Discount:       discount,
		FinalAmount:    purchaseAmount.Sub(discount),
		Usable:         usable,
		Reason:         reason,
	}, nil
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.Voucher, error) {
	voucher, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "voucher not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load voucher")
	}
	return voucher, nil
}

// escalateInconsistent classifies a commit failure that happened after a
// successful ledger submission. Business refusals pass through unchanged:
// the pending submission resolves through reconciliation (receipt revert or
// orphan repair). Anything else means the ledger and the store now disagree.
func (s *service) escalateInconsistent(ctx context.Context, op, externalRef string, err error) error {
	ctx = s.logg.WithFields(ctx, map[string]any{
		"operation":    op,
		"external_ref": externalRef,
	})
	if typed := pkgerrors.As(err); typed != nil {
		switch typed.Code() {
		case pkgerrors.CodeValidation, pkgerrors.CodeNotFound, pkgerrors.CodeForbidden,
			pkgerrors.CodeConflict, pkgerrors.CodeStateConflict:
			s.logg.Warn(ctx, "commit refused after ledger submission; awaiting reconciliation")
			return typed
		case pkgerrors.CodeInconsistent:
			s.logg.Error(ctx, "reconciliation required: ledger and store diverged", typed)
			return typed
		}
	}
	s.logg.Error(ctx, "reconciliation required: commit failed after ledger submission", err)
	return pkgerrors.Wrap(pkgerrors.CodeInconsistent, err,
		fmt.Sprintf("%s submitted to ledger but store update failed", op))
}

// resolveAddress parses an optional 0x override, defaulting to custody.
func (s *service) resolveAddress(raw string) common.Address {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || !common.IsHexAddress(trimmed) {
		return s.ledger.Custody()
	}
	return common.HexToAddress(trimmed)
}

func actorRef(userID uuid.UUID, role string) *outbox.ActorRef {
	if userID == uuid.Nil {
		return nil
	}
	return &outbox.ActorRef{UserID: userID, Role: role}
}

func validateMintInput(input MintInput) error {
	if input.ActorID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if strings.TrimSpace(input.MerchantRef) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "merchant ref required")
	}
	if !input.DiscountType.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid discount type %q", input.DiscountType))
	}
	if !input.DiscountValue.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "discount value must be positive")
	}
	if input.DiscountType == enums.DiscountTypePercentage && input.DiscountValue.GreaterThan(decimal.NewFromInt(100)) {
		return pkgerrors.New(pkgerrors.CodeValidation, "percentage discount cannot exceed 100")
	}
	if input.MinimumPurchase.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "minimum purchase must not be negative")
	}
	if input.MaxQuantity < 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "max quantity must be at least 1")
	}
	if input.ExpiresAt != nil && !input.ExpiresAt.After(time.Now().UTC()) {
		return pkgerrors.New(pkgerrors.CodeValidation, "expiry must be in the future")
	}
	return nil
}
