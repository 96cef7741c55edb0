package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/perkmint/perkmint-backend/api/responses"
	"github.com/perkmint/perkmint-backend/api/validators"
	"github.com/perkmint/perkmint-backend/internal/voucher"
	"github.com/perkmint/perkmint-backend/pkg/db/models"
	"github.com/perkmint/perkmint-backend/pkg/enums"
	pkgerrors "github.com/perkmint/perkmint-backend/pkg/errors"
	"github.com/perkmint/perkmint-backend/pkg/logger"
	"github.com/perkmint/perkmint-backend/pkg/pagination"
)

const merchantRefMaxLen = 128

type voucherResponse struct {
	ID                uuid.UUID              `json:"id"`
	LedgerTokenID     int64                  `json:"ledger_token_id"`
	MerchantRef       string                 `json:"merchant_ref"`
	OriginalOwnerID   uuid.UUID              `json:"original_owner_id"`
	CurrentOwnerID    uuid.UUID              `json:"current_owner_id"`
	DiscountType      enums.DiscountType     `json:"discount_type"`
	DiscountValue     decimal.Decimal        `json:"discount_value"`
	MinimumPurchase   decimal.Decimal        `json:"minimum_purchase"`
	MaxQuantity       int                    `json:"max_quantity"`
	RemainingQuantity int                    `json:"remaining_quantity"`
	TotalMinted       int                    `json:"total_minted"`
	IsUsed            bool                   `json:"is_used"`
	IsTransferable    bool                   `json:"is_transferable"`
	IsActive          bool                   `json:"is_active"`
	SettlementStatus  enums.SettlementStatus `json:"settlement_status"`
	MetadataURI       string                 `json:"metadata_uri"`
	ExpiresAt         *time.Time             `json:"expires_at,omitempty"`
	UsedAt            *time.Time             `json:"used_at,omitempty"`
	CreatedAt         time.Time              `json:"created_at"`
	UpdatedAt         time.Time              `json:"updated_at"`
}

func toVoucherResponse(v models.Voucher) voucherResponse {
	return voucherResponse{
		ID:                v.ID,
		LedgerTokenID:     v.LedgerTokenID,
		MerchantRef:       v.MerchantRef,
		OriginalOwnerID:   v.OriginalOwnerID,
		CurrentOwnerID:    v.CurrentOwnerID,
		DiscountType:      v.DiscountType,
		DiscountValue:     v.DiscountValue,
		MinimumPurchase:   v.MinimumPurchase,
		MaxQuantity:       v.MaxQuantity,
		RemainingQuantity: v.RemainingQuantity,
		TotalMinted:       v.TotalMinted,
		IsUsed:            v.IsUsed,
		IsTransferable:    v.IsTransferable,
		IsActive:          v.IsActive,
		SettlementStatus:  v.SettlementStatus,
		MetadataURI:       v.MetadataURI,
		ExpiresAt:         v.ExpiresAt,
		UsedAt:            v.UsedAt,
		CreatedAt:         v.CreatedAt,
		UpdatedAt:         v.UpdatedAt,
	}
}

func toVoucherResponses(vouchers []models.Voucher) []voucherResponse {
	out := make([]voucherResponse, 0, len(vouchers))
	for _, v := range vouchers {
		out = append(out, toVoucherResponse(v))
	}
	return out
}

type voucherDetailResponse struct {
	Voucher    voucherResponse            `json:"voucher"`
	AuditTrail []auditTransactionResponse `json:"audit_trail"`
}

type voucherListResponse struct {
	Vouchers   []voucherResponse `json:"vouchers"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

type useResultResponse struct {
	Voucher         voucherResponse `json:"voucher"`
	DiscountApplied decimal.Decimal `json:"discount_applied"`
	FinalAmount     decimal.Decimal `json:"final_amount"`
}

type discountPreviewResponse struct {
	VoucherID      uuid.UUID       `json:"voucher_id"`
	PurchaseAmount decimal.Decimal `json:"purchase_amount"`
	Discount       decimal.Decimal `json:"discount"`
	FinalAmount    decimal.Decimal `json:"final_amount"`
	Usable         bool            `json:"usable"`
	Reason         string          `json:"reason,omitempty"`
}

type voucherMintRequest struct {
	MerchantRef      string          `json:"merchant_ref" validate:"required,max=128"`
	DiscountType     string          `json:"discount_type" validate:"required,oneof=percentage fixed"`
	DiscountValue    decimal.Decimal `json:"discount_value" validate:"required"`
	MinimumPurchase  decimal.Decimal `json:"minimum_purchase"`
	MaxQuantity      int             `json:"max_quantity" validate:"required,min=1"`
	IsTransferable   *bool           `json:"is_transferable,omitempty"`
	ExpiresAt        *time.Time      `json:"expires_at,omitempty"`
	RecipientAddress string          `json:"recipient_address" validate:"required,eth_addr"`
}

func (r voucherMintRequest) toInput(actorID uuid.UUID, role string) voucher.MintInput {
	transferable := true
	if r.IsTransferable != nil {
		transferable = *r.IsTransferable
	}
	return voucher.MintInput{
		ActorID:          actorID,
		ActorRole:        role,
		MerchantRef:      validators.SanitizeString(r.MerchantRef, merchantRefMaxLen),
		DiscountType:     enums.DiscountType(r.DiscountType),
		DiscountValue:    r.DiscountValue,
		MinimumPurchase:  r.MinimumPurchase,
		MaxQuantity:      r.MaxQuantity,
		IsTransferable:   transferable,
		ExpiresAt:        r.ExpiresAt,
		RecipientAddress: r.RecipientAddress,
	}
}

type voucherUseRequest struct {
	PurchaseAmount decimal.Decimal `json:"purchase_amount" validate:"required"`
}

type voucherTransferRequest struct {
	ToUserID    uuid.UUID `json:"to_user_id" validate:"required"`
	FromAddress string    `json:"from_address" validate:"required,eth_addr"`
	ToAddress   string    `json:"to_address" validate:"required,eth_addr"`
}

type voucherRecycleRequest struct {
	Reason string `json:"reason" validate:"required,max=255"`
}

// VoucherMint creates a voucher owned by the caller and submits the mint to
// the ledger. The row comes back settlement-pending.
func VoucherMint(svc voucher.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "voucher service unavailable"))
			return
		}

		actorID, role, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload voucherMintRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		minted, err := svc.Mint(r.Context(), payload.toInput(actorID, role))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, toVoucherResponse(*minted))
	}
}

// VoucherList returns the caller's vouchers, newest first, cursor-paged.
func VoucherList(svc voucher.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "voucher service unavailable"))
			return
		}

		actorID, _, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.List(r.Context(), actorID, pagination.Params{
			Limit:  limit,
			Cursor: r.URL.Query().Get("cursor"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, voucherListResponse{
			Vouchers:   toVoucherResponses(page.Vouchers),
			NextCursor: page.NextCursor,
		})
	}
}

// VoucherDetail returns one voucher with its recent audit trail.
func VoucherDetail(svc voucher.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "voucher service unavailable"))
			return
		}

		id, err := parseRouteUUID(r, "voucherID", "voucher id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		detail, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, voucherDetailResponse{
			Voucher:    toVoucherResponse(*detail.Voucher),
			AuditTrail: toAuditTransactionResponses(detail.AuditTrail),
		})
	}
}

// VoucherDiscountPreview reports what a redemption would grant without
// running one.
func VoucherDiscountPreview(svc voucher.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "voucher service unavailable"))
			return
		}

		id, err := parseRouteUUID(r, "voucherID", "voucher id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		amount, err := validators.RequireQueryDecimal(r, "amount")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !amount.IsPositive() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive"))
			return
		}

		preview, err := svc.PreviewDiscount(r.Context(), id, amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, discountPreviewResponse{
			VoucherID:      preview.VoucherID,
			PurchaseAmount: preview.PurchaseAmount,
			Discount:       preview.Discount,
			FinalAmount:    preview.FinalAmount,
			Usable:         preview.Usable,
			Reason:         preview.Reason,
		})
	}
}

// VoucherUse redeems the voucher against a purchase amount.
func VoucherUse(svc voucher.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "voucher service unavailable"))
			return
		}

		actorID, role, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		id, err := parseRouteUUID(r, "voucherID", "voucher id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload voucherUseRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Use(r.Context(), voucher.UseInput{
			VoucherID:      id,
			ActorID:        actorID,
			ActorRole:      role,
			PurchaseAmount: payload.PurchaseAmount,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, useResultResponse{
			Voucher:         toVoucherResponse(*result.Voucher),
			DiscountApplied: result.DiscountApplied,
			FinalAmount:     result.FinalAmount,
		})
	}
}

// VoucherTransfer moves ownership to another user.
func VoucherTransfer(svc voucher.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "voucher service unavailable"))
			return
		}

		actorID, role, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		id, err := parseRouteUUID(r, "voucherID", "voucher id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload voucherTransferRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		transferred, err := svc.Transfer(r.Context(), voucher.TransferInput{
			VoucherID:   id,
			ActorID:     actorID,
			ActorRole:   role,
			ToUserID:    payload.ToUserID,
			FromAddress: payload.FromAddress,
			ToAddress:   payload.ToAddress,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, toVoucherResponse(*transferred))
	}
}

// VoucherRecycle reclaims a used voucher. The route is operator-guarded.
func VoucherRecycle(svc voucher.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "voucher service unavailable"))
			return
		}

		actorID, role, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		id, err := parseRouteUUID(r, "voucherID", "voucher id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload voucherRecycleRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		recycled, err := svc.Recycle(r.Context(), voucher.RecycleInput{
			VoucherID: id,
			ActorID:   actorID,
			ActorRole: role,
			Reason:    validators.SanitizeString(payload.Reason, 255),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, toVoucherResponse(*recycled))
	}
}
