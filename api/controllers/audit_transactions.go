package controllers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/perkmint/perkmint-backend/api/responses"
	"github.com/perkmint/perkmint-backend/api/validators"
	"github.com/perkmint/perkmint-backend/internal/audit"
	"github.com/perkmint/perkmint-backend/pkg/db/models"
	"github.com/perkmint/perkmint-backend/pkg/enums"
	pkgerrors "github.com/perkmint/perkmint-backend/pkg/errors"
	"github.com/perkmint/perkmint-backend/pkg/logger"
	"github.com/perkmint/perkmint-backend/pkg/pagination"
)

type auditTransactionResponse struct {
	ID           uuid.UUID         `json:"id"`
	ActorID      uuid.UUID         `json:"actor_id"`
	VoucherID    *uuid.UUID        `json:"voucher_id,omitempty"`
	LotteryID    *uuid.UUID        `json:"lottery_id,omitempty"`
	Kind         enums.AuditKind   `json:"kind"`
	ExternalRef  *string           `json:"external_ref,omitempty"`
	CostEstimate *decimal.Decimal  `json:"cost_estimate,omitempty"`
	CostActual   *decimal.Decimal  `json:"cost_actual,omitempty"`
	Status       enums.AuditStatus `json:"status"`
	Metadata     json.RawMessage   `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	ConfirmedAt  *time.Time        `json:"confirmed_at,omitempty"`
}

func toAuditTransactionResponse(t models.AuditTransaction) auditTransactionResponse {
	return auditTransactionResponse{
		ID:           t.ID,
		ActorID:      t.ActorID,
		VoucherID:    t.VoucherID,
		LotteryID:    t.LotteryID,
		Kind:         t.Kind,
		ExternalRef:  t.ExternalRef,
		CostEstimate: t.CostEstimate,
		CostActual:   t.CostActual,
		Status:       t.Status,
		Metadata:     t.Metadata,
		CreatedAt:    t.CreatedAt,
		ConfirmedAt:  t.ConfirmedAt,
	}
}

func toAuditTransactionResponses(transactions []models.AuditTransaction) []auditTransactionResponse {
	out := make([]auditTransactionResponse, 0, len(transactions))
	for _, t := range transactions {
		out = append(out, toAuditTransactionResponse(t))
	}
	return out
}

type auditTransactionListResponse struct {
	Transactions []auditTransactionResponse `json:"transactions"`
}

// AuditTransactionList queries the audit trail by exactly one filter:
// voucher_id, lottery_id or reference.
func AuditTransactionList(svc audit.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "audit service unavailable"))
			return
		}

		voucherID, err := validators.ParseQueryUUID(r, "voucher_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		lotteryID, err := validators.ParseQueryUUID(r, "lottery_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		reference := strings.TrimSpace(r.URL.Query().Get("reference"))

		filters := 0
		if voucherID != nil {
			filters++
		}
		if lotteryID != nil {
			filters++
		}
		if reference != "" {
			filters++
		}
		if filters != 1 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "exactly one of voucher_id, lottery_id or reference is required"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var transactions []models.AuditTransaction
		switch {
		case voucherID != nil:
			transactions, err = svc.ListByVoucher(r.Context(), *voucherID, limit)
		case lotteryID != nil:
			transactions, err = svc.ListByLottery(r.Context(), *lotteryID, limit)
		default:
			var single *models.AuditTransaction
			single, err = svc.FindByExternalRef(r.Context(), reference)
			if err == nil && single != nil {
				transactions = []models.AuditTransaction{*single}
			}
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, auditTransactionListResponse{
			Transactions: toAuditTransactionResponses(transactions),
		})
	}
}
