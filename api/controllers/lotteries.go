package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/perkmint/perkmint-backend/api/responses"
	"github.com/perkmint/perkmint-backend/api/validators"
	"github.com/perkmint/perkmint-backend/internal/lottery"
	"github.com/perkmint/perkmint-backend/pkg/db/models"
	"github.com/perkmint/perkmint-backend/pkg/enums"
	pkgerrors "github.com/perkmint/perkmint-backend/pkg/errors"
	"github.com/perkmint/perkmint-backend/pkg/logger"
	"github.com/perkmint/perkmint-backend/pkg/pagination"
	"github.com/perkmint/perkmint-backend/pkg/types"
)

type lotteryResponse struct {
	ID                  uuid.UUID          `json:"id"`
	Title               string             `json:"title"`
	Description         string             `json:"description,omitempty"`
	StartsAt            time.Time          `json:"starts_at"`
	EndsAt              time.Time          `json:"ends_at"`
	DrawTime            *time.Time         `json:"draw_time,omitempty"`
	MaxParticipants     *int               `json:"max_participants,omitempty"`
	CurrentParticipants int                `json:"current_participants"`
	PrizePool           types.PrizePool    `json:"prize_pool"`
	TotalPrizes         int                `json:"total_prizes"`
	RemainingPrizes     int                `json:"remaining_prizes"`
	IsActive            bool               `json:"is_active"`
	IsCompleted         bool               `json:"is_completed"`
	Phase               enums.LotteryPhase `json:"phase"`
	SeedCommitment      *string            `json:"seed_commitment,omitempty"`
	RandomSeed          *string            `json:"random_seed,omitempty"`
	CreatedAt           time.Time          `json:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at"`
}

func toLotteryResponse(l models.Lottery) lotteryResponse {
	return lotteryResponse{
		ID:                  l.ID,
		Title:               l.Title,
		Description:         l.Description,
		StartsAt:            l.StartsAt,
		EndsAt:              l.EndsAt,
		DrawTime:            l.DrawTime,
		MaxParticipants:     l.MaxParticipants,
		CurrentParticipants: l.CurrentParticipants,
		PrizePool:           l.PrizePool,
		TotalPrizes:         l.TotalPrizes,
		RemainingPrizes:     l.RemainingPrizes,
		IsActive:            l.IsActive,
		IsCompleted:         l.IsCompleted,
		Phase:               l.Phase(time.Now().UTC()),
		SeedCommitment:      l.SeedCommitment,
		RandomSeed:          l.RandomSeed,
		CreatedAt:           l.CreatedAt,
		UpdatedAt:           l.UpdatedAt,
	}
}

func toLotteryResponses(lotteries []models.Lottery) []lotteryResponse {
	out := make([]lotteryResponse, 0, len(lotteries))
	for _, l := range lotteries {
		out = append(out, toLotteryResponse(l))
	}
	return out
}

type participantResponse struct {
	ID          uuid.UUID          `json:"id"`
	LotteryID   uuid.UUID          `json:"lottery_id"`
	UserID      uuid.UUID          `json:"user_id"`
	EntryCount  int                `json:"entry_count"`
	IsWinner    bool               `json:"is_winner"`
	PrizeIndex  *int               `json:"prize_index,omitempty"`
	PrizeType   *enums.PrizeType   `json:"prize_type,omitempty"`
	PrizeValue  *decimal.Decimal   `json:"prize_value,omitempty"`
	PrizeRarity *enums.PrizeRarity `json:"prize_rarity,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
}

func toParticipantResponse(p models.LotteryParticipant) participantResponse {
	return participantResponse{
		ID:          p.ID,
		LotteryID:   p.LotteryID,
		UserID:      p.UserID,
		EntryCount:  p.EntryCount,
		IsWinner:    p.IsWinner,
		PrizeIndex:  p.PrizeIndex,
		PrizeType:   p.PrizeType,
		PrizeValue:  p.PrizeValue,
		PrizeRarity: p.PrizeRarity,
		CreatedAt:   p.CreatedAt,
	}
}

func toParticipantResponses(participants []models.LotteryParticipant) []participantResponse {
	out := make([]participantResponse, 0, len(participants))
	for _, p := range participants {
		out = append(out, toParticipantResponse(p))
	}
	return out
}

type lotteryListResponse struct {
	Lotteries  []lotteryResponse `json:"lotteries"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

type drawResultResponse struct {
	Lottery      lotteryResponse       `json:"lottery"`
	Seed         string                `json:"seed"`
	Participants int                   `json:"participants"`
	Winners      []participantResponse `json:"winners"`
}

type prizeDistributionResponse struct {
	LotteryID       uuid.UUID                 `json:"lottery_id"`
	TotalPrizes     int                       `json:"total_prizes"`
	RemainingPrizes int                       `json:"remaining_prizes"`
	ByRarity        map[enums.PrizeRarity]int `json:"by_rarity"`
}

type lotteryCreateRequest struct {
	Title           string          `json:"title" validate:"required,min=3,max=150"`
	Description     string          `json:"description" validate:"omitempty,max=2000"`
	StartsAt        time.Time       `json:"starts_at" validate:"required"`
	EndsAt          time.Time       `json:"ends_at" validate:"required"`
	MaxParticipants *int            `json:"max_participants,omitempty" validate:"omitempty,min=2"`
	PrizePool       types.PrizePool `json:"prize_pool" validate:"required,min=1"`
	TotalPrizes     int             `json:"total_prizes" validate:"required,min=1"`
	SeedCommitment  string          `json:"seed_commitment" validate:"required,len=64,hexadecimal"`
}

func (r lotteryCreateRequest) toInput(actorID uuid.UUID, role string) lottery.CreateInput {
	return lottery.CreateInput{
		ActorID:         actorID,
		ActorRole:       role,
		Title:           validators.SanitizeString(r.Title, 150),
		Description:     validators.SanitizeString(r.Description, 2000),
		StartsAt:        r.StartsAt,
		EndsAt:          r.EndsAt,
		MaxParticipants: r.MaxParticipants,
		PrizePool:       r.PrizePool,
		TotalPrizes:     r.TotalPrizes,
		SeedCommitment:  r.SeedCommitment,
	}
}

type lotteryDrawRequest struct {
	Seed string `json:"seed" validate:"required,len=64,hexadecimal"`
}

// LotteryCreate opens a new lottery. Operator-guarded; the seed commitment
// is published now, the seed itself only at draw time.
func LotteryCreate(svc lottery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "lottery service unavailable"))
			return
		}

		actorID, role, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload lotteryCreateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		created, err := svc.Create(r.Context(), payload.toInput(actorID, role))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, toLotteryResponse(*created))
	}
}

// LotteryList returns lotteries newest first, cursor-paged.
func LotteryList(svc lottery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "lottery service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.List(r.Context(), pagination.Params{
			Limit:  limit,
			Cursor: r.URL.Query().Get("cursor"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, lotteryListResponse{
			Lotteries:  toLotteryResponses(page.Lotteries),
			NextCursor: page.NextCursor,
		})
	}
}

// LotteryDetail returns one lottery with its computed phase.
func LotteryDetail(svc lottery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "lottery service unavailable"))
			return
		}

		id, err := parseRouteUUID(r, "lotteryID", "lottery id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		found, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, toLotteryResponse(*found))
	}
}

// LotteryParticipants lists everyone entered in the lottery.
func LotteryParticipants(svc lottery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "lottery service unavailable"))
			return
		}

		id, err := parseRouteUUID(r, "lotteryID", "lottery id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		participants, err := svc.Participants(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, toParticipantResponses(participants))
	}
}

// LotteryPrizes reports the prize distribution grouped by rarity.
func LotteryPrizes(svc lottery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "lottery service unavailable"))
			return
		}

		id, err := parseRouteUUID(r, "lotteryID", "lottery id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		distribution, err := svc.PrizeDistribution(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, prizeDistributionResponse{
			LotteryID:       distribution.LotteryID,
			TotalPrizes:     distribution.TotalPrizes,
			RemainingPrizes: distribution.RemainingPrizes,
			ByRarity:        distribution.ByRarity,
		})
	}
}

type seedVerificationResponse struct {
	Seed   string `json:"seed"`
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// LotterySeedVerify checks a draw seed's format without touching any state,
// so auditors can validate a revealed seed against the published commitment
// themselves.
func LotterySeedVerify(svc lottery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "lottery service unavailable"))
			return
		}

		seed := strings.TrimSpace(r.URL.Query().Get("seed"))
		if seed == "" {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeValidation, "query parameter required").WithDetails(map[string]any{"field": "seed"}))
			return
		}

		out := seedVerificationResponse{Seed: seed, Valid: true}
		if err := svc.VerifyRandomness(seed); err != nil {
			out.Valid = false
			if typed := pkgerrors.As(err); typed != nil {
				out.Reason = typed.Message()
			} else {
				out.Reason = err.Error()
			}
		}
		responses.WriteSuccess(w, out)
	}
}

// LotteryParticipate enters the caller into the lottery. One entry per user.
func LotteryParticipate(svc lottery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "lottery service unavailable"))
			return
		}

		actorID, role, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		id, err := parseRouteUUID(r, "lotteryID", "lottery id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		participant, err := svc.Participate(r.Context(), lottery.ParticipateInput{
			LotteryID: id,
			UserID:    actorID,
			ActorRole: role,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, toParticipantResponse(*participant))
	}
}

// LotteryDraw runs the seeded draw. Operator-guarded; the seed must hash to
// the published commitment.
func LotteryDraw(svc lottery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "lottery service unavailable"))
			return
		}

		actorID, role, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		id, err := parseRouteUUID(r, "lotteryID", "lottery id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload lotteryDrawRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Draw(r.Context(), lottery.DrawInput{
			LotteryID: id,
			ActorID:   actorID,
			ActorRole: role,
			Seed:      payload.Seed,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, drawResultResponse{
			Lottery:      toLotteryResponse(*result.Lottery),
			Seed:         result.Seed,
			Participants: result.Participants,
			Winners:      toParticipantResponses(result.Winners),
		})
	}
}
