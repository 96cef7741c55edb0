package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/perkmint/perkmint-backend/internal/lottery"
	"github.com/perkmint/perkmint-backend/pkg/db/models"
	"github.com/perkmint/perkmint-backend/pkg/enums"
	pkgerrors "github.com/perkmint/perkmint-backend/pkg/errors"
	"github.com/perkmint/perkmint-backend/pkg/pagination"
	"github.com/perkmint/perkmint-backend/pkg/types"
)

type stubLotterySvc struct {
	create       func(ctx context.Context, input lottery.CreateInput) (*models.Lottery, error)
	participate  func(ctx context.Context, input lottery.ParticipateInput) (*models.LotteryParticipant, error)
	draw         func(ctx context.Context, input lottery.DrawInput) (*lottery.DrawResult, error)
	get          func(ctx context.Context, id uuid.UUID) (*models.Lottery, error)
	list         func(ctx context.Context, params pagination.Params) (*lottery.List, error)
	participants func(ctx context.Context, lotteryID uuid.UUID) ([]models.LotteryParticipant, error)
	prizes       func(ctx context.Context, lotteryID uuid.UUID) (*lottery.PrizeDistribution, error)
	verify       func(seed string) error
}

func (s *stubLotterySvc) Create(ctx context.Context, input lottery.CreateInput) (*models.Lottery, error) {
	if s.create == nil {
		panic("unexpected Create call")
	}
	return s.create(ctx, input)
}

func (s *stubLotterySvc) Participate(ctx context.Context, input lottery.ParticipateInput) (*models.LotteryParticipant, error) {
	if s.participate == nil {
		panic("unexpected Participate call")
	}
	return s.participate(ctx, input)
}

func (s *stubLotterySvc) Draw(ctx context.Context, input lottery.DrawInput) (*lottery.DrawResult, error) {
	if s.draw == nil {
		panic("unexpected Draw call")
	}
	return s.draw(ctx, input)
}

func (s *stubLotterySvc) VerifyRandomness(seed string) error {
	if s.verify == nil {
		return nil
	}
	return s.verify(seed)
}

func (s *stubLotterySvc) Get(ctx context.Context, id uuid.UUID) (*models.Lottery, error) {
	if s.get == nil {
		panic("unexpected Get call")
	}
	return s.get(ctx, id)
}

func (s *stubLotterySvc) List(ctx context.Context, params pagination.Params) (*lottery.List, error) {
	if s.list == nil {
		panic("unexpected List call")
	}
	return s.list(ctx, params)
}

func (s *stubLotterySvc) Participants(ctx context.Context, lotteryID uuid.UUID) ([]models.LotteryParticipant, error) {
	if s.participants == nil {
		panic("unexpected Participants call")
	}
	return s.participants(ctx, lotteryID)
}

func (s *stubLotterySvc) PrizeDistribution(ctx context.Context, lotteryID uuid.UUID) (*lottery.PrizeDistribution, error) {
	if s.prizes == nil {
		panic("unexpected PrizeDistribution call")
	}
	return s.prizes(ctx, lotteryID)
}

func sampleLottery() *models.Lottery {
	now := time.Now().UTC()
	commitment := strings.Repeat("ab", 32)
	return &models.Lottery{
		ID:                  uuid.New(),
		Title:               "Summer Giveaway",
		StartsAt:            now.Add(-time.Hour),
		EndsAt:              now.Add(time.Hour),
		CurrentParticipants: 3,
		PrizePool: types.PrizePool{
			{Type: enums.PrizeTypeVoucher, Value: decimal.NewFromInt(25), Quantity: 2, Rarity: enums.PrizeRarityRare},
			{Type: enums.PrizeTypeToken, Value: decimal.NewFromInt(5), Quantity: 8, Rarity: enums.PrizeRarityCommon},
		},
		TotalPrizes:     10,
		RemainingPrizes: 10,
		IsActive:        true,
		SeedCommitment:  &commitment,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func TestLotteryCreatePassesInput(t *testing.T) {
	operator := uuid.New()
	var captured lottery.CreateInput
	svc := &stubLotterySvc{create: func(_ context.Context, input lottery.CreateInput) (*models.Lottery, error) {
		captured = input
		return sampleLottery(), nil
	}}

	commitment := strings.Repeat("cd", 32)
	body := `{
		"title": "Summer Giveaway",
		"starts_at": "2026-09-01T00:00:00Z",
		"ends_at": "2026-09-08T00:00:00Z",
		"prize_pool": [{"type":"voucher","value":25,"quantity":2,"rarity":"rare"}],
		"total_prizes": 2,
		"seed_commitment": "` + commitment + `"
	}`
	req := authedRequest(http.MethodPost, "/api/lotteries", strings.NewReader(body), operator, enums.ActorRoleOperator)
	resp := httptest.NewRecorder()
	LotteryCreate(svc, nil)(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if captured.ActorID != operator {
		t.Fatalf("expected actor %s got %s", operator, captured.ActorID)
	}
	if captured.SeedCommitment != commitment {
		t.Fatalf("unexpected commitment %q", captured.SeedCommitment)
	}
	if len(captured.PrizePool) != 1 || captured.PrizePool[0].Quantity != 2 {
		t.Fatalf("unexpected prize pool %+v", captured.PrizePool)
	}

	var envelope struct {
		Data lotteryResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope.Data.Phase != enums.LotteryPhaseActive {
		t.Fatalf("expected active phase got %s", envelope.Data.Phase)
	}
}

func TestLotteryCreateRejectsShortCommitment(t *testing.T) {
	svc := &stubLotterySvc{}
	body := `{
		"title": "Summer Giveaway",
		"starts_at": "2026-09-01T00:00:00Z",
		"ends_at": "2026-09-08T00:00:00Z",
		"prize_pool": [{"type":"voucher","value":25,"quantity":2,"rarity":"rare"}],
		"total_prizes": 2,
		"seed_commitment": "abcd"
	}`
	req := authedRequest(http.MethodPost, "/api/lotteries", strings.NewReader(body), uuid.New(), enums.ActorRoleOperator)
	resp := httptest.NewRecorder()
	LotteryCreate(svc, nil)(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestLotteryListReturnsPage(t *testing.T) {
	svc := &stubLotterySvc{list: func(_ context.Context, params pagination.Params) (*lottery.List, error) {
		if params.Limit != 5 {
			t.Fatalf("expected limit 5 got %d", params.Limit)
		}
		return &lottery.List{Lotteries: []models.Lottery{*sampleLottery()}, NextCursor: "tok"}, nil
	}}

	req := authedRequest(http.MethodGet, "/api/lotteries?limit=5", nil, uuid.New(), enums.ActorRoleUser)
	resp := httptest.NewRecorder()
	LotteryList(svc, nil)(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var envelope struct {
		Data lotteryListResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if len(envelope.Data.Lotteries) != 1 || envelope.Data.NextCursor != "tok" {
		t.Fatalf("unexpected page %+v", envelope.Data)
	}
}

func TestLotteryDetailComputesPhase(t *testing.T) {
	l := sampleLottery()
	l.StartsAt = time.Now().UTC().Add(time.Hour)
	l.EndsAt = time.Now().UTC().Add(2 * time.Hour)
	svc := &stubLotterySvc{get: func(_ context.Context, id uuid.UUID) (*models.Lottery, error) {
		return l, nil
	}}

	req := httptest.NewRequest(http.MethodGet, "/api/lotteries/"+l.ID.String(), nil)
	req = withRouteParam(req, "lotteryID", l.ID.String())
	resp := httptest.NewRecorder()
	LotteryDetail(svc, nil)(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var envelope struct {
		Data lotteryResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope.Data.Phase != enums.LotteryPhaseNotStarted {
		t.Fatalf("expected not_started got %s", envelope.Data.Phase)
	}
	if envelope.Data.SeedCommitment == nil {
		t.Fatal("expected seed commitment to be exposed")
	}
	if envelope.Data.RandomSeed != nil {
		t.Fatal("seed must stay hidden before the draw")
	}
}

func TestLotteryDetailRejectsMalformedID(t *testing.T) {
	svc := &stubLotterySvc{}
	req := httptest.NewRequest(http.MethodGet, "/api/lotteries/nope", nil)
	req = withRouteParam(req, "lotteryID", "nope")
	resp := httptest.NewRecorder()
	LotteryDetail(svc, nil)(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestLotteryParticipateUsesCaller(t *testing.T) {
	user := uuid.New()
	lotteryID := uuid.New()
	var captured lottery.ParticipateInput
	svc := &stubLotterySvc{participate: func(_ context.Context, input lottery.ParticipateInput) (*models.LotteryParticipant, error) {
		captured = input
		return &models.LotteryParticipant{ID: uuid.New(), LotteryID: input.LotteryID, UserID: input.UserID, EntryCount: 1}, nil
	}}

	req := authedRequest(http.MethodPost, "/api/lotteries/"+lotteryID.String()+"/participants", nil, user, enums.ActorRoleUser)
	req = withRouteParam(req, "lotteryID", lotteryID.String())
	resp := httptest.NewRecorder()
	LotteryParticipate(svc, nil)(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if captured.LotteryID != lotteryID || captured.UserID != user {
		t.Fatalf("unexpected input %+v", captured)
	}

	var envelope struct {
		Data participantResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope.Data.UserID != user {
		t.Fatalf("unexpected participant user %s", envelope.Data.UserID)
	}
}

func TestLotteryParticipantsList(t *testing.T) {
	lotteryID := uuid.New()
	rarity := enums.PrizeRarityRare
	svc := &stubLotterySvc{participants: func(_ context.Context, id uuid.UUID) ([]models.LotteryParticipant, error) {
		return []models.LotteryParticipant{
			{ID: uuid.New(), LotteryID: id, UserID: uuid.New(), EntryCount: 1, IsWinner: true, PrizeRarity: &rarity},
			{ID: uuid.New(), LotteryID: id, UserID: uuid.New(), EntryCount: 1},
		}, nil
	}}

	req := httptest.NewRequest(http.MethodGet, "/api/lotteries/"+lotteryID.String()+"/participants", nil)
	req = withRouteParam(req, "lotteryID", lotteryID.String())
	resp := httptest.NewRecorder()
	LotteryParticipants(svc, nil)(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var envelope struct {
		Data []participantResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if len(envelope.Data) != 2 {
		t.Fatalf("expected two participants got %d", len(envelope.Data))
	}
	if !envelope.Data[0].IsWinner || envelope.Data[0].PrizeRarity == nil {
		t.Fatalf("expected winner row first, got %+v", envelope.Data[0])
	}
}

func TestLotteryPrizesDistribution(t *testing.T) {
	lotteryID := uuid.New()
	svc := &stubLotterySvc{prizes: func(_ context.Context, id uuid.UUID) (*lottery.PrizeDistribution, error) {
		return &lottery.PrizeDistribution{
			LotteryID:       id,
			TotalPrizes:     10,
			RemainingPrizes: 4,
			ByRarity: map[enums.PrizeRarity]int{
				enums.PrizeRarityRare:   2,
				enums.PrizeRarityCommon: 8,
			},
		}, nil
	}}

	req := httptest.NewRequest(http.MethodGet, "/api/lotteries/"+lotteryID.String()+"/prizes", nil)
	req = withRouteParam(req, "lotteryID", lotteryID.String())
	resp := httptest.NewRecorder()
	LotteryPrizes(svc, nil)(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var envelope struct {
		Data prizeDistributionResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope.Data.RemainingPrizes != 4 {
		t.Fatalf("expected 4 remaining got %d", envelope.Data.RemainingPrizes)
	}
	if envelope.Data.ByRarity[enums.PrizeRarityCommon] != 8 {
		t.Fatalf("unexpected rarity distribution %+v", envelope.Data.ByRarity)
	}
}

func TestLotteryDrawReturnsWinners(t *testing.T) {
	operator := uuid.New()
	l := sampleLottery()
	seed := strings.Repeat("ef", 32)
	var captured lottery.DrawInput
	svc := &stubLotterySvc{draw: func(_ context.Context, input lottery.DrawInput) (*lottery.DrawResult, error) {
		captured = input
		winner := models.LotteryParticipant{ID: uuid.New(), LotteryID: l.ID, UserID: uuid.New(), IsWinner: true}
		return &lottery.DrawResult{Lottery: l, Seed: input.Seed, Participants: 3, Winners: []models.LotteryParticipant{winner}}, nil
	}}

	req := authedRequest(http.MethodPost, "/api/lotteries/"+l.ID.String()+"/draw", strings.NewReader(`{"seed":"`+seed+`"}`), operator, enums.ActorRoleOperator)
	req = withRouteParam(req, "lotteryID", l.ID.String())
	resp := httptest.NewRecorder()
	LotteryDraw(svc, nil)(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if captured.Seed != seed || captured.ActorID != operator {
		t.Fatalf("unexpected input %+v", captured)
	}

	var envelope struct {
		Data drawResultResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope.Data.Participants != 3 || len(envelope.Data.Winners) != 1 {
		t.Fatalf("unexpected draw result %+v", envelope.Data)
	}
}

func TestLotterySeedVerifyReportsValidity(t *testing.T) {
	svc := &stubLotterySvc{verify: func(seed string) error {
		if len(seed) != 64 {
			return pkgerrors.New(pkgerrors.CodeValidation, "invalid seed")
		}
		return nil
	}}

	req := httptest.NewRequest(http.MethodGet, "/api/lotteries/verify-seed?seed="+strings.Repeat("ab", 32), nil)
	resp := httptest.NewRecorder()
	LotterySeedVerify(svc, nil)(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var envelope struct {
		Data seedVerificationResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if !envelope.Data.Valid {
		t.Fatalf("expected valid seed, got %+v", envelope.Data)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/lotteries/verify-seed?seed=zz", nil)
	resp = httptest.NewRecorder()
	LotterySeedVerify(svc, nil)(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	envelope.Data = seedVerificationResponse{}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope.Data.Valid || envelope.Data.Reason == "" {
		t.Fatalf("expected invalid seed with reason, got %+v", envelope.Data)
	}
}

func TestLotterySeedVerifyRequiresSeed(t *testing.T) {
	svc := &stubLotterySvc{}
	req := httptest.NewRequest(http.MethodGet, "/api/lotteries/verify-seed", nil)
	resp := httptest.NewRecorder()
	LotterySeedVerify(svc, nil)(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestLotteryDrawRejectsNonHexSeed(t *testing.T) {
	svc := &stubLotterySvc{}
	id := uuid.New()
	req := authedRequest(http.MethodPost, "/api/lotteries/"+id.String()+"/draw", strings.NewReader(`{"seed":"zz"}`), uuid.New(), enums.ActorRoleOperator)
	req = withRouteParam(req, "lotteryID", id.String())
	resp := httptest.NewRecorder()
	LotteryDraw(svc, nil)(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}
