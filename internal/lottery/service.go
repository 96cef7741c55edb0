package lottery

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/perkmint/perkmint-backend/internal/audit"
	dbpkg "github.com/perkmint/perkmint-backend/pkg/db"
	"github.com/perkmint/perkmint-backend/pkg/db/models"
	"github.com/perkmint/perkmint-backend/pkg/enums"
	pkgerrors "github.com/perkmint/perkmint-backend/pkg/errors"
	"github.com/perkmint/perkmint-backend/pkg/logger"
	"github.com/perkmint/perkmint-backend/pkg/outbox"
	"github.com/perkmint/perkmint-backend/pkg/outbox/payloads"
	"github.com/perkmint/perkmint-backend/pkg/pagination"
	"github.com/perkmint/perkmint-backend/pkg/security"
	"github.com/perkmint/perkmint-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type auditRecorder interface {
	Record(ctx context.Context, tx *gorm.DB, input audit.RecordInput) (*models.AuditTransaction, error)
}

// Service runs the lottery lifecycle: creation, participation, and the
// reproducible seeded draw.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Lottery, error)
	Participate(ctx context.Context, input ParticipateInput) (*models.LotteryParticipant, error)
	Draw(ctx context.Context, input DrawInput) (*DrawResult, error)
	VerifyRandomness(seed string) error
	Get(ctx context.Context, id uuid.UUID) (*models.Lottery, error)
	List(ctx context.Context, params pagination.Params) (*List, error)
	Participants(ctx context.Context, lotteryID uuid.UUID) ([]models.LotteryParticipant, error)
	PrizeDistribution(ctx context.Context, lotteryID uuid.UUID) (*PrizeDistribution, error)
}

type service struct {
	repo     Repository
	auditSvc auditRecorder
	tx       txRunner
	outbox   outboxPublisher
	logg     *logger.Logger
}

// CreateInput carries the typed parameters for a new lottery. Operator-only
// at the API boundary.
type CreateInput struct {
	ActorID         uuid.UUID
	ActorRole       string
	Title           string
	Description     string
	StartsAt        time.Time
	EndsAt          time.Time
	MaxParticipants *int
	PrizePool       types.PrizePool
	TotalPrizes     int
	SeedCommitment  string
}

// ParticipateInput joins a user to a lottery.
type ParticipateInput struct {
	LotteryID uuid.UUID
	UserID    uuid.UUID
	ActorRole string
}

// DrawInput runs winner selection. Seed is optional unless the lottery
// carries a commitment, in which case the committed seed must be supplied.
type DrawInput struct {
	LotteryID uuid.UUID
	ActorID   uuid.UUID
	ActorRole string
	Seed      string
}

// DrawResult reports the completed draw.
type DrawResult struct {
	Lottery      *models.Lottery
	Seed         string
	Participants int
	Winners      []models.LotteryParticipant
}

// List is one cursor page of lotteries.
type List struct {
	Lotteries  []models.Lottery
	NextCursor string
}

// PrizeDistribution reports prize quantities by rarity tier.
type PrizeDistribution struct {
	LotteryID       uuid.UUID
	TotalPrizes     int
	RemainingPrizes int
	ByRarity        map[enums.PrizeRarity]int
}

// NewService builds a lottery service with the required dependencies.
func NewService(repo Repository, auditSvc auditRecorder, tx txRunner, ob outboxPublisher, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("lottery repository required")
	}
	if auditSvc == nil {
		return nil, fmt.Errorf("audit recorder required")
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
	return &service{repo: repo, auditSvc: auditSvc, tx: tx, outbox: ob, logg: logg}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Lottery, error) {
	if err := validateCreateInput(input); err != nil {
		return nil, err
	}

	lottery := &models.Lottery{
		ID:              uuid.New(),
		Title:           strings.TrimSpace(input.Title),
		Description:     input.Description,
		StartsAt:        input.StartsAt.UTC(),
		EndsAt:          input.EndsAt.UTC(),
		MaxParticipants: input.MaxParticipants,
		PrizePool:       input.PrizePool,
		TotalPrizes:     input.TotalPrizes,
		RemainingPrizes: input.TotalPrizes,
		IsActive:        true,
	}
	if input.SeedCommitment != "" {
		commitment := strings.ToLower(input.SeedCommitment)
		lottery.SeedCommitment = &commitment
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, lottery); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "create lottery")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventLotteryCreated,
			AggregateType: enums.AggregateLottery,
			AggregateID:   lottery.ID,
			Version:       1,
			Actor:         actorRef(input.ActorID, input.ActorRole),
			Data: payloads.LotteryCreatedEvent{
				LotteryID:      lottery.ID,
				Title:          lottery.Title,
				StartsAt:       lottery.StartsAt,
				EndsAt:         lottery.EndsAt,
				TotalPrizes:    lottery.TotalPrizes,
				SeedCommitment: lottery.SeedCommitment,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithLotteryID(ctx, lottery.ID.String()), "lottery created")
	return lottery, nil
}

func (s *service) Participate(ctx context.Context, input ParticipateInput) (*models.LotteryParticipant, error) {
	if input.LotteryID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "lottery id required")
	}
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	now := time.Now().UTC()

	var participant *models.LotteryParticipant
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		lottery, err := repo.FindForUpdate(ctx, input.LotteryID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "lottery not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load lottery")
		}
		if ok, reason := lottery.CanAcceptParticipants(now); !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, reason)
		}

		participant = &models.LotteryParticipant{
			ID:         uuid.New(),
			LotteryID:  input.LotteryID,
			UserID:     input.UserID,
			EntryCount: 1,
		}
		if err := repo.CreateParticipant(ctx, participant); err != nil {
			if dbpkg.IsUniqueViolation(err, "") || errors.Is(err, gorm.ErrDuplicatedKey) {
				return pkgerrors.New(pkgerrors.CodeConflict, "user already entered this lottery")
			}
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "create participant")
		}

		// Insert and counter increment are one atomic unit under the row
		// lock; both land or both roll back, so the count cannot drift.
		won, err := repo.IncrementParticipants(ctx, input.LotteryID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "increment participants")
		}
		if !won {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "lottery is at capacity")
		}

		if _, err := s.auditSvc.Record(ctx, tx, audit.RecordInput{
			ActorID:   input.UserID,
			LotteryID: &input.LotteryID,
			Kind:      enums.AuditKindLotteryEntry,
		}); err != nil {
			return err
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventLotteryEntered,
			AggregateType: enums.AggregateLottery,
			AggregateID:   input.LotteryID,
			Version:       1,
			Actor:         actorRef(input.UserID, input.ActorRole),
			Data: payloads.LotteryEnteredEvent{
				LotteryID:   input.LotteryID,
				UserID:      input.UserID,
				EntryNumber: lottery.CurrentParticipants + 1,
				EnteredAt:   now,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return participant, nil
}

func (s *service) Draw(ctx context.Context, input DrawInput) (*DrawResult, error) {
	if input.LotteryID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "lottery id required")
	}
	now := time.Now().UTC()

	var result *DrawResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		lottery, err := repo.FindForUpdate(ctx, input.LotteryID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "lottery not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load lottery")
		}
		if ok, reason := lottery.ReadyForDraw(now); !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, reason)
		}

		seed, err := resolveSeed(input.Seed, lottery.SeedCommitment)
		if err != nil {
			return err
		}

		participants, err := repo.ListParticipants(ctx, input.LotteryID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list participants")
		}
		if len(participants) == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "lottery has no participants")
		}

		order, err := shuffledOrder(len(participants), seed)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "derive draw ordering")
		}

		winners := assignPrizes(participants, order, lottery.PrizePool)
		for i := range winners {
			w := &winners[i]
			if err := repo.MarkWinner(ctx, w.ID, *w.PrizeIndex, lottery.PrizePool[*w.PrizeIndex]); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "mark winner")
			}
			if _, err := s.auditSvc.Record(ctx, tx, audit.RecordInput{
				ActorID:   w.UserID,
				LotteryID: &input.LotteryID,
				Kind:      enums.AuditKindLotteryWin,
				Metadata:  mustWinMetadata(*w.PrizeIndex),
			}); err != nil {
				return err
			}
		}

		completed, err := repo.CompleteDraw(ctx, input.LotteryID, seed, len(winners), now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "complete draw")
		}
		if !completed {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "lottery already completed")
		}

		lottery.IsCompleted = true
		lottery.DrawTime = &now
		lottery.RandomSeed = &seed
		lottery.RemainingPrizes -= len(winners)

		eventWinners := make([]payloads.LotteryWinner, 0, len(winners))
		for _, w := range winners {
			eventWinners = append(eventWinners, payloads.LotteryWinner{
				UserID:      w.UserID,
				PrizeIndex:  *w.PrizeIndex,
				PrizeType:   *w.PrizeType,
				PrizeValue:  *w.PrizeValue,
				PrizeRarity: *w.PrizeRarity,
			})
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventLotteryDrawn,
			AggregateType: enums.AggregateLottery,
			AggregateID:   input.LotteryID,
			Version:       1,
			Actor:         actorRef(input.ActorID, input.ActorRole),
			Data: payloads.LotteryDrawnEvent{
				LotteryID:    input.LotteryID,
				Seed:         seed,
				Participants: len(participants),
				Winners:      eventWinners,
				DrawnAt:      now,
			},
		}); err != nil {
			return err
		}

		result = &DrawResult{
			Lottery:      lottery,
			Seed:         seed,
			Participants: len(participants),
			Winners:      winners,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	winnerIDs := make([]string, 0, len(result.Winners))
	for _, w := range result.Winners {
		winnerIDs = append(winnerIDs, w.UserID.String())
	}
	s.logg.Info(s.logg.WithFields(s.logg.WithLotteryID(ctx, input.LotteryID.String()), map[string]any{
		"seed":         result.Seed,
		"participants": result.Participants,
		"winners":      winnerIDs,
	}), "lottery drawn")
	return result, nil
}

// VerifyRandomness checks the seed format without touching any state.
func (s *service) VerifyRandomness(seed string) error {
	if err := security.ValidateSeed(seed); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid seed")
	}
	return nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Lottery, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "lottery id required")
	}
	lottery, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "lottery not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load lottery")
	}
	return lottery, nil
}

func (s *service) List(ctx context.Context, params pagination.Params) (*List, error) {
	lotteries, next, err := s.repo.List(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list lotteries")
	}
	list := &List{Lotteries: lotteries}
	if next != nil {
		list.NextCursor = pagination.EncodeCursor(*next)
	}
	return list, nil
}

func (s *service) Participants(ctx context.Context, lotteryID uuid.UUID) ([]models.LotteryParticipant, error) {
	if _, err := s.Get(ctx, lotteryID); err != nil {
		return nil, err
	}
	participants, err := s.repo.ListParticipants(ctx, lotteryID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list participants")
	}
	return participants, nil
}

func (s *service) PrizeDistribution(ctx context.Context, lotteryID uuid.UUID) (*PrizeDistribution, error) {
	lottery, err := s.Get(ctx, lotteryID)
	if err != nil {
		return nil, err
	}
	return &PrizeDistribution{
		LotteryID:       lottery.ID,
		TotalPrizes:     lottery.TotalPrizes,
		RemainingPrizes: lottery.RemainingPrizes,
		ByRarity:        lottery.PrizeDistribution(),
	}, nil
}

// resolveSeed picks the draw seed. A commitment recorded at creation pins
// the seed: the draw must supply the exact preimage.
func resolveSeed(supplied string, commitment *string) (string, error) {
	if supplied != "" {
		seed := strings.ToLower(supplied)
		if err := security.ValidateSeed(seed); err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid seed")
		}
		if commitment != nil {
			digest, err := security.CommitSeed(seed)
			if err != nil {
				return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid seed")
			}
			if digest != *commitment {
				return "", pkgerrors.New(pkgerrors.CodeValidation, "seed does not match the recorded commitment")
			}
		}
		return seed, nil
	}
	if commitment != nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "lottery requires its committed seed")
	}
	seed, err := security.GenerateSeed()
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate seed")
	}
	return seed, nil
}

// shuffledOrder runs a Fisher–Yates shuffle over [0,n) driven entirely by
// the seed, so the same seed and participant set always produce the same
// ordering.
func shuffledOrder(n int, seed string) ([]int, error) {
	raw, err := hex.DecodeString(seed)
	if err != nil {
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	var key [32]byte
	copy(key[:], raw)
	rng := rand.New(rand.NewChaCha8(key))

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	for i := n - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		order[i], order[j] = order[j], order[i]
	}
	return order, nil
}

// assignPrizes walks the pool by descending rarity, handing each slot to the
// next participant in shuffle order. One prize per participant, excess
// participants get nothing.
func assignPrizes(participants []models.LotteryParticipant, order []int, pool types.PrizePool) []models.LotteryParticipant {
	winners := make([]models.LotteryParticipant, 0, len(order))
	cursor := 0
	for _, poolIdx := range pool.ByDescendingRarity() {
		entry := pool[poolIdx]
		for q := 0; q < entry.Quantity && cursor < len(order); q++ {
			winner := participants[order[cursor]]
			idx := poolIdx
			prizeType := entry.Type
			prizeValue := entry.Value
			prizeRarity := entry.Rarity
			winner.IsWinner = true
			winner.PrizeIndex = &idx
			winner.PrizeType = &prizeType
			winner.PrizeValue = &prizeValue
			winner.PrizeRarity = &prizeRarity
			winners = append(winners, winner)
			cursor++
		}
	}
	return winners
}

func mustWinMetadata(prizeIndex int) json.RawMessage {
	meta, err := audit.Metadata{PrizeIndex: &prizeIndex}.Encode()
	if err != nil {
		return nil
	}
	return meta
}

func actorRef(userID uuid.UUID, role string) *outbox.ActorRef {
	if userID == uuid.Nil {
		return nil
	}
	return &outbox.ActorRef{UserID: userID, Role: role}
}

func validateCreateInput(input CreateInput) error {
	if strings.TrimSpace(input.Title) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "title required")
	}
	if input.StartsAt.IsZero() || input.EndsAt.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "entry window required")
	}
	if !input.StartsAt.Before(input.EndsAt) {
		return pkgerrors.New(pkgerrors.CodeValidation, "starts_at must be before ends_at")
	}
	if !input.EndsAt.After(time.Now().UTC()) {
		return pkgerrors.New(pkgerrors.CodeValidation, "ends_at must be in the future")
	}
	if input.MaxParticipants != nil && *input.MaxParticipants < 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "max participants must be at least 1")
	}
	if err := input.PrizePool.Validate(); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid prize pool")
	}
	if input.PrizePool.TotalQuantity() != input.TotalPrizes {
		return pkgerrors.New(pkgerrors.CodeValidation, "prize pool quantities must sum to total prizes")
	}
	if input.SeedCommitment != "" {
		if err := security.ValidateSeed(strings.ToLower(input.SeedCommitment)); err != nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "seed commitment must be 64 hex characters")
		}
	}
	return nil
}
