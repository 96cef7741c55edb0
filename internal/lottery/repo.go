package lottery

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/perkmint/perkmint-backend/pkg/db/models"
	"github.com/perkmint/perkmint-backend/pkg/pagination"
	"github.com/perkmint/perkmint-backend/pkg/types"
)

// Repository manages lottery persistence. Participate and draw both run
// against a FOR UPDATE load of the lottery row, so per-lottery mutations are
// serialized by the database.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, lottery *models.Lottery) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Lottery, error)
	FindForUpdate(ctx context.Context, id uuid.UUID) (*models.Lottery, error)
	List(ctx context.Context, params pagination.Params) ([]models.Lottery, *pagination.Cursor, error)
	CreateParticipant(ctx context.Context, participant *models.LotteryParticipant) error
	ListParticipants(ctx context.Context, lotteryID uuid.UUID) ([]models.LotteryParticipant, error)
	IncrementParticipants(ctx context.Context, id uuid.UUID) (bool, error)
	MarkWinner(ctx context.Context, participantID uuid.UUID, prizeIndex int, prize types.PrizeEntry) error
	CompleteDraw(ctx context.Context, id uuid.UUID, seed string, winnerCount int, now time.Time) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a lottery repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, lottery *models.Lottery) error {
	return r.db.WithContext(ctx).Create(lottery).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Lottery, error) {
	var lottery models.Lottery
	if err := r.db.WithContext(ctx).First(&lottery, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &lottery, nil
}

// FindForUpdate loads the lottery holding a row lock until the enclosing
// transaction ends. Callers must run inside a transaction.
func (r *repository) FindForUpdate(ctx context.Context, id uuid.UUID) (*models.Lottery, error) {
	var lottery models.Lottery
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&lottery, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &lottery, nil
}

func (r *repository) List(ctx context.Context, params pagination.Params) ([]models.Lottery, *pagination.Cursor, error) {
	normalized := pagination.NormalizeLimit(params.Limit)
	limit := pagination.LimitWithBuffer(params.Limit)

	query := r.db.WithContext(ctx)

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, nil, err
	}
	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var lotteries []models.Lottery
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&lotteries).Error; err != nil {
		return nil, nil, err
	}

	if len(lotteries) > normalized {
		next := lotteries[normalized]
		lotteries = lotteries[:normalized]
		return lotteries, &pagination.Cursor{CreatedAt: next.CreatedAt, ID: next.ID}, nil
	}
	return lotteries, nil, nil
}

func (r *repository) CreateParticipant(ctx context.Context, participant *models.LotteryParticipant) error {
	return r.db.WithContext(ctx).Create(participant).Error
}

// ListParticipants orders by user id so the draw outcome never depends on
// insert or load order.
func (r *repository) ListParticipants(ctx context.Context, lotteryID uuid.UUID) ([]models.LotteryParticipant, error) {
	var participants []models.LotteryParticipant
	if err := r.db.WithContext(ctx).
		Where("lottery_id = ?", lotteryID).
		Order("user_id ASC").
		Find(&participants).Error; err != nil {
		return nil, err
	}
	return participants, nil
}

// IncrementParticipants bumps the counter, re-asserting capacity and state
// so the count can never pass max_participants even outside the row lock.
func (r *repository) IncrementParticipants(ctx context.Context, id uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Lottery{}).
		Where("id = ? AND is_active = ? AND is_completed = ?", id, true, false).
		Where("max_participants IS NULL OR current_participants < max_participants").
		UpdateColumn("current_participants", gorm.Expr("current_participants + 1"))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) MarkWinner(ctx context.Context, participantID uuid.UUID, prizeIndex int, prize types.PrizeEntry) error {
	return r.db.WithContext(ctx).
		Model(&models.LotteryParticipant{}).
		Where("id = ?", participantID).
		Updates(map[string]any{
			"is_winner":    true,
			"prize_index":  prizeIndex,
			"prize_type":   prize.Type,
			"prize_value":  prize.Value,
			"prize_rarity": prize.Rarity,
		}).Error
}

// CompleteDraw finalizes a lottery exactly once; the guard refuses rows that
// already completed.
func (r *repository) CompleteDraw(ctx context.Context, id uuid.UUID, seed string, winnerCount int, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Lottery{}).
		Where("id = ? AND is_completed = ?", id, false).
		Updates(map[string]any{
			"is_completed":     true,
			"draw_time":        now,
			"random_seed":      seed,
			"remaining_prizes": gorm.Expr("remaining_prizes - ?", winnerCount),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
