package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/perkmint/perkmint-backend/pkg/enums"
)

// LotteryParticipant joins one user to one lottery. Prize fields are filled
// by the draw engine when the participant wins.
type LotteryParticipant struct {
	ID          uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	LotteryID   uuid.UUID          `gorm:"column:lottery_id;type:uuid;not null;uniqueIndex:idx_lottery_participants_lottery_user"`
	UserID      uuid.UUID          `gorm:"column:user_id;type:uuid;not null;uniqueIndex:idx_lottery_participants_lottery_user"`
	EntryCount  int                `gorm:"column:entry_count;not null;default:1"`
	IsWinner    bool               `gorm:"column:is_winner;not null;default:false"`
	PrizeIndex  *int               `gorm:"column:prize_index"`
	PrizeType   *enums.PrizeType   `gorm:"column:prize_type;type:prize_type_enum"`
	PrizeValue  *decimal.Decimal   `gorm:"column:prize_value;type:numeric(12,2)"`
	PrizeRarity *enums.PrizeRarity `gorm:"column:prize_rarity;type:prize_rarity_enum"`
	CreatedAt   time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
