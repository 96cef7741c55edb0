package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/perkmint/perkmint-backend/pkg/enums"
	"github.com/perkmint/perkmint-backend/pkg/types"
)

// Lottery is one drawing. Phase is derived from the wall clock against the
// entry window; only the terminal is_completed flag is stored.
type Lottery struct {
	ID                  uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Title               string          `gorm:"column:title;not null"`
	Description         string          `gorm:"column:description"`
	StartsAt            time.Time       `gorm:"column:starts_at;not null"`
	EndsAt              time.Time       `gorm:"column:ends_at;not null"`
	DrawTime            *time.Time      `gorm:"column:draw_time"`
	MaxParticipants     *int            `gorm:"column:max_participants"`
	CurrentParticipants int             `gorm:"column:current_participants;not null;default:0"`
	PrizePool           types.PrizePool `gorm:"column:prize_pool;type:jsonb;not null"`
	TotalPrizes         int             `gorm:"column:total_prizes;not null"`
	RemainingPrizes     int             `gorm:"column:remaining_prizes;not null"`
	IsActive            bool            `gorm:"column:is_active;not null;default:true"`
	IsCompleted         bool            `gorm:"column:is_completed;not null;default:false"`
	RandomSeed          *string         `gorm:"column:random_seed"`
	SeedCommitment      *string         `gorm:"column:seed_commitment"`
	CreatedAt           time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// Phase derives the lifecycle phase at now.
func (l *Lottery) Phase(now time.Time) enums.LotteryPhase {
	switch {
	case l.IsCompleted:
		return enums.LotteryPhaseCompleted
	case now.Before(l.StartsAt):
		return enums.LotteryPhaseNotStarted
	case now.Before(l.EndsAt):
		return enums.LotteryPhaseActive
	default:
		return enums.LotteryPhaseEnded
	}
}

// CanAcceptParticipants reports whether a new entry is allowed at now. The
// returned reason names the first failing check.
func (l *Lottery) CanAcceptParticipants(now time.Time) (bool, string) {
	switch {
	case l.IsCompleted:
		return false, "lottery already completed"
	case !l.IsActive:
		return false, "lottery is inactive"
	case now.Before(l.StartsAt):
		return false, "lottery has not started"
	case now.After(l.EndsAt):
		return false, "lottery has ended"
	case l.MaxParticipants != nil && l.CurrentParticipants >= *l.MaxParticipants:
		return false, "lottery is at capacity"
	case l.RemainingPrizes <= 0:
		return false, "no prizes remaining"
	}
	return true, ""
}

// ReadyForDraw reports whether winner selection may run at now.
func (l *Lottery) ReadyForDraw(now time.Time) (bool, string) {
	switch {
	case l.IsCompleted:
		return false, "lottery already completed"
	case !l.IsActive:
		return false, "lottery is inactive"
	case now.Before(l.EndsAt):
		return false, "lottery has not ended"
	case l.CurrentParticipants == 0:
		return false, "lottery has no participants"
	}
	return true, ""
}

// PrizeDistribution reports prize quantity by rarity tier.
func (l *Lottery) PrizeDistribution() map[enums.PrizeRarity]int {
	return l.PrizePool.DistributionByRarity()
}
