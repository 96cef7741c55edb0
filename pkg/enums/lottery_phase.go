package enums

// LotteryPhase is derived from wall clock against the lottery window; only
// the completed terminal flag is stored.
type LotteryPhase string

const (
	LotteryPhaseNotStarted LotteryPhase = "not_started"
	LotteryPhaseActive     LotteryPhase = "active"
	LotteryPhaseEnded      LotteryPhase = "ended"
	LotteryPhaseCompleted  LotteryPhase = "completed"
)
