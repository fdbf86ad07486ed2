package models

import "time"

// TournamentStatus представляет статусы турнира, соответствующие ENUM в БД.
type TournamentStatus string

const (
	StatusOpen  TournamentStatus = "open"
	StatusLive  TournamentStatus = "live"
	StatusEnded TournamentStatus = "ended"
)

// TournamentKind определяет вид турнира и его параметры по умолчанию.
type TournamentKind string

const (
	KindDaily        TournamentKind = "daily"
	KindWeekly       TournamentKind = "weekly"
	KindBossRaid     TournamentKind = "boss_raid"
	KindChampionship TournamentKind = "championship"
)

// ScoringMode определяет, как очередной результат сворачивается в счёт участника.
type ScoringMode string

const (
	// ScoringBest keeps the best single submission (a "biggest catch" contest).
	ScoringBest ScoringMode = "best"
	// ScoringCumulative sums all submissions (a "total weight" contest).
	ScoringCumulative ScoringMode = "cumulative"
)

// Tournament представляет один турнир, ограниченный по времени.
type Tournament struct {
	ID              int              `json:"id" db:"id"`
	Name            string           `json:"name" db:"name"`
	Kind            TournamentKind   `json:"kind" db:"kind"`
	EntryFee        float64          `json:"entry_fee" db:"entry_fee"`
	PrizePool       float64          `json:"prize_pool" db:"prize_pool"`
	HouseCutPercent int              `json:"house_cut_percent" db:"house_cut_percent"`
	Capacity        int              `json:"capacity" db:"capacity"`
	EntryCount      int              `json:"entry_count" db:"entry_count"`
	StartTime       time.Time        `json:"start_time" db:"start_time"`
	EndTime         time.Time        `json:"end_time" db:"end_time"`
	Status          TournamentStatus `json:"status" db:"status"`
	ScoringMode     ScoringMode      `json:"scoring_mode" db:"scoring_mode"`
	// PayoutCurve holds the percentage of the available pool paid to each
	// leaderboard position, first place first. Must sum to 100; validated
	// when the tournament is created, not at settlement time.
	PayoutCurve  []float64 `json:"payout_curve" db:"payout_curve"`
	LastSequence int64     `json:"-" db:"last_sequence"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// TimeRemaining возвращает время до конца турнира (или до старта, пока он открыт).
func (t *Tournament) TimeRemaining(now time.Time) time.Duration {
	var until time.Time
	switch t.Status {
	case StatusOpen:
		until = t.StartTime
	case StatusLive:
		until = t.EndTime
	default:
		return 0
	}
	if now.After(until) {
		return 0
	}
	return until.Sub(now)
}

// KindDefaults несёт параметры по умолчанию для вида турнира.
type KindDefaults struct {
	Duration    time.Duration
	Capacity    int
	ScoringMode ScoringMode
	PayoutCurve []float64
}

// DefaultsForKind возвращает параметры по умолчанию для вида турнира.
// BossRaid - единственный накопительный вид.
func DefaultsForKind(kind TournamentKind) (KindDefaults, bool) {
	switch kind {
	case KindDaily:
		return KindDefaults{
			Duration:    24 * time.Hour,
			Capacity:    100,
			ScoringMode: ScoringBest,
			PayoutCurve: []float64{50, 30, 20},
		}, true
	case KindWeekly:
		return KindDefaults{
			Duration:    7 * 24 * time.Hour,
			Capacity:    500,
			ScoringMode: ScoringBest,
			PayoutCurve: []float64{40, 25, 15, 10, 10},
		}, true
	case KindBossRaid:
		return KindDefaults{
			Duration:    2 * time.Hour,
			Capacity:    50,
			ScoringMode: ScoringCumulative,
			PayoutCurve: []float64{60, 25, 15},
		}, true
	case KindChampionship:
		return KindDefaults{
			Duration:    3 * 24 * time.Hour,
			Capacity:    1000,
			ScoringMode: ScoringBest,
			PayoutCurve: []float64{30, 20, 15, 10, 8, 7, 5, 3, 1, 1},
		}, true
	}
	return KindDefaults{}, false
}
