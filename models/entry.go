package models

import "time"

// EntryMethod - способ входа в турнир.
type EntryMethod string

const (
	EntryMethodPaid   EntryMethod = "paid"
	EntryMethodTicket EntryMethod = "ticket"
)

// Entry - запись об участии игрока в турнире.
// Не более одной Entry на пару (tournament_id, player_id), это гарантирует БД.
type Entry struct {
	ID           int         `json:"id" db:"id"`
	TournamentID int         `json:"tournament_id" db:"tournament_id"`
	PlayerID     int         `json:"player_id" db:"player_id"`
	EntryMethod  EntryMethod `json:"entry_method" db:"entry_method"`
	EnteredAt    time.Time   `json:"entered_at" db:"entered_at"`
	// BestScore is monotonically non-decreasing. Under cumulative scoring it
	// holds the running total instead of the single best submission.
	BestScore float64 `json:"best_score" db:"best_score"`
	// BestScoreSeq is the sequence number of the score event that produced
	// the current BestScore. Used as the tie-break key.
	BestScoreSeq int64 `json:"best_score_seq" db:"best_score_seq"`
}
