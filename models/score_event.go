package models

import "time"

// ScoreEvent - неизменяемая запись об одной отправке результата.
// Журнал событий - авторитетная история: из него можно пересчитать
// best_score каждой записи и весь лидерборд.
type ScoreEvent struct {
	ID           int64     `json:"id" db:"id"`
	TournamentID int       `json:"tournament_id" db:"tournament_id"`
	PlayerID     int       `json:"player_id" db:"player_id"`
	Score        float64   `json:"score" db:"score"`
	SubmittedAt  time.Time `json:"submitted_at" db:"submitted_at"`
	// SequenceNumber is assigned by the store, monotonic per tournament.
	SequenceNumber int64 `json:"sequence_number" db:"sequence_number"`
}
