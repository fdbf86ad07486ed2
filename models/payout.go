package models

import "time"

// PayoutStatus - состояние перевода выигрыша.
type PayoutStatus string

const (
	PayoutStatusPending       PayoutStatus = "pending"
	PayoutStatusTransferred   PayoutStatus = "transferred"
	PayoutStatusPendingManual PayoutStatus = "pending_manual"
)

// Payout - результат расчёта для одного призового места.
// Создаётся ровно один раз при расчёте турнира и далее не меняется,
// кроме статуса перевода.
type Payout struct {
	ID           string       `json:"id" db:"id"`
	TournamentID int          `json:"tournament_id" db:"tournament_id"`
	Rank         int          `json:"rank" db:"rank"`
	PlayerID     int          `json:"player_id" db:"player_id"`
	Amount       float64      `json:"amount" db:"amount"`
	Status       PayoutStatus `json:"status" db:"status"`
	CreatedAt    time.Time    `json:"created_at" db:"created_at"`
}
