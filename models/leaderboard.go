package models

import "time"

// LeaderboardRow - одна строка рейтинга.
type LeaderboardRow struct {
	Rank     int     `json:"rank"`
	PlayerID int     `json:"player_id"`
	Score    float64 `json:"score"`
}

// LeaderboardSnapshot - материализованное ранжированное представление.
// Не является самостоятельным источником истины: в любой момент
// восстанавливается из записей турнира.
type LeaderboardSnapshot struct {
	TournamentID int              `json:"tournament_id"`
	Rows         []LeaderboardRow `json:"entries"`
	TotalEntries int              `json:"total_entries"`
	GeneratedAt  time.Time        `json:"generated_at"`
}
