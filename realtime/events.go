package realtime

import (
	"context"

	"github.com/yufr007/seacaster-sub001/models"
)

// Типы серверных событий.
const (
	EventTournamentState   = "tournament:state"
	EventLeaderboardUpdate = "leaderboard:update"
	EventUserJoined        = "user:joined"
	EventTournamentSettled = "tournament:settled"
	EventError             = "error"
	EventAck               = "ack"
	EventPong              = "pong"
)

// Типы клиентских сообщений.
const (
	MessageJoin             = "join:tournament"
	MessageLeave            = "leave:tournament"
	MessageScoreUpdate      = "score:update"
	MessageLeaderboardFetch = "leaderboard:fetch"
	MessagePing             = "ping"
)

// ServerMessage - конверт любого события, уходящего клиенту.
type ServerMessage struct {
	Type         string      `json:"type"`
	Payload      interface{} `json:"payload,omitempty"`
	TournamentID int         `json:"tournament_id,omitempty"`
}

// ClientMessage - конверт любого запроса от клиента.
type ClientMessage struct {
	Type         string  `json:"type"`
	TournamentID int     `json:"tournament_id,omitempty"`
	Score        float64 `json:"score,omitempty"`
	Limit        int     `json:"limit,omitempty"`
}

type TournamentStatePayload struct {
	Status               models.TournamentStatus `json:"status"`
	CurrentParticipants  int                     `json:"current_participants"`
	MaxParticipants      int                     `json:"max_participants"`
	TimeRemainingSeconds int64                   `json:"time_remaining_seconds"`
}

type UserJoinedPayload struct {
	PlayerID          int `json:"player_id"`
	TotalParticipants int `json:"total_participants"`
}

type TournamentSettledPayload struct {
	Winners     []models.Payout `json:"winners"`
	TotalPayout float64         `json:"total_payout"`
}

type ErrorPayload struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
}

type AckPayload struct {
	Of      string `json:"of"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Engine - обратная сторона хаба: реализуется сервисным слоем.
// Хаб не трогает хранилище сам, он только доставляет события и
// транслирует клиентские запросы сюда.
type Engine interface {
	// RoomState returns the current lifecycle payload for a tournament.
	RoomState(ctx context.Context, tournamentID int) (TournamentStatePayload, error)
	// Leaderboard returns the current top-N snapshot.
	Leaderboard(ctx context.Context, tournamentID, limit int) (models.LeaderboardSnapshot, error)
	// SubmitScore records a score submission on behalf of a player.
	SubmitScore(ctx context.Context, tournamentID, playerID int, score float64) error
	// DescribeError maps a service error onto the wire error payload.
	DescribeError(err error) ErrorPayload
}
