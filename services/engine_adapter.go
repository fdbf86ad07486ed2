package services

import (
	"context"
	"errors"

	"github.com/yufr007/seacaster-sub001/models"
	"github.com/yufr007/seacaster-sub001/realtime"
)

// EngineAdapter подключает сервисный слой к хабу как realtime.Engine.
type EngineAdapter struct {
	tournaments  *TournamentService
	leaderboards *LeaderboardService
}

func NewEngineAdapter(tournaments *TournamentService, leaderboards *LeaderboardService) *EngineAdapter {
	return &EngineAdapter{tournaments: tournaments, leaderboards: leaderboards}
}

func (a *EngineAdapter) RoomState(ctx context.Context, tournamentID int) (realtime.TournamentStatePayload, error) {
	return a.tournaments.StatePayload(ctx, tournamentID)
}

func (a *EngineAdapter) Leaderboard(ctx context.Context, tournamentID, limit int) (models.LeaderboardSnapshot, error) {
	return a.leaderboards.Top(ctx, tournamentID, limit)
}

func (a *EngineAdapter) SubmitScore(ctx context.Context, tournamentID, playerID int, score float64) error {
	return a.tournaments.SubmitScore(ctx, tournamentID, playerID, score)
}

// DescribeError переводит ошибки сервисов в полезную нагрузку error-кадра.
// Игрокам не утекают внутренние детали: всё, что не из таксономии,
// становится общим невосстановимым internal.
func (a *EngineAdapter) DescribeError(err error) realtime.ErrorPayload {
	switch {
	case errors.Is(err, ErrTournamentNotFound):
		return realtime.ErrorPayload{Code: "tournament_not_found", Message: err.Error(), Recoverable: true}
	case errors.Is(err, ErrTournamentFull):
		return realtime.ErrorPayload{Code: "tournament_full", Message: err.Error(), Recoverable: true}
	case errors.Is(err, ErrTournamentClosed):
		return realtime.ErrorPayload{Code: "tournament_closed", Message: err.Error(), Recoverable: true}
	case errors.Is(err, ErrAlreadyEntered):
		return realtime.ErrorPayload{Code: "already_entered", Message: err.Error(), Recoverable: true}
	case errors.Is(err, ErrPaymentDeclined):
		return realtime.ErrorPayload{Code: "payment_declined", Message: err.Error(), Recoverable: true}
	case errors.Is(err, ErrTournamentNotLive):
		return realtime.ErrorPayload{Code: "tournament_not_live", Message: err.Error(), Recoverable: true}
	case errors.Is(err, ErrInvalidScore):
		return realtime.ErrorPayload{Code: "invalid_score", Message: err.Error(), Recoverable: true}
	case errors.Is(err, ErrNoSuchEntry):
		return realtime.ErrorPayload{Code: "no_entry", Message: err.Error(), Recoverable: true}
	default:
		return realtime.ErrorPayload{Code: "internal", Message: "internal error", Recoverable: false}
	}
}
