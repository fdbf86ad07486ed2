package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/yufr007/seacaster-sub001/ledger"
	"github.com/yufr007/seacaster-sub001/metrics"
	"github.com/yufr007/seacaster-sub001/models"
	"github.com/yufr007/seacaster-sub001/realtime"
	"github.com/yufr007/seacaster-sub001/repositories"
)

// Broadcaster - то, что сервисам нужно от хаба.
type Broadcaster interface {
	BroadcastToRoom(tournamentID int, message realtime.ServerMessage)
	RoomSize(tournamentID int) int
}

// Settler - обратный вызов в движок расчёта при переходе LIVE -> ENDED.
type Settler interface {
	Settle(ctx context.Context, tournamentID int) error
}

// TournamentService владеет жизненным циклом турниров: допуском игроков,
// приёмом результатов и переводом статусов по часам.
type TournamentService struct {
	tournamentRepo repositories.TournamentRepository
	entryRepo      repositories.EntryRepository
	scoreRepo      repositories.ScoreRepository
	leaderboards   *LeaderboardService
	ledger         ledger.Ledger
	hub            Broadcaster
	settler        Settler
	metrics        *metrics.Manager
	logger         *slog.Logger

	clock         func() time.Time
	maxScore      float64
	ledgerTimeout time.Duration
}

func NewTournamentService(
	tournamentRepo repositories.TournamentRepository,
	entryRepo repositories.EntryRepository,
	scoreRepo repositories.ScoreRepository,
	leaderboards *LeaderboardService,
	ldg ledger.Ledger,
	hub Broadcaster,
	settler Settler,
	m *metrics.Manager,
	logger *slog.Logger,
	maxScore float64,
	ledgerTimeout time.Duration,
) *TournamentService {
	return &TournamentService{
		tournamentRepo: tournamentRepo,
		entryRepo:      entryRepo,
		scoreRepo:      scoreRepo,
		leaderboards:   leaderboards,
		ledger:         ldg,
		hub:            hub,
		settler:        settler,
		metrics:        m,
		logger:         logger,
		clock:          time.Now,
		maxScore:       maxScore,
		ledgerTimeout:  ledgerTimeout,
	}
}

// WithClock подменяет источник времени. Используется в тестах.
func (s *TournamentService) WithClock(clock func() time.Time) *TournamentService {
	s.clock = clock
	return s
}

type CreateTournamentInput struct {
	Name            string                `json:"name"`
	Kind            models.TournamentKind `json:"kind"`
	EntryFee        float64               `json:"entry_fee"`
	PrizePool       float64               `json:"prize_pool"`
	HouseCutPercent int                   `json:"house_cut_percent"`
	Capacity        int                   `json:"capacity"`
	StartTime       time.Time             `json:"start_time"`
	EndTime         time.Time             `json:"end_time"`
	PayoutCurve     []float64             `json:"payout_curve,omitempty"`
}

// CreateTournament создаёт турнир в статусе OPEN. Кривая выплат проверяется
// здесь, при создании, а не при расчёте.
func (s *TournamentService) CreateTournament(ctx context.Context, input CreateTournamentInput) (*models.Tournament, error) {
	if input.Name == "" {
		return nil, ErrTournamentNameRequired
	}
	defaults, ok := models.DefaultsForKind(input.Kind)
	if !ok {
		return nil, ErrTournamentInvalidKind
	}

	t := &models.Tournament{
		Name:            input.Name,
		Kind:            input.Kind,
		EntryFee:        input.EntryFee,
		PrizePool:       input.PrizePool,
		HouseCutPercent: input.HouseCutPercent,
		Capacity:        input.Capacity,
		StartTime:       input.StartTime,
		EndTime:         input.EndTime,
		Status:          models.StatusOpen,
		ScoringMode:     defaults.ScoringMode,
		PayoutCurve:     input.PayoutCurve,
	}
	if t.Capacity == 0 {
		t.Capacity = defaults.Capacity
	}
	if t.EndTime.IsZero() && !t.StartTime.IsZero() {
		t.EndTime = t.StartTime.Add(defaults.Duration)
	}
	if len(t.PayoutCurve) == 0 {
		t.PayoutCurve = defaults.PayoutCurve
	}

	if t.StartTime.IsZero() || !t.StartTime.Before(t.EndTime) {
		return nil, ErrTournamentInvalidDates
	}
	if t.Capacity <= 0 {
		return nil, ErrTournamentInvalidCapacity
	}
	if t.HouseCutPercent < 0 || t.HouseCutPercent > 100 {
		return nil, ErrTournamentInvalidHouseCut
	}
	if err := validatePayoutCurve(t.PayoutCurve); err != nil {
		return nil, err
	}

	if err := s.tournamentRepo.Create(ctx, t); err != nil {
		return nil, err
	}
	s.logger.Info("tournament created",
		slog.Int("tournament_id", t.ID),
		slog.String("kind", string(t.Kind)),
		slog.Time("start_time", t.StartTime))
	return t, nil
}

func validatePayoutCurve(curve []float64) error {
	if len(curve) == 0 {
		return ErrTournamentInvalidCurve
	}
	sum := 0.0
	for _, pct := range curve {
		if pct < 0 {
			return ErrTournamentInvalidCurve
		}
		sum += pct
	}
	if math.Abs(sum-100) > 1e-9 {
		return ErrTournamentInvalidCurve
	}
	return nil
}

func (s *TournamentService) GetTournament(ctx context.Context, id int) (*models.Tournament, error) {
	t, err := s.tournamentRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}
	return t, nil
}

// ListTournamentsInput - произвольный срез по статусу и виду.
type ListTournamentsInput struct {
	Status *models.TournamentStatus
	Kind   *models.TournamentKind
}

func (s *TournamentService) ListTournaments(ctx context.Context, input ListTournamentsInput) ([]models.Tournament, error) {
	return s.tournamentRepo.List(ctx, repositories.ListTournamentsFilter{
		Status: input.Status,
		Kind:   input.Kind,
	})
}

// ListActiveTournaments возвращает турниры, в которых ещё что-то происходит:
// открытые для входа и идущие прямо сейчас.
func (s *TournamentService) ListActiveTournaments(ctx context.Context) ([]models.Tournament, error) {
	active := make([]models.Tournament, 0)
	for _, status := range []models.TournamentStatus{models.StatusOpen, models.StatusLive} {
		st := status
		batch, err := s.tournamentRepo.List(ctx, repositories.ListTournamentsFilter{Status: &st})
		if err != nil {
			return nil, err
		}
		active = append(active, batch...)
	}
	return active, nil
}

// Enter допускает игрока в турнир. Списание у леджера происходит строго
// до записи Entry: если авторизация не прошла, частичного состояния нет.
func (s *TournamentService) Enter(ctx context.Context, tournamentID, playerID int, method models.EntryMethod) (*models.Entry, error) {
	t, err := s.GetTournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	if t.Status != models.StatusOpen {
		return nil, ErrTournamentClosed
	}
	if t.EntryCount >= t.Capacity {
		return nil, ErrTournamentFull
	}

	amount := 0.0
	if method == models.EntryMethodPaid {
		amount = t.EntryFee
	}

	ledgerCtx, cancel := context.WithTimeout(ctx, s.ledgerTimeout)
	defer cancel()
	if err := s.ledger.Authorize(ledgerCtx, playerID, amount); err != nil {
		if errors.Is(err, ledger.ErrDeclined) {
			return nil, ErrPaymentDeclined
		}
		// Таймаут или транспортная ошибка: успех не предполагается.
		return nil, fmt.Errorf("ledger authorization for player %d: %w", playerID, err)
	}

	entry, err := s.entryRepo.CreateEntry(ctx, tournamentID, playerID, method)
	if err != nil {
		return nil, mapAdmissionError(err)
	}

	s.metrics.EntryCreated()
	t.EntryCount++
	s.broadcastState(t)
	s.logger.Info("player entered tournament",
		slog.Int("tournament_id", tournamentID),
		slog.Int("player_id", playerID),
		slog.String("entry_method", string(method)))
	return entry, nil
}

func mapAdmissionError(err error) error {
	switch {
	case errors.Is(err, repositories.ErrAlreadyEntered):
		return ErrAlreadyEntered
	case errors.Is(err, repositories.ErrCapacityExceeded):
		return ErrTournamentFull
	case errors.Is(err, repositories.ErrTournamentNotOpen):
		return ErrTournamentClosed
	case errors.Is(err, repositories.ErrTournamentNotFound):
		return ErrTournamentNotFound
	default:
		return err
	}
}

// SubmitScore принимает результат, пока турнир LIVE, и рассылает комнате
// свежий снимок лидерборда.
func (s *TournamentService) SubmitScore(ctx context.Context, tournamentID, playerID int, score float64) error {
	if math.IsNaN(score) || score <= 0 {
		s.metrics.ScoreRejected("invalid")
		return ErrInvalidScore
	}
	if score > s.maxScore {
		s.metrics.ScoreRejected("out_of_bounds")
		return ErrInvalidScore
	}

	_, err := s.scoreRepo.AppendScore(ctx, tournamentID, playerID, score, s.clock().UTC())
	if err != nil {
		switch {
		case errors.Is(err, repositories.ErrTournamentNotLive):
			s.metrics.ScoreRejected("not_live")
			return ErrTournamentNotLive
		case errors.Is(err, repositories.ErrNoSuchEntry):
			s.metrics.ScoreRejected("no_entry")
			return ErrNoSuchEntry
		case errors.Is(err, repositories.ErrTournamentNotFound):
			s.metrics.ScoreRejected("not_found")
			return ErrTournamentNotFound
		default:
			return err
		}
	}
	s.metrics.ScoreAccepted()

	snapshot, err := s.leaderboards.Snapshot(ctx, tournamentID)
	if err != nil {
		// Результат уже записан; доставка снимка догонит на следующем событии.
		s.logger.Error("failed to rebuild leaderboard after score",
			slog.Int("tournament_id", tournamentID), slog.Any("error", err))
		return nil
	}
	s.hub.BroadcastToRoom(tournamentID, realtime.ServerMessage{
		Type:    realtime.EventLeaderboardUpdate,
		Payload: snapshot,
	})
	s.metrics.EventBroadcast(realtime.EventLeaderboardUpdate)
	return nil
}

// SweepStatuses - периодическая развёртка: переводит турниры по часам.
// Переходы идут через оптимистическую проверку статуса, поэтому
// повторная развёртка после рестарта не сработает дважды.
func (s *TournamentService) SweepStatuses(ctx context.Context) error {
	now := s.clock().UTC()
	due, err := s.tournamentRepo.ListDueForTransition(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to list tournaments due for transition: %w", err)
	}

	for _, t := range due {
		switch t.Status {
		case models.StatusOpen:
			s.transition(ctx, t, models.StatusOpen, models.StatusLive)
		case models.StatusLive:
			if s.transition(ctx, t, models.StatusLive, models.StatusEnded) {
				if err := s.settler.Settle(ctx, t.ID); err != nil {
					s.logger.Error("settlement failed",
						slog.Int("tournament_id", t.ID), slog.Any("error", err))
				}
			}
		}
	}
	return nil
}

func (s *TournamentService) transition(ctx context.Context, t *models.Tournament, from, to models.TournamentStatus) bool {
	err := s.tournamentRepo.TransitionStatus(ctx, t.ID, from, to)
	if err != nil {
		if errors.Is(err, repositories.ErrStaleTransition) {
			// Кто-то успел раньше. Это не сбой.
			return false
		}
		s.logger.Error("status transition failed",
			slog.Int("tournament_id", t.ID),
			slog.String("from", string(from)),
			slog.String("to", string(to)),
			slog.Any("error", err))
		return false
	}

	t.Status = to
	s.broadcastState(t)
	s.logger.Info("tournament status changed",
		slog.Int("tournament_id", t.ID),
		slog.String("from", string(from)),
		slog.String("to", string(to)))
	return true
}

func (s *TournamentService) broadcastState(t *models.Tournament) {
	s.hub.BroadcastToRoom(t.ID, realtime.ServerMessage{
		Type: realtime.EventTournamentState,
		Payload: realtime.TournamentStatePayload{
			Status:               t.Status,
			CurrentParticipants:  t.EntryCount,
			MaxParticipants:      t.Capacity,
			TimeRemainingSeconds: int64(t.TimeRemaining(s.clock()) / time.Second),
		},
	})
	s.metrics.EventBroadcast(realtime.EventTournamentState)
}

// StatePayload собирает полезную нагрузку tournament:state для комнаты.
func (s *TournamentService) StatePayload(ctx context.Context, tournamentID int) (realtime.TournamentStatePayload, error) {
	t, err := s.GetTournament(ctx, tournamentID)
	if err != nil {
		return realtime.TournamentStatePayload{}, err
	}
	return realtime.TournamentStatePayload{
		Status:               t.Status,
		CurrentParticipants:  t.EntryCount,
		MaxParticipants:      t.Capacity,
		TimeRemainingSeconds: int64(t.TimeRemaining(s.clock()) / time.Second),
	}, nil
}
