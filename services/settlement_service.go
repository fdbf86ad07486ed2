package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yufr007/seacaster-sub001/ledger"
	"github.com/yufr007/seacaster-sub001/metrics"
	"github.com/yufr007/seacaster-sub001/models"
	"github.com/yufr007/seacaster-sub001/realtime"
	"github.com/yufr007/seacaster-sub001/repositories"
	"github.com/yufr007/seacaster-sub001/storage"
)

const (
	payoutRetryAttempts  = 3
	payoutRetryBaseDelay = 500 * time.Millisecond
	payoutConcurrency    = 4
)

// SettlementService необратимо закрывает турнир: фиксирует итоговый
// лидерборд, считает и записывает выплаты ровно один раз, переводит
// деньги через леджер и архивирует отчёт.
type SettlementService struct {
	tournamentRepo repositories.TournamentRepository
	payoutRepo     repositories.PayoutRepository
	leaderboards   *LeaderboardService
	ledger         ledger.Ledger
	hub            Broadcaster
	uploader       storage.FileUploader // nil - архив отключён
	metrics        *metrics.Manager
	logger         *slog.Logger
	clock          func() time.Time

	retryBaseDelay time.Duration
}

func NewSettlementService(
	tournamentRepo repositories.TournamentRepository,
	payoutRepo repositories.PayoutRepository,
	leaderboards *LeaderboardService,
	ldg ledger.Ledger,
	hub Broadcaster,
	uploader storage.FileUploader,
	m *metrics.Manager,
	logger *slog.Logger,
) *SettlementService {
	return &SettlementService{
		tournamentRepo: tournamentRepo,
		payoutRepo:     payoutRepo,
		leaderboards:   leaderboards,
		ledger:         ldg,
		hub:            hub,
		uploader:       uploader,
		metrics:        m,
		logger:         logger,
		clock:          time.Now,
		retryBaseDelay: payoutRetryBaseDelay,
	}
}

// WithClock подменяет источник времени. Используется в тестах.
func (s *SettlementService) WithClock(clock func() time.Time) *SettlementService {
	s.clock = clock
	return s
}

// WithRetryBaseDelay сокращает базовую паузу ретраев. Используется в тестах.
func (s *SettlementService) WithRetryBaseDelay(d time.Duration) *SettlementService {
	s.retryBaseDelay = d
	return s
}

// Settle рассчитывает турнир. Идемпотентен: повторный вызов упирается в
// уникальность записи о расчёте и превращается в no-op.
func (s *SettlementService) Settle(ctx context.Context, tournamentID int) error {
	started := s.clock()

	t, err := s.tournamentRepo.GetByID(ctx, tournamentID)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return ErrTournamentNotFound
		}
		return err
	}
	if t.Status != models.StatusEnded {
		return fmt.Errorf("tournament %d is not ended, refusing to settle", tournamentID)
	}

	// Статус ENDED уже отрезал новые результаты, снимок стабилен.
	snapshot, err := s.leaderboards.Snapshot(ctx, tournamentID)
	if err != nil {
		return err
	}

	payouts := ComputePayouts(t, snapshot)
	for i := range payouts {
		payouts[i].ID = uuid.NewString()
	}

	if err := s.payoutRepo.RecordPayouts(ctx, tournamentID, payouts); err != nil {
		if errors.Is(err, repositories.ErrAlreadySettled) {
			// Повторная развёртка. Расчёт уже состоялся, делать нечего.
			s.logger.Info("tournament already settled", slog.Int("tournament_id", tournamentID))
			return nil
		}
		return fmt.Errorf("failed to record payouts for tournament %d: %w", tournamentID, err)
	}

	s.transferPayouts(ctx, payouts)

	final, err := s.payoutRepo.ListByTournament(ctx, tournamentID)
	if err != nil {
		s.logger.Error("failed to reload payouts after transfer",
			slog.Int("tournament_id", tournamentID), slog.Any("error", err))
		final = payouts
	}

	s.archiveReport(ctx, t, snapshot, final)

	totalPayout := 0.0
	for _, p := range final {
		totalPayout += p.Amount
	}
	s.hub.BroadcastToRoom(tournamentID, realtime.ServerMessage{
		Type: realtime.EventTournamentSettled,
		Payload: realtime.TournamentSettledPayload{
			Winners:     final,
			TotalPayout: totalPayout,
		},
	})
	s.metrics.EventBroadcast(realtime.EventTournamentSettled)
	s.metrics.SettlementCompleted(s.clock().Sub(started))

	s.logger.Info("tournament settled",
		slog.Int("tournament_id", tournamentID),
		slog.Int("payouts", len(final)),
		slog.Float64("total_payout", totalPayout))
	return nil
}

// ComputePayouts распределяет доступный пул по кривой выплат.
// Доступный пул: prizePool * (1 - houseCut/100). Кривая проверена на
// сумму 100 при создании турнира. Выплаты привязаны к позициям итогового
// лидерборда: при равенстве счёта места делятся в порядке тай-брейка.
func ComputePayouts(t *models.Tournament, snapshot models.LeaderboardSnapshot) []models.Payout {
	availablePool := t.PrizePool * (1 - float64(t.HouseCutPercent)/100)

	payouts := make([]models.Payout, 0, len(t.PayoutCurve))
	for i, pct := range t.PayoutCurve {
		if i >= len(snapshot.Rows) {
			break
		}
		if pct <= 0 {
			continue
		}
		row := snapshot.Rows[i]
		amount := math.Round(availablePool*pct) / 100
		payouts = append(payouts, models.Payout{
			TournamentID: t.ID,
			Rank:         row.Rank,
			PlayerID:     row.PlayerID,
			Amount:       amount,
			Status:       models.PayoutStatusPending,
		})
	}
	return payouts
}

// transferPayouts переводит выигрыши параллельно. Выплата, не прошедшая
// после ретраев, помечается PENDING_MANUAL и не блокирует остальные.
func (s *SettlementService) transferPayouts(ctx context.Context, payouts []models.Payout) {
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(payoutConcurrency)

	for _, p := range payouts {
		payout := p
		g.Go(func() error {
			status := models.PayoutStatusTransferred
			if err := s.payoutWithRetry(gCtx, payout); err != nil {
				s.logger.Error("payout transfer exhausted retries",
					slog.String("payout_id", payout.ID),
					slog.Int("player_id", payout.PlayerID),
					slog.Any("error", err))
				status = models.PayoutStatusPendingManual
			}
			if err := s.payoutRepo.UpdateStatus(gCtx, payout.ID, status); err != nil {
				s.logger.Error("failed to update payout status",
					slog.String("payout_id", payout.ID), slog.Any("error", err))
			}
			s.metrics.PayoutRecorded(string(status))
			return nil
		})
	}
	g.Wait()
}

func (s *SettlementService) payoutWithRetry(ctx context.Context, payout models.Payout) error {
	var err error
	delay := s.retryBaseDelay
	for attempt := 0; attempt < payoutRetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(delay):
				delay *= 2
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err = s.ledger.Payout(ctx, payout.PlayerID, payout.Amount); err == nil {
			return nil
		}
	}
	return err
}

type settlementReport struct {
	Tournament  *models.Tournament         `json:"tournament"`
	Leaderboard models.LeaderboardSnapshot `json:"leaderboard"`
	Payouts     []models.Payout            `json:"payouts"`
	SettledAt   time.Time                  `json:"settled_at"`
}

// archiveReport выгружает итоговый отчёт в объектное хранилище.
// Турнир не удаляется; отчёт - его аудиторский след. Сбой выгрузки
// не срывает расчёт.
func (s *SettlementService) archiveReport(ctx context.Context, t *models.Tournament, snapshot models.LeaderboardSnapshot, payouts []models.Payout) {
	if s.uploader == nil {
		return
	}

	report := settlementReport{
		Tournament:  t,
		Leaderboard: snapshot,
		Payouts:     payouts,
		SettledAt:   s.clock().UTC(),
	}
	body, err := json.Marshal(report)
	if err != nil {
		s.logger.Error("failed to marshal settlement report",
			slog.Int("tournament_id", t.ID), slog.Any("error", err))
		return
	}

	key := fmt.Sprintf("settlements/%d.json", t.ID)
	if _, err := s.uploader.Upload(ctx, key, "application/json", bytes.NewReader(body)); err != nil {
		s.logger.Error("failed to archive settlement report",
			slog.Int("tournament_id", t.ID), slog.Any("error", err))
		return
	}
	s.logger.Info("settlement report archived",
		slog.Int("tournament_id", t.ID), slog.String("key", key))
}
