package services

import (
	"context"
	"fmt"

	"github.com/yufr007/seacaster-sub001/models"
	"github.com/yufr007/seacaster-sub001/ranking"
	"github.com/yufr007/seacaster-sub001/repositories"
)

// LeaderboardService строит снимки лидерборда из записей турнира.
// Сам он ничего не мутирует: читает записи и прогоняет их через ranking.
type LeaderboardService struct {
	entryRepo repositories.EntryRepository
	policy    ranking.Policy
}

func NewLeaderboardService(entryRepo repositories.EntryRepository) *LeaderboardService {
	return &LeaderboardService{
		entryRepo: entryRepo,
		policy:    ranking.DefaultPolicy(),
	}
}

// Snapshot возвращает полный снимок лидерборда.
func (s *LeaderboardService) Snapshot(ctx context.Context, tournamentID int) (models.LeaderboardSnapshot, error) {
	entries, err := s.entryRepo.ListByTournament(ctx, tournamentID)
	if err != nil {
		return models.LeaderboardSnapshot{}, fmt.Errorf("failed to list entries for tournament %d: %w", tournamentID, err)
	}
	return ranking.Rank(tournamentID, entries, s.policy), nil
}

// Top возвращает первые limit строк (0 - без усечения).
func (s *LeaderboardService) Top(ctx context.Context, tournamentID, limit int) (models.LeaderboardSnapshot, error) {
	snapshot, err := s.Snapshot(ctx, tournamentID)
	if err != nil {
		return models.LeaderboardSnapshot{}, err
	}
	return ranking.TopN(snapshot, limit), nil
}

// Around возвращает ранг игрока и окно соседних строк, чтобы позиция
// разрешалась и вне топа, без выгрузки всего лидерборда.
func (s *LeaderboardService) Around(ctx context.Context, tournamentID, playerID, window int) (int, []models.LeaderboardRow, error) {
	snapshot, err := s.Snapshot(ctx, tournamentID)
	if err != nil {
		return 0, nil, err
	}
	rank, rows, ok := ranking.Around(snapshot, playerID, window)
	if !ok {
		return 0, nil, ErrNoSuchEntry
	}
	return rank, rows, nil
}
