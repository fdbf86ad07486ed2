// Package ranking turns a tournament's entry set into an ordered leaderboard.
// It is pure: no I/O, no shared state, identical input gives identical output.
package ranking

import (
	"sort"
	"time"

	"github.com/yufr007/seacaster-sub001/models"
)

// TieBreak выбирает правило разрешения равных результатов.
type TieBreak int

const (
	// TieBreakEarliestSequence: при равном счёте выше тот, кто достиг его
	// раньше (меньший sequence number события, давшего этот счёт).
	TieBreakEarliestSequence TieBreak = iota
	// TieBreakPlayerID: стабильный порядок по возрастанию ID игрока.
	TieBreakPlayerID
)

// Policy - настраиваемая политика ранжирования, а не зашитое правило.
type Policy struct {
	TieBreak TieBreak
	// Dense assigns ranks without gaps after ties: two players tied for 2nd
	// both get rank 2 and the next player gets rank 3. When false, standard
	// competition ranking is used (the next player would get rank 4).
	Dense bool
}

// DefaultPolicy - значения по умолчанию для всех видов турниров.
func DefaultPolicy() Policy {
	return Policy{TieBreak: TieBreakEarliestSequence, Dense: true}
}

// Rank строит снимок лидерборда из записей турнира.
// Вход не модифицируется: сортируется локальная копия.
func Rank(tournamentID int, entries []models.Entry, policy Policy) models.LeaderboardSnapshot {
	ordered := make([]models.Entry, len(entries))
	copy(ordered, entries)

	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.BestScore != b.BestScore {
			return a.BestScore > b.BestScore
		}
		switch policy.TieBreak {
		case TieBreakPlayerID:
			return a.PlayerID < b.PlayerID
		default:
			if a.BestScoreSeq != b.BestScoreSeq {
				return a.BestScoreSeq < b.BestScoreSeq
			}
			// Entries that never scored share seq 0; fall back to player ID
			// so the order stays deterministic.
			return a.PlayerID < b.PlayerID
		}
	})

	rows := make([]models.LeaderboardRow, 0, len(ordered))
	rank := 0
	for i, e := range ordered {
		if i == 0 || e.BestScore != ordered[i-1].BestScore {
			if policy.Dense {
				rank++
			} else {
				rank = i + 1
			}
		}
		rows = append(rows, models.LeaderboardRow{
			Rank:     rank,
			PlayerID: e.PlayerID,
			Score:    e.BestScore,
		})
	}

	return models.LeaderboardSnapshot{
		TournamentID: tournamentID,
		Rows:         rows,
		TotalEntries: len(rows),
		GeneratedAt:  time.Now().UTC(),
	}
}

// TopN возвращает снимок, усечённый до первых n строк.
// TotalEntries сохраняет полный размер, чтобы клиент видел масштаб турнира.
func TopN(snapshot models.LeaderboardSnapshot, n int) models.LeaderboardSnapshot {
	if n <= 0 || n >= len(snapshot.Rows) {
		return snapshot
	}
	trimmed := snapshot
	trimmed.Rows = snapshot.Rows[:n]
	return trimmed
}

// Around находит строку игрока и возвращает её ранг вместе с окном соседних
// строк, чтобы собственная позиция была видна без выгрузки всего лидерборда.
func Around(snapshot models.LeaderboardSnapshot, playerID int, window int) (int, []models.LeaderboardRow, bool) {
	idx := -1
	for i, row := range snapshot.Rows {
		if row.PlayerID == playerID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return 0, nil, false
	}

	lo := idx - window
	if lo < 0 {
		lo = 0
	}
	hi := idx + window + 1
	if hi > len(snapshot.Rows) {
		hi = len(snapshot.Rows)
	}

	rows := make([]models.LeaderboardRow, hi-lo)
	copy(rows, snapshot.Rows[lo:hi])
	return snapshot.Rows[idx].Rank, rows, true
}
