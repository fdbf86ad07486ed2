package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/yufr007/seacaster-sub001/models"
)

var (
	ErrTournamentNotLive = errors.New("tournament is not live")
	ErrNoSuchEntry       = errors.New("player has no entry in this tournament")
)

type ScoreRepository interface {
	// AppendScore appends a score event and folds it into the player's entry
	// in one transaction. The sequence number comes from the tournament's
	// last_sequence counter, incremented under the row lock, so concurrent
	// submissions for one tournament serialize here and no two events share
	// a sequence number. An event without its entry update (or vice versa)
	// cannot be committed.
	AppendScore(ctx context.Context, tournamentID, playerID int, score float64, submittedAt time.Time) (*models.ScoreEvent, error)
	ListByTournament(ctx context.Context, tournamentID int, limit int) ([]models.ScoreEvent, error)
}

type postgresScoreRepository struct {
	db *sql.DB
}

func NewPostgresScoreRepository(db *sql.DB) ScoreRepository {
	return &postgresScoreRepository{db: db}
}

func (r *postgresScoreRepository) AppendScore(ctx context.Context, tournamentID, playerID int, score float64, submittedAt time.Time) (event *models.ScoreEvent, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("AppendScore failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	var status models.TournamentStatus
	var scoringMode models.ScoringMode
	var seq int64
	row := tx.QueryRowContext(ctx,
		`SELECT status, scoring_mode, last_sequence FROM tournaments WHERE id = $1 FOR UPDATE`,
		tournamentID,
	)
	if err = row.Scan(&status, &scoringMode, &seq); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrTournamentNotFound
		}
		return nil, err
	}

	if status != models.StatusLive {
		err = ErrTournamentNotLive
		return nil, err
	}

	// Участник должен существовать до записи события.
	var entryID int
	if err = tx.QueryRowContext(ctx,
		`SELECT id FROM entries WHERE tournament_id = $1 AND player_id = $2`,
		tournamentID, playerID,
	).Scan(&entryID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrNoSuchEntry
		}
		return nil, err
	}

	seq++
	if _, err = tx.ExecContext(ctx,
		`UPDATE tournaments SET last_sequence = $1 WHERE id = $2`,
		seq, tournamentID,
	); err != nil {
		return nil, fmt.Errorf("failed to advance sequence for tournament %d: %w", tournamentID, err)
	}

	event = &models.ScoreEvent{
		TournamentID:   tournamentID,
		PlayerID:       playerID,
		Score:          score,
		SubmittedAt:    submittedAt,
		SequenceNumber: seq,
	}
	if err = tx.QueryRowContext(ctx,
		`INSERT INTO score_events (tournament_id, player_id, score, submitted_at, sequence_number)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		tournamentID, playerID, score, submittedAt, seq,
	).Scan(&event.ID); err != nil {
		return nil, fmt.Errorf("failed to append score event: %w", err)
	}

	switch scoringMode {
	case models.ScoringCumulative:
		_, err = tx.ExecContext(ctx,
			`UPDATE entries SET best_score = best_score + $1, best_score_seq = $2 WHERE id = $3`,
			score, seq, entryID,
		)
	default:
		// best_score only moves up; the tie-break sequence is stamped on the
		// event that produced the improvement.
		_, err = tx.ExecContext(ctx,
			`UPDATE entries SET best_score = $1, best_score_seq = $2 WHERE id = $3 AND best_score < $1`,
			score, seq, entryID,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fold score into entry %d: %w", entryID, err)
	}

	return event, nil
}

func (r *postgresScoreRepository) ListByTournament(ctx context.Context, tournamentID int, limit int) ([]models.ScoreEvent, error) {
	query := `
		SELECT id, tournament_id, player_id, score, submitted_at, sequence_number
		FROM score_events
		WHERE tournament_id = $1
		ORDER BY sequence_number ASC`
	args := []interface{}{tournamentID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]models.ScoreEvent, 0)
	for rows.Next() {
		var e models.ScoreEvent
		if scanErr := rows.Scan(
			&e.ID, &e.TournamentID, &e.PlayerID, &e.Score, &e.SubmittedAt, &e.SequenceNumber,
		); scanErr != nil {
			return nil, scanErr
		}
		events = append(events, e)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}
