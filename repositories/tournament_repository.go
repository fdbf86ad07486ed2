package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/yufr007/seacaster-sub001/models"
)

var (
	ErrTournamentNotFound     = errors.New("tournament not found")
	ErrTournamentNameConflict = errors.New("tournament name conflict")
	// ErrStaleTransition means the tournament was not in the expected status.
	// Expected under concurrent sweeps; callers treat it as a no-op.
	ErrStaleTransition = errors.New("stale tournament status transition")
)

type ListTournamentsFilter struct {
	Status *models.TournamentStatus
	Kind   *models.TournamentKind
	Limit  int
	Offset int
}

type TournamentRepository interface {
	Create(ctx context.Context, tournament *models.Tournament) error
	GetByID(ctx context.Context, id int) (*models.Tournament, error)
	List(ctx context.Context, filter ListTournamentsFilter) ([]models.Tournament, error)
	// TransitionStatus applies an optimistic compare-and-set on status.
	// Returns ErrStaleTransition if the current status differs from `from`.
	TransitionStatus(ctx context.Context, id int, from, to models.TournamentStatus) error
	// ListDueForTransition returns tournaments whose status lags the clock:
	// open past start_time, or live past end_time.
	ListDueForTransition(ctx context.Context, now time.Time) ([]*models.Tournament, error)
}

type postgresTournamentRepository struct {
	db *sql.DB
}

func NewPostgresTournamentRepository(db *sql.DB) TournamentRepository {
	return &postgresTournamentRepository{db: db}
}

func (r *postgresTournamentRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const tournamentColumns = `
	id, name, kind, entry_fee, prize_pool, house_cut_percent,
	capacity, entry_count, start_time, end_time, status, scoring_mode,
	payout_curve, last_sequence, created_at`

func scanTournament(rowScanner interface{ Scan(...interface{}) error }) (*models.Tournament, error) {
	t := &models.Tournament{}
	err := rowScanner.Scan(
		&t.ID, &t.Name, &t.Kind, &t.EntryFee, &t.PrizePool, &t.HouseCutPercent,
		&t.Capacity, &t.EntryCount, &t.StartTime, &t.EndTime, &t.Status, &t.ScoringMode,
		pq.Array(&t.PayoutCurve), &t.LastSequence, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}
	return t, nil
}

func (r *postgresTournamentRepository) Create(ctx context.Context, t *models.Tournament) error {
	executor := r.getExecutor(nil)
	query := `
		INSERT INTO tournaments (
			name, kind, entry_fee, prize_pool, house_cut_percent,
			capacity, start_time, end_time, status, scoring_mode, payout_curve
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, entry_count, last_sequence, created_at`

	err := executor.QueryRowContext(ctx, query,
		t.Name, t.Kind, t.EntryFee, t.PrizePool, t.HouseCutPercent,
		t.Capacity, t.StartTime, t.EndTime, t.Status, t.ScoringMode, pq.Array(t.PayoutCurve),
	).Scan(&t.ID, &t.EntryCount, &t.LastSequence, &t.CreatedAt)

	return r.handleTournamentError(err)
}

func (r *postgresTournamentRepository) GetByID(ctx context.Context, id int) (*models.Tournament, error) {
	executor := r.getExecutor(nil)
	query := `SELECT` + tournamentColumns + ` FROM tournaments WHERE id = $1`
	return scanTournament(executor.QueryRowContext(ctx, query, id))
}

func (r *postgresTournamentRepository) List(ctx context.Context, filter ListTournamentsFilter) ([]models.Tournament, error) {
	executor := r.getExecutor(nil)
	query := `SELECT` + tournamentColumns + ` FROM tournaments WHERE 1=1`

	args := []interface{}{}
	argID := 1

	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argID)
		args = append(args, *filter.Status)
		argID++
	}
	if filter.Kind != nil {
		query += fmt.Sprintf(" AND kind = $%d", argID)
		args = append(args, *filter.Kind)
		argID++
	}

	query += " ORDER BY start_time DESC, created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argID)
		args = append(args, filter.Limit)
		argID++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argID)
		args = append(args, filter.Offset)
	}

	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tournaments := make([]models.Tournament, 0)
	for rows.Next() {
		t, scanErr := scanTournament(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		tournaments = append(tournaments, *t)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return tournaments, nil
}

func (r *postgresTournamentRepository) TransitionStatus(ctx context.Context, id int, from, to models.TournamentStatus) error {
	executor := r.getExecutor(nil)
	query := `UPDATE tournaments SET status = $1 WHERE id = $2 AND status = $3`
	result, err := executor.ExecContext(ctx, query, to, id, from)
	if err != nil {
		return r.handleTournamentError(err)
	}
	// 0 rows means either the tournament is gone or someone won the race.
	// The tournament is never deleted, so it is the race.
	return checkAffectedRows(result, ErrStaleTransition)
}

func (r *postgresTournamentRepository) ListDueForTransition(ctx context.Context, now time.Time) ([]*models.Tournament, error) {
	executor := r.getExecutor(nil)
	query := `
		SELECT` + tournamentColumns + `
		FROM tournaments
		WHERE (status = $1 AND start_time <= $3)
		   OR (status = $2 AND end_time <= $3)`

	rows, err := executor.QueryContext(ctx, query, models.StatusOpen, models.StatusLive, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query tournaments due for transition: %w", err)
	}
	defer rows.Close()

	var tournaments []*models.Tournament
	for rows.Next() {
		t, scanErr := scanTournament(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan tournament due for transition: %w", scanErr)
		}
		tournaments = append(tournaments, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during tournament rows iteration: %w", err)
	}
	return tournaments, nil
}

func (r *postgresTournamentRepository) handleTournamentError(err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := err.(*pq.Error); ok {
		if pqErr.Code == "23505" && pqErr.Constraint == "tournaments_name_key" {
			return ErrTournamentNameConflict
		}
	}
	return err
}
