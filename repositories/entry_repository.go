package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/yufr007/seacaster-sub001/models"
)

var (
	ErrEntryNotFound     = errors.New("entry not found")
	ErrAlreadyEntered    = errors.New("player already entered this tournament")
	ErrCapacityExceeded  = errors.New("tournament capacity exceeded")
	ErrTournamentNotOpen = errors.New("tournament is not open for entries")
)

type EntryRepository interface {
	// CreateEntry admits a player inside a single transaction: the tournament
	// row is locked, status and capacity are checked, the entry is inserted
	// and entry_count is bumped. No partial state survives a failure.
	CreateEntry(ctx context.Context, tournamentID, playerID int, method models.EntryMethod) (*models.Entry, error)
	GetByTournamentAndPlayer(ctx context.Context, tournamentID, playerID int) (*models.Entry, error)
	ListByTournament(ctx context.Context, tournamentID int) ([]models.Entry, error)
}

type postgresEntryRepository struct {
	db *sql.DB
}

func NewPostgresEntryRepository(db *sql.DB) EntryRepository {
	return &postgresEntryRepository{db: db}
}

func (r *postgresEntryRepository) CreateEntry(ctx context.Context, tournamentID, playerID int, method models.EntryMethod) (entry *models.Entry, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("CreateEntry failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	// Блокируем строку турнира: параллельные входы на один турнир
	// сериализуются здесь, поэтому entry_count не обгонит capacity.
	var status models.TournamentStatus
	var capacity, entryCount int
	row := tx.QueryRowContext(ctx,
		`SELECT status, capacity, entry_count FROM tournaments WHERE id = $1 FOR UPDATE`,
		tournamentID,
	)
	if err = row.Scan(&status, &capacity, &entryCount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrTournamentNotFound
		}
		return nil, err
	}

	if status != models.StatusOpen {
		err = ErrTournamentNotOpen
		return nil, err
	}
	if entryCount >= capacity {
		err = ErrCapacityExceeded
		return nil, err
	}

	entry = &models.Entry{
		TournamentID: tournamentID,
		PlayerID:     playerID,
		EntryMethod:  method,
	}
	err = tx.QueryRowContext(ctx,
		`INSERT INTO entries (tournament_id, player_id, entry_method)
		 VALUES ($1, $2, $3)
		 RETURNING id, entered_at, best_score, best_score_seq`,
		tournamentID, playerID, method,
	).Scan(&entry.ID, &entry.EnteredAt, &entry.BestScore, &entry.BestScoreSeq)
	if err != nil {
		return nil, r.handleEntryError(err)
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE tournaments SET entry_count = entry_count + 1 WHERE id = $1`,
		tournamentID,
	); err != nil {
		return nil, fmt.Errorf("failed to increment entry count for tournament %d: %w", tournamentID, err)
	}

	return entry, nil
}

func (r *postgresEntryRepository) GetByTournamentAndPlayer(ctx context.Context, tournamentID, playerID int) (*models.Entry, error) {
	query := `
		SELECT id, tournament_id, player_id, entry_method, entered_at, best_score, best_score_seq
		FROM entries
		WHERE tournament_id = $1 AND player_id = $2`
	return scanEntry(r.db.QueryRowContext(ctx, query, tournamentID, playerID))
}

func (r *postgresEntryRepository) ListByTournament(ctx context.Context, tournamentID int) ([]models.Entry, error) {
	query := `
		SELECT id, tournament_id, player_id, entry_method, entered_at, best_score, best_score_seq
		FROM entries
		WHERE tournament_id = $1
		ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]models.Entry, 0)
	for rows.Next() {
		e, scanErr := scanEntry(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		entries = append(entries, *e)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func scanEntry(rowScanner interface{ Scan(...interface{}) error }) (*models.Entry, error) {
	var e models.Entry
	err := rowScanner.Scan(
		&e.ID, &e.TournamentID, &e.PlayerID, &e.EntryMethod, &e.EnteredAt,
		&e.BestScore, &e.BestScoreSeq,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}
	return &e, nil
}

func (r *postgresEntryRepository) handleEntryError(err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := err.(*pq.Error); ok {
		switch pqErr.Code {
		case "23505":
			if pqErr.Constraint == "entries_tournament_id_player_id_key" {
				return ErrAlreadyEntered
			}
		case "23503":
			if pqErr.Constraint == "entries_tournament_id_fkey" {
				return ErrTournamentNotFound
			}
		}
	}
	return err
}
