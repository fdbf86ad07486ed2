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
	ErrPayoutNotFound = errors.New("payout not found")
	// ErrAlreadySettled means a settlement row already exists for the
	// tournament. Expected on retried sweeps; callers treat it as a no-op.
	ErrAlreadySettled = errors.New("tournament already settled")
)

type PayoutRepository interface {
	// RecordPayouts writes the settlement marker and all payouts in one
	// transaction. The primary key on settlements(tournament_id) is what
	// makes settlement idempotent at the storage layer.
	RecordPayouts(ctx context.Context, tournamentID int, payouts []models.Payout) error
	UpdateStatus(ctx context.Context, payoutID string, status models.PayoutStatus) error
	ListByTournament(ctx context.Context, tournamentID int) ([]models.Payout, error)
}

type postgresPayoutRepository struct {
	db *sql.DB
}

func NewPostgresPayoutRepository(db *sql.DB) PayoutRepository {
	return &postgresPayoutRepository{db: db}
}

func (r *postgresPayoutRepository) RecordPayouts(ctx context.Context, tournamentID int, payouts []models.Payout) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("RecordPayouts failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO settlements (tournament_id) VALUES ($1)`,
		tournamentID,
	); err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			err = ErrAlreadySettled
		}
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO payouts (id, tournament_id, rank, player_id, amount, status)
		VALUES ($1, $2, $3, $4, $5, $6)`)
	if err != nil {
		return fmt.Errorf("RecordPayouts failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, p := range payouts {
		if _, err = stmt.ExecContext(ctx,
			p.ID, p.TournamentID, p.Rank, p.PlayerID, p.Amount, p.Status,
		); err != nil {
			return fmt.Errorf("RecordPayouts failed for rank %d: %w", p.Rank, err)
		}
	}
	return nil
}

func (r *postgresPayoutRepository) UpdateStatus(ctx context.Context, payoutID string, status models.PayoutStatus) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE payouts SET status = $1 WHERE id = $2`,
		status, payoutID,
	)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrPayoutNotFound)
}

func (r *postgresPayoutRepository) ListByTournament(ctx context.Context, tournamentID int) ([]models.Payout, error) {
	query := `
		SELECT id, tournament_id, rank, player_id, amount, status, created_at
		FROM payouts
		WHERE tournament_id = $1
		ORDER BY rank ASC`

	rows, err := r.db.QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payouts := make([]models.Payout, 0)
	for rows.Next() {
		var p models.Payout
		if scanErr := rows.Scan(
			&p.ID, &p.TournamentID, &p.Rank, &p.PlayerID, &p.Amount, &p.Status, &p.CreatedAt,
		); scanErr != nil {
			return nil, scanErr
		}
		payouts = append(payouts, p)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return payouts, nil
}
