// Package passwordhistory stores the append-only trail of previous password
// hashes per user.
package passwordhistory

import (
	"context"
	"fmt"

	"github.com/abhidhakal/cipher-drop/internal/dbx"
)

type Repository interface {
	Append(ctx context.Context, userID, hash string) error
	Recent(ctx context.Context, userID string, n int) ([]string, error)
	Prune(ctx context.Context, userID string, keep int) (int64, error)
}

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Append(ctx context.Context, userID, hash string) error {
	query := `INSERT INTO password_history (user_id, password_hash) VALUES ($1, $2)`
	if _, err := r.db.ExecContext(ctx, query, userID, hash); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Recent returns up to n hashes, newest first.
func (r *PostgresRepository) Recent(ctx context.Context, userID string, n int) ([]string, error) {
	query := `
		SELECT password_hash FROM password_history
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, userID, n)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		hashes = append(hashes, h)
	}
	return hashes, rows.Err()
}

// Prune deletes all but the newest keep rows for userID.
func (r *PostgresRepository) Prune(ctx context.Context, userID string, keep int) (int64, error) {
	query := `
		DELETE FROM password_history
		WHERE user_id = $1 AND id NOT IN (
			SELECT id FROM password_history WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2
		)
	`
	res, err := r.db.ExecContext(ctx, query, userID, keep)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return res.RowsAffected()
}
