// Package sessions stores the revocable server-side session records.
package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/abhidhakal/cipher-drop/internal/common"
	"github.com/abhidhakal/cipher-drop/internal/dbx"
	"github.com/abhidhakal/cipher-drop/internal/server/models"
)

const sessionColumns = `id, user_id, token_hash, expires_at, revoked, created_at, last_active, ip, user_agent, device_name`

// PostgresRepository implements session storage over dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, s *models.Session) (*models.Session, error) {
	query := `
		INSERT INTO sessions (user_id, token_hash, expires_at, created_at, last_active, ip, user_agent, device_name)
		VALUES ($1, $2, $3, $4, $4, $5, $6, $7)
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query,
		s.UserID, s.TokenHash, s.ExpiresAt, s.CreatedAt, s.IP, s.UserAgent, s.DeviceName).Scan(&s.ID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	s.LastActive = s.CreatedAt
	return s, nil
}

// GetByTokenHash returns the record regardless of its state; callers decide
// whether it is still active.
func (r *PostgresRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE token_hash = $1`

	s, err := scanSession(r.db.QueryRowContext(ctx, query, tokenHash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrSessionNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

// Touch refreshes an unrevoked session. A revoked row is left untouched and
// reported as not found.
func (r *PostgresRepository) Touch(ctx context.Context, id string, lastActive, expiresAt time.Time) error {
	query := `
		UPDATE sessions SET last_active = $2, expires_at = $3
		WHERE id = $1 AND NOT revoked
	`
	res, err := r.db.ExecContext(ctx, query, id, lastActive, expiresAt)
	return oneRow(res, err)
}

// Revoke flips the tombstone on a session owned by userID.
func (r *PostgresRepository) Revoke(ctx context.Context, userID, id string) error {
	query := `UPDATE sessions SET revoked = TRUE WHERE id = $1 AND user_id = $2`
	res, err := r.db.ExecContext(ctx, query, id, userID)
	return oneRow(res, err)
}

func (r *PostgresRepository) RevokeAllExcept(ctx context.Context, userID, exceptID string) (int64, error) {
	query := `UPDATE sessions SET revoked = TRUE WHERE user_id = $1 AND id <> $2 AND NOT revoked`
	res, err := r.db.ExecContext(ctx, query, userID, exceptID)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return res.RowsAffected()
}

func (r *PostgresRepository) RevokeAll(ctx context.Context, userID string) (int64, error) {
	query := `UPDATE sessions SET revoked = TRUE WHERE user_id = $1 AND NOT revoked`
	res, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return res.RowsAffected()
}

func (r *PostgresRepository) ListActive(ctx context.Context, userID string, now time.Time) ([]*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions
		WHERE user_id = $1 AND NOT revoked AND expires_at > $2
		ORDER BY last_active DESC`

	rows, err := r.db.QueryContext(ctx, query, userID, now)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return result, nil
}

func oneRow(res sql.Result, err error) error {
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrSessionNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var s models.Session
	if err := row.Scan(&s.ID, &s.UserID, &s.TokenHash, &s.ExpiresAt, &s.Revoked, &s.CreatedAt,
		&s.LastActive, &s.IP, &s.UserAgent, &s.DeviceName); err != nil {
		return nil, err
	}
	return &s, nil
}
