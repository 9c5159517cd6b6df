// Package users provides the PostgreSQL credential store.
package users

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

const userColumns = `id, email, password_hash, failed_attempts, locked_until, password_last_changed,
		mfa_secret, mfa_enabled, balance_cents, role, reset_token_hash, reset_token_expires, created_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts user. A duplicate email yields common.ErrorAlreadyExists.
func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query :=
		`INSERT INTO users (email, password_hash, password_last_changed, role)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (email) DO NOTHING
		 RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		user.Email, user.PasswordHash, user.PasswordLastChanged, string(user.Role)).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (r *PostgresRepository) GetByResetTokenHash(ctx context.Context, hash string) (*models.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE reset_token_hash = $1`, hash)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg any) (*models.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}

func (r *PostgresRepository) RegisterFailedLogin(ctx context.Context, id string, threshold int, lockUntil time.Time) (*time.Time, error) {
	query :=
		`UPDATE users SET
		   failed_attempts = CASE WHEN failed_attempts + 1 >= $2 THEN 0 ELSE failed_attempts + 1 END,
		   locked_until = CASE WHEN failed_attempts + 1 >= $2 THEN $3 ELSE locked_until END
		 WHERE id = $1
		 RETURNING CASE WHEN failed_attempts = 0 THEN locked_until END`

	var locked sql.NullTime
	if err := r.db.QueryRowContext(ctx, query, id, threshold, lockUntil).Scan(&locked); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if !locked.Valid {
		return nil, nil
	}
	return &locked.Time, nil
}

func (r *PostgresRepository) ResetFailedLogins(ctx context.Context, id string) error {
	query := `UPDATE users SET failed_attempts = 0, locked_until = NULL WHERE id = $1`
	return r.execOne(ctx, query, id)
}

// UpdatePassword also consumes any pending reset token and clears lockout.
func (r *PostgresRepository) UpdatePassword(ctx context.Context, id, hash string, changedAt time.Time) error {
	query :=
		`UPDATE users SET
		   password_hash = $2,
		   password_last_changed = $3,
		   reset_token_hash = NULL,
		   reset_token_expires = NULL,
		   failed_attempts = 0,
		   locked_until = NULL
		 WHERE id = $1`
	return r.execOne(ctx, query, id, hash, changedAt)
}

func (r *PostgresRepository) ResetPassword(ctx context.Context, id, tokenHash, hash string, changedAt time.Time) error {
	query :=
		`UPDATE users SET
		   password_hash = $2,
		   password_last_changed = $3,
		   reset_token_hash = NULL,
		   reset_token_expires = NULL,
		   failed_attempts = 0,
		   locked_until = NULL
		 WHERE id = $1 AND reset_token_hash = $4 AND reset_token_expires > $3`
	return r.execOne(ctx, query, id, hash, changedAt, tokenHash)
}

func (r *PostgresRepository) SetResetToken(ctx context.Context, id, hash string, expires time.Time) error {
	query := `UPDATE users SET reset_token_hash = $2, reset_token_expires = $3 WHERE id = $1`
	return r.execOne(ctx, query, id, hash, expires)
}

func (r *PostgresRepository) SetMFA(ctx context.Context, id string, secret *string, enabled bool) error {
	query := `UPDATE users SET mfa_secret = $2, mfa_enabled = $3 WHERE id = $1`
	return r.execOne(ctx, query, id, secret, enabled)
}

func (r *PostgresRepository) AdjustBalance(ctx context.Context, id string, delta int64) (int64, error) {
	query :=
		`UPDATE users SET balance_cents = balance_cents + $2
		 WHERE id = $1 AND balance_cents + $2 >= 0
		 RETURNING balance_cents`

	var balance int64
	if err := r.db.QueryRowContext(ctx, query, id, delta).Scan(&balance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrNegativeBalance
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return balance, nil
}

func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u            models.User
		role         string
		lockedUntil  sql.NullTime
		mfaSecret    sql.NullString
		resetHash    sql.NullString
		resetExpires sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FailedAttempts, &lockedUntil, &u.PasswordLastChanged,
		&mfaSecret, &u.MFAEnabled, &u.BalanceCents, &role, &resetHash, &resetExpires, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	u.Role = models.Role(role)
	if lockedUntil.Valid {
		u.LockedUntil = &lockedUntil.Time
	}
	if mfaSecret.Valid {
		u.MFASecret = &mfaSecret.String
	}
	if resetHash.Valid {
		u.ResetTokenHash = &resetHash.String
	}
	if resetExpires.Valid {
		u.ResetTokenExpires = &resetExpires.Time
	}
	return &u, nil
}
