// Package drops persists encrypted drops and their escrow state.
package drops

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/abhidhakal/cipher-drop/internal/common"
	"github.com/abhidhakal/cipher-drop/internal/dbx"
	"github.com/abhidhakal/cipher-drop/internal/server/models"
)

var ErrNotPending = errors.New("drop is not pending")

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, d *models.Drop) (*models.Drop, error) {
	query := `
		INSERT INTO drops (title, ciphertext, nonce, tag, price_cents, sender_id, receiver_id, status, one_time_view)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		d.Title, d.Ciphertext, d.Nonce, d.Tag, d.PriceCents, d.SenderID, d.ReceiverID, string(d.Status), d.OneTimeView,
	).Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return d, nil
}

func (r *PostgresRepository) GetForUpdate(ctx context.Context, id string) (*models.Drop, error) {
	query := `
		SELECT id, title, ciphertext, nonce, tag, price_cents, sender_id, receiver_id, status, one_time_view, created_at
		FROM drops WHERE id = $1
		FOR UPDATE
	`
	var (
		d        models.Drop
		receiver sql.NullString
		status   string
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(&d.ID, &d.Title, &d.Ciphertext, &d.Nonce, &d.Tag,
		&d.PriceCents, &d.SenderID, &receiver, &status, &d.OneTimeView, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrDropNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	d.Status = models.DropStatus(status)
	if receiver.Valid {
		d.ReceiverID = &receiver.String
	}
	return &d, nil
}

const metaSelect = `
	SELECT d.id, d.title, d.price_cents, d.status, u.email, d.receiver_id, d.one_time_view, d.created_at
	FROM drops d JOIN users u ON u.id = d.sender_id
`

func (r *PostgresRepository) GetMeta(ctx context.Context, id string) (*models.DropMeta, error) {
	m, err := scanMeta(r.db.QueryRowContext(ctx, metaSelect+` WHERE d.id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrDropNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return m, nil
}

func (r *PostgresRepository) MarkPaid(ctx context.Context, id, receiverID string) error {
	query := `
		UPDATE drops SET status = 'PAID', receiver_id = COALESCE(receiver_id, $2)
		WHERE id = $1 AND status = 'PENDING'
	`
	res, err := r.db.ExecContext(ctx, query, id, receiverID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n != 1 {
		return ErrNotPending
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM drops WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrDropNotFound
	}
	return nil
}

// ListForUser returns drops sent or received by userID, newest first.
func (r *PostgresRepository) ListForUser(ctx context.Context, userID string) ([]*models.DropMeta, error) {
	rows, err := r.db.QueryContext(ctx,
		metaSelect+` WHERE d.sender_id = $1 OR d.receiver_id = $1 ORDER BY d.created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to select drops: %w", err)
	}
	defer rows.Close()

	var result []*models.DropMeta
	for rows.Next() {
		m, err := scanMeta(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMeta(row rowScanner) (*models.DropMeta, error) {
	var (
		m        models.DropMeta
		status   string
		receiver sql.NullString
	)
	if err := row.Scan(&m.ID, &m.Title, &m.PriceCents, &status, &m.SenderEmail, &receiver,
		&m.OneTimeView, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.Status = models.DropStatus(status)
	if receiver.Valid {
		m.ReceiverID = &receiver.String
	}
	return &m, nil
}
