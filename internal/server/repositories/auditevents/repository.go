// Package auditevents is the audit sink. Events are appended inside the
// transaction of the mutation they document and are never updated.
package auditevents

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/abhidhakal/cipher-drop/internal/dbx"
	"github.com/abhidhakal/cipher-drop/internal/server/models"
)

type Repository interface {
	Append(ctx context.Context, e *models.AuditEvent) error
	ListBetween(ctx context.Context, from, to time.Time, limit int) ([]*models.AuditEvent, error)
}

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Append(ctx context.Context, e *models.AuditEvent) error {
	meta := e.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("audit metadata: %w", err)
	}

	query := `
		INSERT INTO audit_events (action, actor_id, ip, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	if err := r.db.QueryRowContext(ctx, query, string(e.Action), e.ActorID, e.IP, b, e.CreatedAt).Scan(&e.ID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// ListBetween returns events with from <= created_at < to, oldest first.
func (r *PostgresRepository) ListBetween(ctx context.Context, from, to time.Time, limit int) ([]*models.AuditEvent, error) {
	query := `
		SELECT id, action, actor_id, ip, metadata, created_at
		FROM audit_events
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at
		LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, query, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.AuditEvent
	for rows.Next() {
		var (
			e     models.AuditEvent
			actor *string
			meta  []byte
		)
		if err := rows.Scan(&e.ID, &e.Action, &actor, &e.IP, &meta, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.ActorID = actor
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Metadata); err != nil {
				return nil, fmt.Errorf("audit metadata: %w", err)
			}
		}
		result = append(result, &e)
	}
	return result, rows.Err()
}
