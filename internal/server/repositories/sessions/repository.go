package sessions

import (
	"context"
	"time"

	"github.com/abhidhakal/cipher-drop/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, s *models.Session) (*models.Session, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error)
	Touch(ctx context.Context, id string, lastActive, expiresAt time.Time) error
	Revoke(ctx context.Context, userID, id string) error
	RevokeAllExcept(ctx context.Context, userID, exceptID string) (int64, error)
	RevokeAll(ctx context.Context, userID string) (int64, error)
	ListActive(ctx context.Context, userID string, now time.Time) ([]*models.Session, error)
}
