package drops

import (
	"context"

	"github.com/abhidhakal/cipher-drop/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, d *models.Drop) (*models.Drop, error)
	// GetForUpdate loads the drop and holds its row lock until the
	// surrounding transaction ends.
	GetForUpdate(ctx context.Context, id string) (*models.Drop, error)
	GetMeta(ctx context.Context, id string) (*models.DropMeta, error)
	// MarkPaid moves a PENDING drop to PAID and claims it for receiverID if it
	// has no receiver yet. A drop that is no longer PENDING is a conflict.
	MarkPaid(ctx context.Context, id, receiverID string) error
	Delete(ctx context.Context, id string) error
	ListForUser(ctx context.Context, userID string) ([]*models.DropMeta, error)
}
