package users

import (
	"context"
	"time"

	"github.com/abhidhakal/cipher-drop/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByResetTokenHash(ctx context.Context, hash string) (*models.User, error)

	// RegisterFailedLogin increments the failure counter and, once it reaches
	// threshold, sets locked_until = lockUntil and clears the counter, all in
	// one statement. It returns the lockout only when this call set it; an
	// older, expired locked_until is reported as nil.
	RegisterFailedLogin(ctx context.Context, id string, threshold int, lockUntil time.Time) (*time.Time, error)
	ResetFailedLogins(ctx context.Context, id string) error

	UpdatePassword(ctx context.Context, id, hash string, changedAt time.Time) error
	// ResetPassword sets the password only while tokenHash is still the
	// user's unexpired reset token at changedAt, consuming it. A token that
	// was already used or has expired returns common.ErrorNotFound.
	ResetPassword(ctx context.Context, id, tokenHash, hash string, changedAt time.Time) error
	SetResetToken(ctx context.Context, id, hash string, expires time.Time) error
	SetMFA(ctx context.Context, id string, secret *string, enabled bool) error

	// AdjustBalance adds delta (cents, may be negative) and returns the new
	// balance. A change that would go below zero returns common.ErrNegativeBalance.
	AdjustBalance(ctx context.Context, id string, delta int64) (int64, error)
}
