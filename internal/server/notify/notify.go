// Package notify delivers password reset references out of band.
package notify

import (
	"context"
	"time"

	"github.com/abhidhakal/cipher-drop/internal/logging"
)

type Notifier interface {
	SendPasswordReset(ctx context.Context, email, token string, expires time.Time) error
}

// LogNotifier writes the reset reference to the debug log instead of
// sending mail. Development only.
type LogNotifier struct {
	logger logging.Logger
}

func NewLogNotifier(l logging.Logger) *LogNotifier {
	return &LogNotifier{logger: l.With("module", "notify")}
}

func (n *LogNotifier) SendPasswordReset(ctx context.Context, email, token string, expires time.Time) error {
	n.logger.Debug(ctx, "password reset issued", "email", email, "token", token, "expires", expires)
	return nil
}
