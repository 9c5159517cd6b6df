// Package services contains the server-side business logic: the
// authentication state machine, revocable sessions, account management,
// the wallet ledger and the escrow drop flow.
//
// Every mutation runs inside a dbx.Transactor transaction and appends its
// audit event in that same transaction, so an operation and its audit record
// commit or roll back together.
package services

import (
	"context"
	"time"

	"github.com/abhidhakal/cipher-drop/internal/common"
	"github.com/abhidhakal/cipher-drop/internal/dbx"
	"github.com/abhidhakal/cipher-drop/internal/server/models"
	"github.com/abhidhakal/cipher-drop/internal/server/repositories/repomanager"
)

// SessionContext describes the caller of an authenticated operation. It is
// produced by SessionService.Validate and consumed by every other service.
type SessionContext struct {
	SessionID    string
	sessionToken string
	UserID       string
	// Role is informational: reported to clients, not checked by any
	// operation. Legacy envelopes carry it as signed.
	Role   models.Role
	Legacy bool
	Client models.ClientMeta
}

// requireRecord rejects envelopes that have no revocable record behind them.
func (sc *SessionContext) requireRecord() error {
	if sc == nil || sc.Legacy || sc.SessionID == "" {
		return common.ErrLegacySession
	}
	return nil
}

type clock func() time.Time

// auditor appends events through whatever DBTX the caller is using.
type auditor struct {
	repomanager repomanager.RepositoryManager
	now         clock
}

func (a auditor) record(ctx context.Context, db dbx.DBTX, action models.AuditAction, actorID string,
	ip string, metadata map[string]any) error {
	ev := &models.AuditEvent{
		Action:    action,
		IP:        ip,
		Metadata:  metadata,
		CreatedAt: a.now(),
	}
	if actorID != "" {
		ev.ActorID = &actorID
	}
	return a.repomanager.Audit(db).Append(ctx, ev)
}
