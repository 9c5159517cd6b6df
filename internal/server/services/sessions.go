package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/abhidhakal/cipher-drop/internal/common"
	"github.com/abhidhakal/cipher-drop/internal/dbx"
	"github.com/abhidhakal/cipher-drop/internal/logging"
	"github.com/abhidhakal/cipher-drop/internal/server/auth"
	"github.com/abhidhakal/cipher-drop/internal/server/config"
	"github.com/abhidhakal/cipher-drop/internal/server/models"
	"github.com/abhidhakal/cipher-drop/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// SessionTTL is the idle lifetime of a session. Every successful use pushes
// the expiry out by this much again.
const SessionTTL = 2 * time.Hour

const sessionTokenBytes = 32

// IssuedSession is what a client receives after authenticating.
type IssuedSession struct {
	Bearer  string
	Session *models.Session
}

// SessionService issues, validates, refreshes and revokes session records.
type SessionService struct {
	db          dbx.Transactor
	repomanager repomanager.RepositoryManager
	signingKey  []byte
	allowLegacy bool
	logger      logging.Logger
	audit       auditor
	now         clock
}

func NewSessionService(db dbx.Transactor, m repomanager.RepositoryManager, cfg *config.Config,
	logger logging.Logger) *SessionService {
	s := &SessionService{
		db:          db,
		repomanager: m,
		signingKey:  cfg.SessionSigningKey,
		allowLegacy: cfg.AllowLegacySessions,
		logger:      logger,
		now:         time.Now,
	}
	s.audit = auditor{repomanager: m, now: func() time.Time { return s.now() }}
	return s
}

// Issue creates a session record through tx and signs the bearer envelope
// referencing it. Only the hash of the opaque token is persisted.
func (s *SessionService) Issue(ctx context.Context, tx dbx.DBTX, user *models.User,
	meta models.ClientMeta) (*IssuedSession, error) {
	token, err := common.MakeRandHexString(sessionTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("error generating session token: %w", err)
	}

	now := s.now()
	rec := &models.Session{
		UserID:     user.ID,
		TokenHash:  common.HashToken(token),
		ExpiresAt:  now.Add(SessionTTL),
		CreatedAt:  now,
		IP:         meta.IP,
		UserAgent:  meta.UserAgent,
		DeviceName: DeviceName(meta.UserAgent),
	}
	rec, err = s.repomanager.Sessions(tx).Create(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("error creating session: %w", err)
	}

	bearer, err := auth.SignSession(s.signingKey, token, user.ID, string(user.Role), rec.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("error signing session: %w", err)
	}
	return &IssuedSession{Bearer: bearer, Session: rec}, nil
}

// Validate turns a bearer envelope into a SessionContext. Any failure is
// reported as common.ErrorUnauthorized so callers cannot tell a revoked
// session from a forged one.
func (s *SessionService) Validate(ctx context.Context, bearer string, meta models.ClientMeta) (*SessionContext, error) {
	ref, err := auth.ParseSession(s.signingKey, bearer)
	if err != nil {
		return nil, common.ErrorUnauthorized
	}

	switch r := ref.(type) {
	case auth.Legacy:
		if !s.allowLegacy {
			s.logger.Warn(ctx, "legacy session rejected", "user_id", r.UserID)
			return nil, common.ErrorUnauthorized
		}
		return &SessionContext{UserID: r.UserID, Role: models.Role(r.Role), Legacy: true, Client: meta}, nil

	case auth.Modern:
		rec, err := s.repomanager.Sessions(s.db.Conn()).GetByTokenHash(ctx, common.HashToken(r.SessionToken))
		if err != nil {
			if errors.Is(err, common.ErrSessionNotFound) {
				return nil, common.ErrorUnauthorized
			}
			return nil, err
		}
		if !rec.Active(s.now()) || rec.UserID != r.UserID {
			return nil, common.ErrorUnauthorized
		}
		// the role claim may be stale; the user row is authoritative
		user, err := s.repomanager.Users(s.db.Conn()).GetByID(ctx, rec.UserID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return nil, common.ErrorUnauthorized
			}
			return nil, fmt.Errorf("error loading session user: %w", err)
		}
		return &SessionContext{
			SessionID:    rec.ID,
			sessionToken: r.SessionToken,
			UserID:       rec.UserID,
			Role:         user.Role,
			Client:       meta,
		}, nil
	}
	return nil, common.ErrorUnauthorized
}

// Refresh records activity on the session and returns a re-signed bearer
// with the extended expiry. Legacy envelopes have nothing to refresh.
func (s *SessionService) Refresh(ctx context.Context, sc *SessionContext) (string, error) {
	if err := sc.requireRecord(); err != nil {
		return "", err
	}
	now := s.now()
	expires := now.Add(SessionTTL)
	if err := s.repomanager.Sessions(s.db.Conn()).Touch(ctx, sc.SessionID, now, expires); err != nil {
		if errors.Is(err, common.ErrSessionNotFound) {
			return "", common.ErrorUnauthorized
		}
		return "", err
	}
	return auth.SignSession(s.signingKey, sc.sessionToken, sc.UserID, string(sc.Role), expires)
}

// List returns the caller's active sessions, most recently used first.
func (s *SessionService) List(ctx context.Context, sc *SessionContext) ([]*models.Session, error) {
	if err := sc.requireRecord(); err != nil {
		return nil, err
	}
	return s.repomanager.Sessions(s.db.Conn()).ListActive(ctx, sc.UserID, s.now())
}

// Revoke revokes one of the caller's own sessions. Revoking the current
// session is allowed and equivalent to logging out.
func (s *SessionService) Revoke(ctx context.Context, sc *SessionContext, sessionID string) error {
	if err := sc.requireRecord(); err != nil {
		return err
	}
	if _, err := uuid.Parse(sessionID); err != nil {
		return common.ErrSessionNotFound
	}
	return s.db.InTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Sessions(tx).Revoke(ctx, sc.UserID, sessionID); err != nil {
			return err
		}
		return s.audit.record(ctx, tx, models.AuditSessionRevoked, sc.UserID, sc.Client.IP,
			map[string]any{"session_id": sessionID})
	})
}

// RevokeAllExcept revokes every other active session of the caller and
// reports how many were affected.
func (s *SessionService) RevokeAllExcept(ctx context.Context, sc *SessionContext) (int64, error) {
	if err := sc.requireRecord(); err != nil {
		return 0, err
	}
	var n int64
	err := s.db.InTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		n, err = s.repomanager.Sessions(tx).RevokeAllExcept(ctx, sc.UserID, sc.SessionID)
		if err != nil {
			return err
		}
		return s.audit.record(ctx, tx, models.AuditSessionsRevoked, sc.UserID, sc.Client.IP,
			map[string]any{"count": n})
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// DeviceName derives a coarse device label from a User-Agent header.
func DeviceName(userAgent string) string {
	switch {
	case strings.Contains(userAgent, "iPhone"):
		return "iPhone"
	case strings.Contains(userAgent, "Android"):
		return "Android"
	case strings.Contains(userAgent, "Mac"):
		return "Mac"
	case strings.Contains(userAgent, "Windows"):
		return "Windows"
	case strings.Contains(userAgent, "Linux"):
		return "Linux"
	}
	return "Browser"
}
