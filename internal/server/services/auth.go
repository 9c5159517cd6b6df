package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/abhidhakal/cipher-drop/internal/common"
	"github.com/abhidhakal/cipher-drop/internal/dbx"
	"github.com/abhidhakal/cipher-drop/internal/logging"
	"github.com/abhidhakal/cipher-drop/internal/server/auth"
	"github.com/abhidhakal/cipher-drop/internal/server/captcha"
	"github.com/abhidhakal/cipher-drop/internal/server/config"
	"github.com/abhidhakal/cipher-drop/internal/server/mfa"
	"github.com/abhidhakal/cipher-drop/internal/server/models"
	"github.com/abhidhakal/cipher-drop/internal/server/password"
	"github.com/abhidhakal/cipher-drop/internal/server/ratelimit"
	"github.com/abhidhakal/cipher-drop/internal/server/repositories/repomanager"
)

const (
	LockoutThreshold = 5
	LockoutDuration  = 15 * time.Minute
)

// AuthState is the position of a login attempt in the authentication flow.
type AuthState int

const (
	AwaitingCredentials AuthState = iota
	AwaitingMFA
	Authenticated
)

func (s AuthState) String() string {
	switch s {
	case AwaitingMFA:
		return "awaiting_mfa"
	case Authenticated:
		return "authenticated"
	}
	return "awaiting_credentials"
}

type LoginRequest struct {
	Email        string
	Password     string
	CaptchaToken string
	Client       models.ClientMeta
}

// LoginResult carries either a pending MFA reference (State == AwaitingMFA)
// or an issued session (State == Authenticated).
type LoginResult struct {
	State      AuthState
	PendingRef string
	Session    *IssuedSession
}

// AuthService drives the AwaitingCredentials -> AwaitingMFA -> Authenticated
// flow.
type AuthService struct {
	db          dbx.Transactor
	repomanager repomanager.RepositoryManager
	sessions    *SessionService
	limiter     ratelimit.Checker
	captcha     captcha.Verifier
	logger      logging.Logger
	audit       auditor
	now         clock

	signingKey      []byte
	pendingTTL      time.Duration
	loginLimit      int
	loginWindow     time.Duration
	mfaLimit        int
	mfaWindow       time.Duration
	captchaMinScore float64

	hashPassword func(string) (string, error)
	dummyOnce    sync.Once
	dummyHash    string
}

func NewAuthService(db dbx.Transactor, m repomanager.RepositoryManager, sessions *SessionService,
	limiter ratelimit.Checker, verifier captcha.Verifier, cfg *config.Config, logger logging.Logger) *AuthService {
	s := &AuthService{
		db:              db,
		repomanager:     m,
		sessions:        sessions,
		limiter:         limiter,
		captcha:         verifier,
		logger:          logger,
		now:             time.Now,
		signingKey:      cfg.SessionSigningKey,
		pendingTTL:      cfg.MFAPendingTTL,
		loginLimit:      cfg.LoginRateLimit,
		loginWindow:     cfg.LoginRateWindow,
		mfaLimit:        cfg.MFARateLimit,
		mfaWindow:       cfg.MFARateWindow,
		captchaMinScore: cfg.CaptchaMinScore,
		hashPassword:    password.Hash,
	}
	s.audit = auditor{repomanager: m, now: func() time.Time { return s.now() }}
	return s
}

// Login runs the credential step. On success it returns either an issued
// session or, for MFA-enabled accounts, a pending reference for VerifyMFA.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if err := checkGate(ctx, s.limiter, s.captcha, "login", req.Client.IP, s.loginLimit, s.loginWindow,
		req.CaptchaToken, s.captchaMinScore, s.logger); err != nil {
		return nil, err
	}

	email := normalizeEmail(req.Email)
	user, err := s.repomanager.Users(s.db.Conn()).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			// keep the response time of unknown accounts close to known ones
			password.Verify(req.Password, s.dummy())
			return nil, common.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("error loading user: %w", err)
	}

	now := s.now()
	if user.IsLocked(now) {
		return nil, &common.LockedError{Remaining: user.LockedUntil.Sub(now)}
	}
	if password.CheckExpiry(user.PasswordLastChanged, now) {
		return nil, common.ErrPasswordExpired
	}

	if !password.Verify(req.Password, user.PasswordHash) {
		return nil, s.registerFailure(ctx, user, req.Client)
	}

	var result *LoginResult
	err = s.db.InTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if user.FailedAttempts > 0 || user.LockedUntil != nil {
			if err := s.repomanager.Users(tx).ResetFailedLogins(ctx, user.ID); err != nil {
				return err
			}
		}

		if user.MFAEnabled {
			ref, err := auth.SignPending(s.signingKey, user.ID, now.Add(s.pendingTTL))
			if err != nil {
				return fmt.Errorf("error signing pending reference: %w", err)
			}
			result = &LoginResult{State: AwaitingMFA, PendingRef: ref}
			return nil
		}

		issued, err := s.sessions.Issue(ctx, tx, user, req.Client)
		if err != nil {
			return err
		}
		if err := s.audit.record(ctx, tx, models.AuditLogin, user.ID, req.Client.IP,
			map[string]any{"session_id": issued.Session.ID, "device": issued.Session.DeviceName}); err != nil {
			return err
		}
		result = &LoginResult{State: Authenticated, Session: issued}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "login step passed", "user_id", user.ID, "state", result.State.String())
	return result, nil
}

func (s *AuthService) registerFailure(ctx context.Context, user *models.User, client models.ClientMeta) error {
	err := s.db.InTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		lockedUntil, err := s.repomanager.Users(tx).RegisterFailedLogin(ctx, user.ID, LockoutThreshold,
			s.now().Add(LockoutDuration))
		if err != nil {
			return err
		}
		meta := map[string]any{"email": user.Email}
		if lockedUntil != nil {
			meta["locked_until"] = lockedUntil.UTC().Format(time.RFC3339)
			s.logger.Warn(ctx, "account locked", "user_id", user.ID, "until", *lockedUntil)
		}
		return s.audit.record(ctx, tx, models.AuditFailedLogin, user.ID, client.IP, meta)
	})
	if err != nil {
		return fmt.Errorf("error recording failed login: %w", err)
	}
	return common.ErrInvalidCredentials
}

// VerifyMFA completes a login that stopped in AwaitingMFA. A wrong code
// leaves the pending reference usable until it expires.
func (s *AuthService) VerifyMFA(ctx context.Context, pendingRef, code string, client models.ClientMeta) (*LoginResult, error) {
	userID, err := auth.ParsePending(s.signingKey, pendingRef)
	if err != nil {
		return nil, common.ErrorUnauthorized
	}

	if r := s.limiter.Check("mfa:"+userID, s.mfaLimit, s.mfaWindow); !r.Allowed {
		return nil, common.ErrRateLimited
	}

	user, err := s.repomanager.Users(s.db.Conn()).GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, fmt.Errorf("error loading user: %w", err)
	}
	if !user.MFAEnabled || user.MFASecret == nil {
		return nil, common.ErrorUnauthorized
	}
	if now := s.now(); user.IsLocked(now) {
		return nil, &common.LockedError{Remaining: user.LockedUntil.Sub(now)}
	}

	if !mfa.ValidateAt(*user.MFASecret, code, s.now(), mfa.DefaultWindow) {
		err := s.db.InTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
			return s.audit.record(ctx, tx, models.AuditFailedMFA, user.ID, client.IP, nil)
		})
		if err != nil {
			return nil, fmt.Errorf("error recording failed mfa: %w", err)
		}
		return &LoginResult{State: AwaitingMFA, PendingRef: pendingRef}, common.ErrInvalidMFACode
	}

	var issued *IssuedSession
	err = s.db.InTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		issued, err = s.sessions.Issue(ctx, tx, user, client)
		if err != nil {
			return err
		}
		if err := s.audit.record(ctx, tx, models.AuditMFAVerified, user.ID, client.IP, nil); err != nil {
			return err
		}
		return s.audit.record(ctx, tx, models.AuditLogin, user.ID, client.IP,
			map[string]any{"session_id": issued.Session.ID, "device": issued.Session.DeviceName, "mfa": true})
	})
	if err != nil {
		return nil, err
	}
	return &LoginResult{State: Authenticated, Session: issued}, nil
}

// Logout revokes the caller's current session.
func (s *AuthService) Logout(ctx context.Context, sc *SessionContext) error {
	if err := sc.requireRecord(); err != nil {
		return err
	}
	return s.db.InTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Sessions(tx).Revoke(ctx, sc.UserID, sc.SessionID); err != nil {
			return err
		}
		return s.audit.record(ctx, tx, models.AuditLogout, sc.UserID, sc.Client.IP,
			map[string]any{"session_id": sc.SessionID})
	})
}

func (s *AuthService) dummy() string {
	s.dummyOnce.Do(func() {
		seed, err := common.MakeRandHexString(16)
		if err != nil {
			return
		}
		if h, err := s.hashPassword(seed); err == nil {
			s.dummyHash = h
		}
	})
	return s.dummyHash
}

// checkGate applies the per-IP rate limit and then the CAPTCHA. Both run
// before any credential is looked at.
func checkGate(ctx context.Context, limiter ratelimit.Checker, verifier captcha.Verifier, action, ip string,
	limit int, window time.Duration, token string, minScore float64, logger logging.Logger) error {
	if r := limiter.Check(action+":"+ip, limit, window); !r.Allowed {
		logger.Warn(ctx, "rate limited", "action", action, "ip", ip)
		return common.ErrRateLimited
	}
	res, err := verifier.Verify(ctx, token, action)
	if err != nil {
		logger.Error(ctx, "captcha verification error", "action", action, "error", err)
		return common.ErrCaptchaFailed
	}
	if !res.Success || res.Score < minScore {
		return common.ErrCaptchaFailed
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
