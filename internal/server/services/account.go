package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/abhidhakal/cipher-drop/internal/common"
	"github.com/abhidhakal/cipher-drop/internal/dbx"
	"github.com/abhidhakal/cipher-drop/internal/logging"
	"github.com/abhidhakal/cipher-drop/internal/server/captcha"
	"github.com/abhidhakal/cipher-drop/internal/server/config"
	"github.com/abhidhakal/cipher-drop/internal/server/mfa"
	"github.com/abhidhakal/cipher-drop/internal/server/models"
	"github.com/abhidhakal/cipher-drop/internal/server/notify"
	"github.com/abhidhakal/cipher-drop/internal/server/password"
	"github.com/abhidhakal/cipher-drop/internal/server/ratelimit"
	"github.com/abhidhakal/cipher-drop/internal/server/repositories/repomanager"
)

const (
	MFAIssuer       = "CipherDrop"
	resetTokenBytes = 32
	maxEmailLength  = 254
)

type RegisterRequest struct {
	Email        string
	Password     string
	CaptchaToken string
	Client       models.ClientMeta
}

// Enrollment is handed to the client to configure an authenticator app.
type Enrollment struct {
	Secret          string
	ProvisioningURI string
}

// AccountService manages credentials and second factors of existing users.
type AccountService struct {
	db          dbx.Transactor
	repomanager repomanager.RepositoryManager
	limiter     ratelimit.Checker
	captcha     captcha.Verifier
	notifier    notify.Notifier
	logger      logging.Logger
	audit       auditor
	now         clock

	resetTTL        time.Duration
	rateLimit       int
	rateWindow      time.Duration
	captchaMinScore float64

	hashPassword func(string) (string, error)
}

func NewAccountService(db dbx.Transactor, m repomanager.RepositoryManager,
	limiter ratelimit.Checker, verifier captcha.Verifier, notifier notify.Notifier, cfg *config.Config,
	logger logging.Logger) *AccountService {
	s := &AccountService{
		db:              db,
		repomanager:     m,
		limiter:         limiter,
		captcha:         verifier,
		notifier:        notifier,
		logger:          logger,
		now:             time.Now,
		resetTTL:        cfg.ResetTokenTTL,
		rateLimit:       cfg.LoginRateLimit,
		rateWindow:      cfg.LoginRateWindow,
		captchaMinScore: cfg.CaptchaMinScore,
		hashPassword:    password.Hash,
	}
	s.audit = auditor{repomanager: m, now: func() time.Time { return s.now() }}
	return s
}

// Register creates a USER account with a zero balance and seeds the password
// history with the initial hash.
func (s *AccountService) Register(ctx context.Context, req RegisterRequest) (*models.User, error) {
	if err := checkGate(ctx, s.limiter, s.captcha, "register", req.Client.IP, s.rateLimit, s.rateWindow,
		req.CaptchaToken, s.captchaMinScore, s.logger); err != nil {
		return nil, err
	}

	email, err := validateEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if err := password.CheckComplexity(req.Password); err != nil {
		return nil, err
	}
	hash, err := s.hashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("error hashing password: %w", err)
	}

	var created *models.User
	err = s.db.InTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		now := s.now()
		u, err := s.repomanager.Users(tx).Create(ctx, &models.User{
			Email:               email,
			PasswordHash:        hash,
			PasswordLastChanged: now,
			Role:                models.RoleUser,
			CreatedAt:           now,
		})
		if err != nil {
			return err
		}
		if err := password.NewPolicy(s.repomanager.PasswordHistory(tx)).RecordHistory(ctx, u.ID, hash); err != nil {
			return err
		}
		created = u
		return s.audit.record(ctx, tx, models.AuditRegister, u.ID, req.Client.IP, map[string]any{"email": email})
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "user registered", "user_id", created.ID)
	return created, nil
}

// ChangePassword verifies the current password, enforces complexity and
// reuse rules, and revokes every other session of the caller.
func (s *AccountService) ChangePassword(ctx context.Context, sc *SessionContext, current, next string) error {
	if err := sc.requireRecord(); err != nil {
		return err
	}
	user, err := s.repomanager.Users(s.db.Conn()).GetByID(ctx, sc.UserID)
	if err != nil {
		return fmt.Errorf("error loading user: %w", err)
	}
	if !password.Verify(current, user.PasswordHash) {
		return common.ErrInvalidCredentials
	}
	hash, err := s.newPasswordHash(ctx, user.ID, next)
	if err != nil {
		return err
	}

	return s.db.InTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.storePassword(ctx, tx, user.ID, hash); err != nil {
			return err
		}
		if _, err := s.repomanager.Sessions(tx).RevokeAllExcept(ctx, user.ID, sc.SessionID); err != nil {
			return err
		}
		return s.audit.record(ctx, tx, models.AuditPasswordChanged, user.ID, sc.Client.IP, nil)
	})
}

// RequestPasswordReset mails a single-use reset token when the address
// belongs to an account. The outcome is the same whether or not it does.
func (s *AccountService) RequestPasswordReset(ctx context.Context, email string, client models.ClientMeta) error {
	if r := s.limiter.Check("reset:"+client.IP, s.rateLimit, s.rateWindow); !r.Allowed {
		return common.ErrRateLimited
	}

	user, err := s.repomanager.Users(s.db.Conn()).GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		return fmt.Errorf("error loading user: %w", err)
	}

	token, err := common.MakeRandHexString(resetTokenBytes)
	if err != nil {
		return fmt.Errorf("error generating reset token: %w", err)
	}
	expires := s.now().Add(s.resetTTL)

	err = s.db.InTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Users(tx).SetResetToken(ctx, user.ID, common.HashToken(token), expires); err != nil {
			return err
		}
		return s.audit.record(ctx, tx, models.AuditPasswordResetRequest, user.ID, client.IP, nil)
	})
	if err != nil {
		return err
	}

	if err := s.notifier.SendPasswordReset(ctx, user.Email, token, expires); err != nil {
		s.logger.Error(ctx, "error sending reset mail", "user_id", user.ID, "error", err)
	}
	return nil
}

// ResetPassword consumes a reset token. Every session of the account is
// revoked and any lockout is lifted.
func (s *AccountService) ResetPassword(ctx context.Context, token, next string, client models.ClientMeta) error {
	if token == "" {
		return common.ErrInvalidResetToken
	}
	tokenHash := common.HashToken(token)
	user, err := s.repomanager.Users(s.db.Conn()).GetByResetTokenHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrInvalidResetToken
		}
		return fmt.Errorf("error loading user: %w", err)
	}
	if user.ResetTokenExpires == nil || !user.ResetTokenExpires.After(s.now()) {
		return common.ErrInvalidResetToken
	}

	hash, err := s.newPasswordHash(ctx, user.ID, next)
	if err != nil {
		return err
	}

	return s.db.InTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		// the token is only consumed if nobody used it since the lookup
		err := s.repomanager.Users(tx).ResetPassword(ctx, user.ID, tokenHash, hash, s.now())
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrInvalidResetToken
		}
		if err != nil {
			return err
		}
		if err := password.NewPolicy(s.repomanager.PasswordHistory(tx)).RecordHistory(ctx, user.ID, hash); err != nil {
			return err
		}
		if _, err := s.repomanager.Sessions(tx).RevokeAll(ctx, user.ID); err != nil {
			return err
		}
		return s.audit.record(ctx, tx, models.AuditPasswordReset, user.ID, client.IP, nil)
	})
}

// BeginMFAEnrollment stores a fresh secret that becomes effective only after
// ConfirmMFA. Calling it again replaces an unconfirmed secret.
func (s *AccountService) BeginMFAEnrollment(ctx context.Context, sc *SessionContext) (*Enrollment, error) {
	if err := sc.requireRecord(); err != nil {
		return nil, err
	}
	user, err := s.repomanager.Users(s.db.Conn()).GetByID(ctx, sc.UserID)
	if err != nil {
		return nil, fmt.Errorf("error loading user: %w", err)
	}
	if user.MFAEnabled {
		return nil, common.ErrMFAAlreadyEnabled
	}

	secret, err := mfa.GenerateSecret()
	if err != nil {
		return nil, err
	}
	uri, err := mfa.ProvisioningURI(MFAIssuer, user.Email, secret)
	if err != nil {
		return nil, fmt.Errorf("error building provisioning uri: %w", err)
	}
	if err := s.repomanager.Users(s.db.Conn()).SetMFA(ctx, user.ID, &secret, false); err != nil {
		return nil, err
	}
	return &Enrollment{Secret: secret, ProvisioningURI: uri}, nil
}

func (s *AccountService) ConfirmMFA(ctx context.Context, sc *SessionContext, code string) error {
	if err := sc.requireRecord(); err != nil {
		return err
	}
	user, err := s.repomanager.Users(s.db.Conn()).GetByID(ctx, sc.UserID)
	if err != nil {
		return fmt.Errorf("error loading user: %w", err)
	}
	if user.MFAEnabled {
		return common.ErrMFAAlreadyEnabled
	}
	if user.MFASecret == nil {
		return common.ErrMFANotPending
	}
	if !mfa.ValidateAt(*user.MFASecret, code, s.now(), mfa.DefaultWindow) {
		return common.ErrInvalidMFACode
	}

	return s.db.InTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Users(tx).SetMFA(ctx, user.ID, user.MFASecret, true); err != nil {
			return err
		}
		return s.audit.record(ctx, tx, models.AuditMFAEnabled, user.ID, sc.Client.IP, nil)
	})
}

// DisableMFA requires a valid current code.
func (s *AccountService) DisableMFA(ctx context.Context, sc *SessionContext, code string) error {
	if err := sc.requireRecord(); err != nil {
		return err
	}
	user, err := s.repomanager.Users(s.db.Conn()).GetByID(ctx, sc.UserID)
	if err != nil {
		return fmt.Errorf("error loading user: %w", err)
	}
	if !user.MFAEnabled || user.MFASecret == nil {
		return common.ErrMFANotEnabled
	}
	if !mfa.ValidateAt(*user.MFASecret, code, s.now(), mfa.DefaultWindow) {
		return common.ErrInvalidMFACode
	}

	return s.db.InTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Users(tx).SetMFA(ctx, user.ID, nil, false); err != nil {
			return err
		}
		return s.audit.record(ctx, tx, models.AuditMFADisabled, user.ID, sc.Client.IP, nil)
	})
}

// Profile returns the caller's account record.
func (s *AccountService) Profile(ctx context.Context, sc *SessionContext) (*models.User, error) {
	if sc == nil {
		return nil, common.ErrorUnauthorized
	}
	return s.repomanager.Users(s.db.Conn()).GetByID(ctx, sc.UserID)
}

func (s *AccountService) newPasswordHash(ctx context.Context, userID, next string) (string, error) {
	if err := password.CheckComplexity(next); err != nil {
		return "", err
	}
	reused, err := password.NewPolicy(s.repomanager.PasswordHistory(s.db.Conn())).CheckReuse(ctx, userID, next)
	if err != nil {
		return "", err
	}
	if reused {
		return "", common.ErrPasswordReused
	}
	hash, err := s.hashPassword(next)
	if err != nil {
		return "", fmt.Errorf("error hashing password: %w", err)
	}
	return hash, nil
}

func (s *AccountService) storePassword(ctx context.Context, tx dbx.DBTX, userID, hash string) error {
	if err := s.repomanager.Users(tx).UpdatePassword(ctx, userID, hash, s.now()); err != nil {
		return err
	}
	return password.NewPolicy(s.repomanager.PasswordHistory(tx)).RecordHistory(ctx, userID, hash)
}

func validateEmail(raw string) (string, error) {
	email := normalizeEmail(raw)
	if email == "" || len(email) > maxEmailLength {
		return "", common.Validationf("invalid email address")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", common.Validationf("invalid email address")
	}
	return email, nil
}
