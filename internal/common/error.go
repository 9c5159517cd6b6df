// Package common defines the error taxonomy and small helpers shared by every
// layer of the CipherDrop server. Callers should use errors.Is to match the
// sentinels and KindOf to classify an arbitrary error.
package common

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Kind classifies an error for propagation and for mapping at the transport
// boundary.
type Kind int

const (
	KindInfrastructure Kind = iota
	KindValidation
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindConflict
	KindThrottled
	KindCryptographic
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindThrottled:
		return "throttled"
	case KindCryptographic:
		return "cryptographic"
	default:
		return "infrastructure"
	}
}

// Error is a sentinel carrying its Kind.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func newError(k Kind, msg string) *Error { return &Error{Kind: k, Msg: msg} }

var (
	// Repository-level errors.
	ErrorNotFound      = newError(KindNotFound, "not found")
	ErrorAlreadyExists = newError(KindConflict, "already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = newError(KindInfrastructure, "internal error")
	ErrorUnauthorized = newError(KindAuthentication, "unauthorized")
	ErrorValidation   = newError(KindValidation, "validation error")
	ErrInvalidToken   = newError(KindAuthentication, "invalid token")
	ErrTokenExpired   = newError(KindAuthentication, "token expired")
	ErrInvalidKey     = newError(KindInfrastructure, "invalid key material")

	// Credential lifecycle.
	ErrInvalidCredentials = newError(KindAuthentication, "invalid credentials")
	ErrAccountLocked      = newError(KindAuthentication, "account locked")
	ErrPasswordExpired    = newError(KindAuthentication, "password expired, reset required")
	ErrPasswordPolicy     = newError(KindValidation, "password does not meet complexity requirements")
	ErrPasswordReused     = newError(KindValidation, "password was used recently")
	ErrInvalidResetToken  = newError(KindAuthentication, "invalid or expired reset token")
	ErrRateLimited        = newError(KindThrottled, "too many attempts")
	ErrCaptchaFailed      = newError(KindAuthentication, "captcha verification failed")

	// MFA.
	ErrInvalidMFACode    = newError(KindAuthentication, "invalid mfa code")
	ErrMFAAlreadyEnabled = newError(KindConflict, "mfa already enabled")
	ErrMFANotEnabled     = newError(KindConflict, "mfa not enabled")
	ErrMFANotPending     = newError(KindConflict, "mfa enrollment not started")

	// Sessions.
	ErrSessionNotFound = newError(KindNotFound, "session not found")
	ErrLegacySession   = newError(KindAuthorization, "operation requires a revocable session")

	// Escrow.
	ErrDropNotFound      = newError(KindNotFound, "drop not found")
	ErrAccessDenied      = newError(KindAuthorization, "access denied")
	ErrInsufficientFunds = newError(KindConflict, "insufficient funds")
	ErrNegativeBalance   = newError(KindConflict, "balance cannot become negative")
	ErrDecryptionFailed  = newError(KindCryptographic, "decryption failed")
)

// LockedError reports a locked account together with the remaining lockout.
type LockedError struct {
	Remaining time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked, try again in %d minutes", e.Minutes())
}

// Minutes rounds the remaining lockout up to whole minutes.
func (e *LockedError) Minutes() int {
	return int(math.Ceil(e.Remaining.Minutes()))
}

func (e *LockedError) Unwrap() error { return ErrAccountLocked }

// Validationf returns a validation error with a caller supplied detail.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrorValidation, fmt.Sprintf(format, args...))
}

// KindOf classifies err. Anything not carrying a Kind is infrastructure.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInfrastructure
}
