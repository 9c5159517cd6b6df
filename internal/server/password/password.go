// Package password hashes passwords and enforces complexity, reuse and
// expiry rules.
package password

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/abhidhakal/cipher-drop/internal/common"
	"github.com/abhidhakal/cipher-drop/internal/server/repositories/passwordhistory"
	"golang.org/x/crypto/bcrypt"
)

const (
	Cost         = 12
	MinLength    = 8
	MaxBytes     = 72
	HistoryDepth = 3
	MaxAge       = 90 * 24 * time.Hour
)

// Character classes reported in PolicyViolation.Missing.
const (
	ClassUpper  = "uppercase"
	ClassLower  = "lowercase"
	ClassDigit  = "digit"
	ClassSymbol = "symbol"
)

// PolicyViolation lists what a candidate password lacks.
type PolicyViolation struct {
	TooShort bool
	TooLong  bool
	Missing  []string
}

func (v *PolicyViolation) Error() string {
	var parts []string
	if v.TooShort {
		parts = append(parts, fmt.Sprintf("at least %d characters", MinLength))
	}
	if v.TooLong {
		parts = append(parts, fmt.Sprintf("at most %d bytes", MaxBytes))
	}
	parts = append(parts, v.Missing...)
	return fmt.Sprintf("%s: requires %s", common.ErrPasswordPolicy.Msg, strings.Join(parts, ", "))
}

func (v *PolicyViolation) Unwrap() error { return common.ErrPasswordPolicy }

// Hash derives a salted bcrypt hash.
func Hash(plaintext string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plaintext), Cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func Verify(plaintext, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

// CheckComplexity returns nil or a *PolicyViolation. bcrypt only accepts
// MaxBytes of input, so anything longer is a violation too.
func CheckComplexity(plaintext string) error {
	var upper, lower, digit, symbol bool
	for _, r := range plaintext {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}

	v := &PolicyViolation{
		TooShort: len([]rune(plaintext)) < MinLength,
		TooLong:  len(plaintext) > MaxBytes,
	}
	if !upper {
		v.Missing = append(v.Missing, ClassUpper)
	}
	if !lower {
		v.Missing = append(v.Missing, ClassLower)
	}
	if !digit {
		v.Missing = append(v.Missing, ClassDigit)
	}
	if !symbol {
		v.Missing = append(v.Missing, ClassSymbol)
	}
	if !v.TooShort && !v.TooLong && len(v.Missing) == 0 {
		return nil
	}
	return v
}

// CheckExpiry reports whether lastChanged+90 days lies before now.
func CheckExpiry(lastChanged, now time.Time) bool {
	return lastChanged.Add(MaxAge).Before(now)
}

// Policy binds the history-dependent checks to a history repository.
type Policy struct {
	history passwordhistory.Repository
}

func NewPolicy(history passwordhistory.Repository) *Policy {
	return &Policy{history: history}
}

// CheckReuse verifies plaintext against each of the last three hashes.
// Salts differ per hash, so comparison goes through Verify.
func (p *Policy) CheckReuse(ctx context.Context, userID, plaintext string) (bool, error) {
	hashes, err := p.history.Recent(ctx, userID, HistoryDepth)
	if err != nil {
		return false, fmt.Errorf("error reading password history: %w", err)
	}
	for _, h := range hashes {
		if Verify(plaintext, h) {
			return true, nil
		}
	}
	return false, nil
}

// RecordHistory appends hash and trims anything older than the last three.
func (p *Policy) RecordHistory(ctx context.Context, userID, hash string) error {
	if err := p.history.Append(ctx, userID, hash); err != nil {
		return fmt.Errorf("error recording password history: %w", err)
	}
	if _, err := p.history.Prune(ctx, userID, HistoryDepth); err != nil {
		return fmt.Errorf("error pruning password history: %w", err)
	}
	return nil
}
