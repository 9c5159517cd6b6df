// Package mfa implements RFC 6238 TOTP with the parameters authenticator
// apps hard-code: HMAC-SHA1, six digits, 30 second steps.
package mfa

import (
	"encoding/base32"
	"fmt"
	"strings"
	"time"

	"github.com/abhidhakal/cipher-drop/internal/common"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	SecretSize    = 20
	Digits        = otp.DigitsSix
	Period        = 30
	DefaultWindow = 1
)

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

func validateOpts(window uint) totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    Period,
		Skew:      window,
		Digits:    Digits,
		Algorithm: otp.AlgorithmSHA1,
	}
}

var randomBytes = common.GenerateRandByteArray

// GenerateSecret returns a fresh base32 secret of SecretSize random bytes.
func GenerateSecret() (string, error) {
	raw, err := randomBytes(SecretSize)
	if err != nil {
		return "", fmt.Errorf("error generating mfa secret: %w", err)
	}
	return b32.EncodeToString(raw), nil
}

// ProvisioningURI returns the otpauth:// URI for enrollment.
func ProvisioningURI(issuer, account, secret string) (string, error) {
	raw, err := b32.DecodeString(strings.ToUpper(secret))
	if err != nil {
		return "", common.Validationf("malformed mfa secret")
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
		Period:      Period,
		SecretSize:  SecretSize,
		Secret:      raw,
		Digits:      Digits,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", err
	}
	return key.URL(), nil
}

// Validate checks code against now with the default window.
func Validate(secret, code string) bool {
	return ValidateAt(secret, code, time.Now(), DefaultWindow)
}

// ValidateAt accepts a code for t's step or any step within window of it.
// Anything that is not exactly six ASCII digits is rejected up front.
func ValidateAt(secret, code string, t time.Time, window uint) bool {
	if !wellFormed(code) {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, t, validateOpts(window))
	return err == nil && ok
}

// CodeAt returns the code for t. Used by enrollment tooling and tests.
func CodeAt(secret string, t time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, t, validateOpts(0))
}

func wellFormed(code string) bool {
	if len(code) != Digits.Length() {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
