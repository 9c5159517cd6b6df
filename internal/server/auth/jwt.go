// Package auth signs and parses the HS256 envelopes handed to clients: the
// session bearer and the short-lived MFA pending reference.
package auth

import (
	"errors"
	"time"

	"github.com/abhidhakal/cipher-drop/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

const (
	audienceSession    = "cipherdrop-session"
	audienceMFAPending = "cipherdrop-mfa-pending"
)

// SessionClaims wraps a reference to a server-side session record. Envelopes
// minted before session records existed carry no SessionToken.
type SessionClaims struct {
	jwt.RegisteredClaims
	SessionToken string `json:"sid,omitempty"`
	UserID       string `json:"uid"`
	Role         string `json:"role"`
}

// SessionRef is either Modern (backed by a revocable record) or Legacy.
type SessionRef interface {
	sessionRef()
}

type Modern struct {
	SessionToken string
	UserID       string
	Role         string
}

type Legacy struct {
	UserID string
	Role   string
}

func (Modern) sessionRef() {}
func (Legacy) sessionRef() {}

type PendingClaims struct {
	jwt.RegisteredClaims
	UserID string `json:"uid"`
}

func SignSession(key []byte, sessionToken, userID, role string, expires time.Time) (string, error) {
	return sign(key, SessionClaims{
		RegisteredClaims: registered(audienceSession, expires),
		SessionToken:     sessionToken,
		UserID:           userID,
		Role:             role,
	})
}

// ParseSession verifies the signature, algorithm, audience and expiry and
// returns the tagged reference. It says nothing about the session record.
func ParseSession(key []byte, bearer string) (SessionRef, error) {
	claims := &SessionClaims{}
	if err := parse(key, bearer, audienceSession, claims); err != nil {
		return nil, err
	}
	if claims.UserID == "" {
		return nil, common.ErrInvalidToken
	}
	if claims.SessionToken == "" {
		return Legacy{UserID: claims.UserID, Role: claims.Role}, nil
	}
	return Modern{SessionToken: claims.SessionToken, UserID: claims.UserID, Role: claims.Role}, nil
}

func SignPending(key []byte, userID string, expires time.Time) (string, error) {
	return sign(key, PendingClaims{
		RegisteredClaims: registered(audienceMFAPending, expires),
		UserID:           userID,
	})
}

func ParsePending(key []byte, ref string) (string, error) {
	claims := &PendingClaims{}
	if err := parse(key, ref, audienceMFAPending, claims); err != nil {
		return "", err
	}
	if claims.UserID == "" {
		return "", common.ErrInvalidToken
	}
	return claims.UserID, nil
}

func registered(audience string, expires time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Audience:  jwt.ClaimStrings{audience},
		ExpiresAt: jwt.NewNumericDate(expires),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
}

func sign(key []byte, claims jwt.Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}

func parse(key []byte, tokenString, audience string, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return common.ErrTokenExpired
		}
		return common.ErrInvalidToken
	}
	if !token.Valid {
		return common.ErrInvalidToken
	}
	return nil
}
