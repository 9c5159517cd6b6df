package auth

import (
	"testing"
	"time"

	"github.com/abhidhakal/cipher-drop/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var key = []byte("0123456789abcdef0123456789abcdef")

func TestSession_RoundTripModern(t *testing.T) {
	t.Parallel()

	tok, err := SignSession(key, "raw-token", "u-1", "USER", time.Now().Add(time.Hour))
	require.NoError(t, err)

	ref, err := ParseSession(key, tok)
	require.NoError(t, err)

	m, ok := ref.(Modern)
	require.True(t, ok, "expected Modern, got %T", ref)
	assert.Equal(t, "raw-token", m.SessionToken)
	assert.Equal(t, "u-1", m.UserID)
	assert.Equal(t, "USER", m.Role)
}

func TestSession_WithoutReferenceIsLegacy(t *testing.T) {
	t.Parallel()

	tok, err := SignSession(key, "", "u-1", "ADMIN", time.Now().Add(time.Hour))
	require.NoError(t, err)

	ref, err := ParseSession(key, tok)
	require.NoError(t, err)
	assert.Equal(t, Legacy{UserID: "u-1", Role: "ADMIN"}, ref)
}

func TestSession_Rejections(t *testing.T) {
	t.Parallel()

	valid, err := SignSession(key, "raw", "u-1", "USER", time.Now().Add(time.Hour))
	require.NoError(t, err)
	expired, err := SignSession(key, "raw", "u-1", "USER", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	pending, err := SignPending(key, "u-1", time.Now().Add(time.Minute))
	require.NoError(t, err)
	noUser, err := SignSession(key, "raw", "", "USER", time.Now().Add(time.Hour))
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, SessionClaims{
		RegisteredClaims: registered(audienceSession, time.Now().Add(time.Hour)),
		SessionToken:     "raw", UserID: "u-1",
	})
	noneTok, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		key   []byte
		token string
		want  error
	}{
		{"wrong key", []byte("another-key-another-key-another!!"), valid, common.ErrInvalidToken},
		{"tampered", key, valid[:len(valid)-2] + "xx", common.ErrInvalidToken},
		{"expired", key, expired, common.ErrTokenExpired},
		{"pending ref used as session", key, pending, common.ErrInvalidToken},
		{"alg none", key, noneTok, common.ErrInvalidToken},
		{"no user", key, noUser, common.ErrInvalidToken},
		{"garbage", key, "not-a-jwt", common.ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSession(tt.key, tt.token)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestPending_RoundTrip(t *testing.T) {
	t.Parallel()

	ref, err := SignPending(key, "u-9", time.Now().Add(5*time.Minute))
	require.NoError(t, err)

	uid, err := ParsePending(key, ref)
	require.NoError(t, err)
	assert.Equal(t, "u-9", uid)

	session, err := SignSession(key, "raw", "u-9", "USER", time.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = ParsePending(key, session)
	assert.ErrorIs(t, err, common.ErrInvalidToken, "session bearer must not pass as pending ref")
}
