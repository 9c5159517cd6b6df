package services

import (
	"context"
	"testing"
	"time"

	"github.com/abhidhakal/cipher-drop/internal/common"
	"github.com/abhidhakal/cipher-drop/internal/server/auth"
	"github.com/abhidhakal/cipher-drop/internal/server/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceName(t *testing.T) {
	tests := []struct {
		ua   string
		want string
	}{
		{"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X)", "iPhone"},
		{"Mozilla/5.0 (Linux; Android 14; Pixel 8)", "Android"},
		{"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_0)", "Mac"},
		{"Mozilla/5.0 (Windows NT 10.0; Win64; x64)", "Windows"},
		{"Mozilla/5.0 (X11; Linux x86_64)", "Linux"},
		{"curl/8.4.0", "Browser"},
		{"", "Browser"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DeviceName(tt.ua), tt.ua)
	}
}

func TestSessionIssue_StoresOnlyHash(t *testing.T) {
	env := newTestEnv(t)
	u := env.addUser(t, "a@example.com", strongPassword, 0)
	issued, sc := env.login(t, u)

	rec := env.store.session(issued.Session.ID)
	assert.Equal(t, u.ID, rec.UserID)
	assert.Equal(t, "Mac", rec.DeviceName)
	assert.Equal(t, env.clock.Add(SessionTTL), rec.ExpiresAt)
	assert.Len(t, rec.TokenHash, 64)
	assert.NotContains(t, issued.Bearer, rec.TokenHash)

	assert.Equal(t, issued.Session.ID, sc.SessionID)
	assert.Equal(t, u.ID, sc.UserID)
	assert.False(t, sc.Legacy)
}

func TestSessionValidate_RevokedIsRejectedImmediately(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.addUser(t, "a@example.com", strongPassword, 0)
	issued, sc := env.login(t, u)

	require.NoError(t, env.sessions.Revoke(ctx, sc, issued.Session.ID))

	_, err := env.sessions.Validate(ctx, issued.Bearer, models.ClientMeta{})
	require.ErrorIs(t, err, common.ErrorUnauthorized)
	assert.Equal(t, 1, env.store.countAction(models.AuditSessionRevoked))
}

func TestSessionValidate_ExpiredAndForged(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.addUser(t, "a@example.com", strongPassword, 0)
	issued, _ := env.login(t, u)

	_, err := env.sessions.Validate(ctx, issued.Bearer+"x", models.ClientMeta{})
	require.ErrorIs(t, err, common.ErrorUnauthorized)

	forged, err := auth.SignSession([]byte("another-key-another-key-another-key"), "tok", u.ID, "USER",
		time.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = env.sessions.Validate(ctx, forged, models.ClientMeta{})
	require.ErrorIs(t, err, common.ErrorUnauthorized)

	unknown, err := auth.SignSession(env.cfg.SessionSigningKey, "no-such-token", u.ID, "USER",
		time.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = env.sessions.Validate(ctx, unknown, models.ClientMeta{})
	require.ErrorIs(t, err, common.ErrorUnauthorized)

	env.advance(SessionTTL + time.Second)
	_, err = env.sessions.Validate(ctx, issued.Bearer, models.ClientMeta{})
	require.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestSessionRefresh_ExtendsExpiry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.addUser(t, "a@example.com", strongPassword, 0)
	issued, sc := env.login(t, u)

	env.advance(90 * time.Minute)
	bearer, err := env.sessions.Refresh(ctx, sc)
	require.NoError(t, err)

	rec := env.store.session(issued.Session.ID)
	assert.Equal(t, env.clock, rec.LastActive)
	assert.Equal(t, env.clock.Add(SessionTTL), rec.ExpiresAt)

	env.advance(time.Hour)
	sc2, err := env.sessions.Validate(ctx, bearer, models.ClientMeta{})
	require.NoError(t, err, "refreshed session outlives the original window")
	assert.Equal(t, sc.SessionID, sc2.SessionID)
}

func TestSessionRefresh_RevokedFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.addUser(t, "a@example.com", strongPassword, 0)
	issued, sc := env.login(t, u)
	require.NoError(t, env.sessions.Revoke(ctx, sc, issued.Session.ID))

	_, err := env.sessions.Refresh(ctx, sc)
	require.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestSessionValidate_RoleFromUserRecord(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.addUser(t, "a@example.com", strongPassword, 0)
	issued, sc := env.login(t, u)
	assert.Equal(t, models.RoleUser, sc.Role)

	stored := env.store.user(u.ID)
	stored.Role = models.RoleAdmin
	env.store.users[u.ID] = stored

	sc, err := env.sessions.Validate(ctx, issued.Bearer, models.ClientMeta{})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, sc.Role, "bearer still carries USER")

	delete(env.store.users, u.ID)
	_, err = env.sessions.Validate(ctx, issued.Bearer, models.ClientMeta{})
	require.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestSessionValidate_Legacy(t *testing.T) {
	ctx := context.Background()
	legacy := func(key []byte) string {
		b, err := auth.SignSession(key, "", "user-1", "USER", time.Now().Add(time.Hour))
		require.NoError(t, err)
		return b
	}

	t.Run("rejected by default", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.sessions.Validate(ctx, legacy(env.cfg.SessionSigningKey), models.ClientMeta{})
		require.ErrorIs(t, err, common.ErrorUnauthorized)
	})

	t.Run("accepted when allowed but not revocation sensitive", func(t *testing.T) {
		env := newTestEnv(t)
		env.sessions.allowLegacy = true
		sc, err := env.sessions.Validate(ctx, legacy(env.cfg.SessionSigningKey), models.ClientMeta{})
		require.NoError(t, err)
		assert.True(t, sc.Legacy)
		assert.Equal(t, "user-1", sc.UserID)

		_, err = env.sessions.Refresh(ctx, sc)
		require.ErrorIs(t, err, common.ErrLegacySession)
		_, err = env.sessions.List(ctx, sc)
		require.ErrorIs(t, err, common.ErrLegacySession)
		assert.Equal(t, common.KindAuthorization, common.KindOf(err))
	})
}

func TestSessionRevoke_OwnerCheck(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.addUser(t, "a@example.com", strongPassword, 0)
	b := env.addUser(t, "b@example.com", strongPassword, 0)
	issuedA, _ := env.login(t, a)
	_, scB := env.login(t, b)

	err := env.sessions.Revoke(ctx, scB, issuedA.Session.ID)
	require.ErrorIs(t, err, common.ErrSessionNotFound)
	assert.False(t, env.store.session(issuedA.Session.ID).Revoked)

	err = env.sessions.Revoke(ctx, scB, "not-a-uuid")
	require.ErrorIs(t, err, common.ErrSessionNotFound)
	err = env.sessions.Revoke(ctx, scB, uuid.NewString())
	require.ErrorIs(t, err, common.ErrSessionNotFound)
	assert.Zero(t, env.store.countAction(models.AuditSessionRevoked))
}

func TestSessionRevokeAllExceptAndList(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.addUser(t, "a@example.com", strongPassword, 0)
	old1, _ := env.login(t, u)
	env.advance(time.Minute)
	old2, _ := env.login(t, u)
	env.advance(time.Minute)
	current, sc := env.login(t, u)

	list, err := env.sessions.List(ctx, sc)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, current.Session.ID, list[0].ID)

	n, err := env.sessions.RevokeAllExcept(ctx, sc)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.True(t, env.store.session(old1.Session.ID).Revoked)
	assert.True(t, env.store.session(old2.Session.ID).Revoked)
	assert.False(t, env.store.session(current.Session.ID).Revoked)

	list, err = env.sessions.List(ctx, sc)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, 1, env.store.countAction(models.AuditSessionsRevoked))
}
