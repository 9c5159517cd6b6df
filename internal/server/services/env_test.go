package services

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/abhidhakal/cipher-drop/internal/cryptox"
	"github.com/abhidhakal/cipher-drop/internal/dbx"
	"github.com/abhidhakal/cipher-drop/internal/logging"
	"github.com/abhidhakal/cipher-drop/internal/server/captcha"
	"github.com/abhidhakal/cipher-drop/internal/server/config"
	"github.com/abhidhakal/cipher-drop/internal/server/models"
	"github.com/abhidhakal/cipher-drop/internal/server/ratelimit"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeCaptcha struct {
	mu     sync.Mutex
	result captcha.Result
	err    error
	calls  int
}

func (f *fakeCaptcha) Verify(context.Context, string, string) (captcha.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.result, f.err
}

type sentReset struct {
	email, token string
	expires      time.Time
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentReset
}

func (f *fakeNotifier) SendPasswordReset(_ context.Context, email, token string, expires time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentReset{email, token, expires})
	return nil
}

type testEnv struct {
	store    *memStore
	cfg      *config.Config
	clock    time.Time
	captcha  *fakeCaptcha
	notifier *fakeNotifier
	vault    *cryptox.Vault

	sessions *SessionService
	auth     *AuthService
	accounts *AccountService
	ledger   *LedgerService
	escrow   *EscrowService
}

func fastHash(p string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(p), bcrypt.MinCost)
	return string(b), err
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.SessionSigningKey = []byte("0123456789abcdef0123456789abcdef-signing")
	cfg.VaultKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.LoginRateLimit = 100
	cfg.MFARateLimit = 100
	return cfg
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWith(t, testConfig(), ratelimit.New())
}

func newTestEnvWith(t *testing.T, cfg *config.Config, limiter ratelimit.Checker) *testEnv {
	t.Helper()

	vault, err := cryptox.NewVault(cfg.VaultKey)
	require.NoError(t, err)

	env := &testEnv{
		store:    newMemStore(),
		cfg:      cfg,
		clock:    time.Now().Truncate(time.Second),
		captcha:  &fakeCaptcha{result: captcha.Result{Success: true, Score: 0.9}},
		notifier: &fakeNotifier{},
		vault:    vault,
	}
	logger := logging.NewJSONLogger(io.Discard, "debug")
	rm := fakeManager{env.store}
	now := func() time.Time { return env.clock }

	env.sessions = NewSessionService(env.store, rm, cfg, logger)
	env.sessions.now = now
	env.auth = NewAuthService(env.store, rm, env.sessions, limiter, env.captcha, cfg, logger)
	env.auth.now = now
	env.auth.hashPassword = fastHash
	env.accounts = NewAccountService(env.store, rm, limiter, env.captcha, env.notifier, cfg, logger)
	env.accounts.now = now
	env.accounts.hashPassword = fastHash
	env.ledger = NewLedgerService(env.store, rm, cfg, logger)
	env.ledger.now = now
	env.escrow = NewEscrowService(env.store, rm, vault, env.ledger, logger)
	env.escrow.now = now
	return env
}

func (e *testEnv) advance(d time.Duration) { e.clock = e.clock.Add(d) }

// addUser stores an account whose password is pw.
func (e *testEnv) addUser(t *testing.T, email, pw string, balanceCents int64) *models.User {
	t.Helper()
	hash, err := fastHash(pw)
	require.NoError(t, err)
	u := e.store.addUser(models.User{
		Email:               email,
		PasswordHash:        hash,
		PasswordLastChanged: e.clock,
		BalanceCents:        balanceCents,
		CreatedAt:           e.clock,
	})
	e.store.mu.Lock()
	e.store.history[u.ID] = []string{hash}
	e.store.mu.Unlock()
	return u
}

// login issues a session for u directly and validates it.
func (e *testEnv) login(t *testing.T, u *models.User) (*IssuedSession, *SessionContext) {
	t.Helper()
	ctx := context.Background()
	meta := models.ClientMeta{IP: "10.0.0.1", UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_0)"}
	var issued *IssuedSession
	err := e.store.InTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		issued, err = e.sessions.Issue(ctx, tx, u, meta)
		return err
	})
	require.NoError(t, err)
	sc, err := e.sessions.Validate(ctx, issued.Bearer, meta)
	require.NoError(t, err)
	return issued, sc
}

const strongPassword = "Str0ng!Passw0rd"
