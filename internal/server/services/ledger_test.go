package services

import (
	"context"
	"testing"

	"github.com/abhidhakal/cipher-drop/internal/common"
	"github.com/abhidhakal/cipher-drop/internal/dbx"
	"github.com/abhidhakal/cipher-drop/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreditTopUp(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.addUser(t, "alice@example.com", strongPassword, 100)

	tests := []struct {
		name   string
		amount int64
		source string
		want   error
	}{
		{"zero", 0, TopUpManual, common.ErrorValidation},
		{"negative", -5, TopUpManual, common.ErrorValidation},
		{"manual above cap", env.cfg.TopUpMaxCents + 1, TopUpManual, common.ErrorValidation},
		{"manual at cap", env.cfg.TopUpMaxCents, TopUpManual, nil},
		{"processor above cap", env.cfg.TopUpMaxCents + 1, TopUpProcessor, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.ledger.CreditTopUp(ctx, u.ID, tt.amount, "ref-1", tt.source, "10.0.0.9")
			if tt.want != nil {
				require.ErrorIs(t, err, tt.want)
				return
			}
			require.NoError(t, err)
		})
	}

	want := 100 + 2*env.cfg.TopUpMaxCents + 1
	assert.Equal(t, want, env.store.user(u.ID).BalanceCents)
	assert.Equal(t, 2, env.store.countAction(models.AuditWalletTopUp))
}

func TestTopUp_UsesCallerWallet(t *testing.T) {
	env := newTestEnv(t)
	u := env.addUser(t, "alice@example.com", strongPassword, 0)
	_, sc := env.login(t, u)

	balance, err := env.ledger.TopUp(context.Background(), sc, 2500)
	require.NoError(t, err)
	assert.Equal(t, int64(2500), balance)

	_, err = env.ledger.TopUp(context.Background(), &SessionContext{UserID: u.ID, Legacy: true}, 100)
	require.ErrorIs(t, err, common.ErrLegacySession)
}

func TestAdjustBalance_NeverNegative(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.addUser(t, "alice@example.com", strongPassword, 300)

	err := env.store.InTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		_, err := env.ledger.AdjustBalance(ctx, tx, u.ID, -301, "test")
		return err
	})
	require.ErrorIs(t, err, common.ErrInsufficientFunds)
	assert.Equal(t, int64(300), env.store.user(u.ID).BalanceCents)

	err = env.store.InTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		balance, err := env.ledger.AdjustBalance(ctx, tx, u.ID, -300, "test")
		assert.Zero(t, balance)
		return err
	})
	require.NoError(t, err)
}

func TestTransfer_FailedDebitRollsBackCredit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	// ids chosen so the credit is applied before the debit
	buyer := env.store.addUser(models.User{ID: "ffffffff-0000-0000-0000-000000000000", BalanceCents: 10})
	seller := env.store.addUser(models.User{ID: "00000000-0000-0000-0000-000000000001"})

	err := env.store.InTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		return env.ledger.transfer(ctx, tx, buyer.ID, seller.ID, 50, "test")
	})
	require.ErrorIs(t, err, common.ErrInsufficientFunds)
	assert.Equal(t, int64(10), env.store.user(buyer.ID).BalanceCents)
	assert.Zero(t, env.store.user(seller.ID).BalanceCents)
}
