package services

import (
	"context"
	"errors"
	"time"

	"github.com/abhidhakal/cipher-drop/internal/common"
	"github.com/abhidhakal/cipher-drop/internal/dbx"
	"github.com/abhidhakal/cipher-drop/internal/logging"
	"github.com/abhidhakal/cipher-drop/internal/server/config"
	"github.com/abhidhakal/cipher-drop/internal/server/models"
	"github.com/abhidhakal/cipher-drop/internal/server/repositories/repomanager"
)

// Top-up sources.
const (
	TopUpManual    = "manual"
	TopUpProcessor = "processor"
)

// LedgerService owns every change to a wallet balance.
type LedgerService struct {
	db          dbx.Transactor
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
	audit       auditor
	now         clock

	maxManualTopUp int64
}

func NewLedgerService(db dbx.Transactor, m repomanager.RepositoryManager, cfg *config.Config,
	logger logging.Logger) *LedgerService {
	s := &LedgerService{
		db:             db,
		repomanager:    m,
		logger:         logger,
		now:            time.Now,
		maxManualTopUp: cfg.TopUpMaxCents,
	}
	s.audit = auditor{repomanager: m, now: func() time.Time { return s.now() }}
	return s
}

// AdjustBalance applies delta cents to userID's balance through tx and returns
// the new balance. It is the only place balances change; a result below zero
// is refused by a guarded UPDATE and reported as common.ErrInsufficientFunds.
func (s *LedgerService) AdjustBalance(ctx context.Context, tx dbx.DBTX, userID string, delta int64,
	reason string) (int64, error) {
	balance, err := s.repomanager.Users(tx).AdjustBalance(ctx, userID, delta)
	if err != nil {
		if errors.Is(err, common.ErrNegativeBalance) {
			return 0, common.ErrInsufficientFunds
		}
		return 0, err
	}
	s.logger.Debug(ctx, "balance adjusted", "user_id", userID, "delta", delta, "reason", reason)
	return balance, nil
}

// transfer moves amount from one user to another. Rows are touched in user-id
// order so two opposite transfers cannot deadlock.
func (s *LedgerService) transfer(ctx context.Context, tx dbx.DBTX, from, to string, amount int64, reason string) error {
	type step struct {
		userID string
		delta  int64
	}
	steps := []step{{from, -amount}, {to, amount}}
	if to < from {
		steps[0], steps[1] = steps[1], steps[0]
	}
	for _, st := range steps {
		if _, err := s.AdjustBalance(ctx, tx, st.userID, st.delta, reason); err != nil {
			return err
		}
	}
	return nil
}

// CreditTopUp is the entry point for the payment collaborator. Manual
// top-ups are capped; processor credits are not.
func (s *LedgerService) CreditTopUp(ctx context.Context, userID string, amountCents int64, reference,
	source, ip string) (int64, error) {
	if amountCents <= 0 {
		return 0, common.Validationf("amount must be positive")
	}
	if source == TopUpManual && amountCents > s.maxManualTopUp {
		return 0, common.Validationf("amount exceeds the manual top-up limit of %d cents", s.maxManualTopUp)
	}

	var balance int64
	err := s.db.InTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		balance, err = s.AdjustBalance(ctx, tx, userID, amountCents, "topup:"+source)
		if err != nil {
			return err
		}
		return s.audit.record(ctx, tx, models.AuditWalletTopUp, userID, ip, map[string]any{
			"amount_cents": amountCents,
			"reference":    reference,
			"source":       source,
		})
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// TopUp credits the caller's own wallet.
func (s *LedgerService) TopUp(ctx context.Context, sc *SessionContext, amountCents int64) (int64, error) {
	if err := sc.requireRecord(); err != nil {
		return 0, err
	}
	return s.CreditTopUp(ctx, sc.UserID, amountCents, "", TopUpManual, sc.Client.IP)
}
