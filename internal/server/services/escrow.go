package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/abhidhakal/cipher-drop/internal/common"
	"github.com/abhidhakal/cipher-drop/internal/cryptox"
	"github.com/abhidhakal/cipher-drop/internal/dbx"
	"github.com/abhidhakal/cipher-drop/internal/logging"
	"github.com/abhidhakal/cipher-drop/internal/server/models"
	"github.com/abhidhakal/cipher-drop/internal/server/repositories/drops"
	"github.com/abhidhakal/cipher-drop/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

const (
	MaxTitleLength   = 200
	MaxContentBytes  = 1 << 20
	MaxDropPriceCent = 10_000_000
)

// Vault seals and opens drop content.
type Vault interface {
	Seal(plaintext []byte) (*cryptox.Envelope, error)
	Open(e *cryptox.Envelope) ([]byte, error)
}

type CreateDropRequest struct {
	Title          string
	Content        []byte
	PriceCents     int64
	RecipientEmail string
	OneTimeView    bool
}

// EscrowService stores encrypted drops and releases their content against
// payment.
type EscrowService struct {
	db          dbx.Transactor
	repomanager repomanager.RepositoryManager
	vault       Vault
	ledger      *LedgerService
	logger      logging.Logger
	audit       auditor
	now         clock
}

func NewEscrowService(db dbx.Transactor, m repomanager.RepositoryManager, vault Vault, ledger *LedgerService,
	logger logging.Logger) *EscrowService {
	s := &EscrowService{
		db:          db,
		repomanager: m,
		vault:       vault,
		ledger:      ledger,
		logger:      logger,
		now:         time.Now,
	}
	s.audit = auditor{repomanager: m, now: func() time.Time { return s.now() }}
	return s
}

// CreateDrop seals the content and stores the drop. A free drop is created
// already PAID.
func (s *EscrowService) CreateDrop(ctx context.Context, sc *SessionContext, req CreateDropRequest) (*models.Drop, error) {
	if err := sc.requireRecord(); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(req.Title)
	switch {
	case title == "":
		return nil, common.Validationf("title is required")
	case utf8.RuneCountInString(title) > MaxTitleLength:
		return nil, common.Validationf("title is longer than %d characters", MaxTitleLength)
	case len(req.Content) == 0:
		return nil, common.Validationf("content is required")
	case len(req.Content) > MaxContentBytes:
		return nil, common.Validationf("content is larger than %d bytes", MaxContentBytes)
	case req.PriceCents < 0 || req.PriceCents > MaxDropPriceCent:
		return nil, common.Validationf("price must be between 0 and %d cents", MaxDropPriceCent)
	}

	env, err := s.vault.Seal(req.Content)
	if err != nil {
		return nil, fmt.Errorf("error sealing content: %w", err)
	}

	status := models.DropPending
	if req.PriceCents == 0 {
		status = models.DropPaid
	}

	var created *models.Drop
	err = s.db.InTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var receiverID *string
		if email := normalizeEmail(req.RecipientEmail); email != "" {
			recipient, err := s.repomanager.Users(tx).GetByEmail(ctx, email)
			if err != nil {
				if errors.Is(err, common.ErrorNotFound) {
					return common.Validationf("recipient not found")
				}
				return err
			}
			if recipient.ID == sc.UserID {
				return common.Validationf("recipient must differ from sender")
			}
			receiverID = &recipient.ID
		}

		d, err := s.repomanager.Drops(tx).Create(ctx, &models.Drop{
			Title:       title,
			Ciphertext:  env.Ciphertext,
			Nonce:       env.Nonce,
			Tag:         env.Tag,
			PriceCents:  req.PriceCents,
			SenderID:    sc.UserID,
			ReceiverID:  receiverID,
			Status:      status,
			OneTimeView: req.OneTimeView,
			CreatedAt:   s.now(),
		})
		if err != nil {
			return err
		}
		created = d
		return s.audit.record(ctx, tx, models.AuditCreateDrop, sc.UserID, sc.Client.IP, map[string]any{
			"drop_id":       d.ID,
			"price_cents":   d.PriceCents,
			"one_time_view": d.OneTimeView,
			"targeted":      receiverID != nil,
		})
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Unlock pays for the drop if required and returns its plaintext. Payment,
// decryption, optional destruction and the audit trail form one transaction:
// a failure at any step leaves balances and the drop untouched.
func (s *EscrowService) Unlock(ctx context.Context, sc *SessionContext, dropID string) ([]byte, error) {
	if err := sc.requireRecord(); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(dropID); err != nil {
		return nil, common.ErrDropNotFound
	}

	var plaintext []byte
	err := s.db.InTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		d, err := s.repomanager.Drops(tx).GetForUpdate(ctx, dropID)
		if err != nil {
			return err
		}
		buyer, err := s.repomanager.Users(tx).GetByID(ctx, sc.UserID)
		if err != nil {
			return fmt.Errorf("error loading requester: %w", err)
		}

		// Receiver before PAID: once claimed, a drop is readable only by its
		// sender and receiver, even after payment.
		switch {
		case d.SenderID == buyer.ID:
		case d.ReceiverID != nil && *d.ReceiverID != buyer.ID:
			return common.ErrAccessDenied
		case d.Status == models.DropPaid:
		default:
			if err := s.settle(ctx, tx, d, buyer, sc.Client.IP); err != nil {
				return err
			}
		}

		plaintext, err = s.vault.Open(&cryptox.Envelope{Ciphertext: d.Ciphertext, Nonce: d.Nonce, Tag: d.Tag})
		if err != nil {
			s.logger.Error(ctx, "drop failed to decrypt", "drop_id", d.ID)
			return common.ErrDecryptionFailed
		}

		action := models.AuditDropDecrypted
		if d.OneTimeView {
			if err := s.repomanager.Drops(tx).Delete(ctx, d.ID); err != nil {
				return err
			}
			action = models.AuditDropDestroyed
		}
		return s.audit.record(ctx, tx, action, buyer.ID, sc.Client.IP, map[string]any{"drop_id": d.ID})
	})
	if err != nil {
		common.WipeByteArray(plaintext)
		return nil, err
	}
	return plaintext, nil
}

func (s *EscrowService) settle(ctx context.Context, tx dbx.DBTX, d *models.Drop, buyer *models.User, ip string) error {
	if buyer.BalanceCents < d.PriceCents {
		return common.ErrInsufficientFunds
	}
	if err := s.ledger.transfer(ctx, tx, buyer.ID, d.SenderID, d.PriceCents, "drop:"+d.ID); err != nil {
		return err
	}
	if err := s.repomanager.Drops(tx).MarkPaid(ctx, d.ID, buyer.ID); err != nil {
		if errors.Is(err, drops.ErrNotPending) {
			return common.ErrAccessDenied
		}
		return err
	}
	return s.audit.record(ctx, tx, models.AuditPaymentSuccess, buyer.ID, ip, map[string]any{
		"drop_id":     d.ID,
		"price_cents": d.PriceCents,
		"seller_id":   d.SenderID,
	})
}

// GetDropMeta returns what a prospective buyer may see before paying.
func (s *EscrowService) GetDropMeta(ctx context.Context, dropID string) (*models.DropMeta, error) {
	if _, err := uuid.Parse(dropID); err != nil {
		return nil, common.ErrDropNotFound
	}
	return s.repomanager.Drops(s.db.Conn()).GetMeta(ctx, dropID)
}

// ListDrops returns drops the caller sent or received, newest first.
func (s *EscrowService) ListDrops(ctx context.Context, sc *SessionContext) ([]*models.DropMeta, error) {
	if sc == nil {
		return nil, common.ErrorUnauthorized
	}
	return s.repomanager.Drops(s.db.Conn()).ListForUser(ctx, sc.UserID)
}
