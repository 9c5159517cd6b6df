package models

import "time"

type DropStatus string

const (
	DropPending DropStatus = "PENDING"
	DropPaid    DropStatus = "PAID"
)

// Drop is an encrypted payload with a price and access rules. The envelope
// fields are opaque to storage.
type Drop struct {
	ID          string
	Title       string
	Ciphertext  []byte
	Nonce       []byte
	Tag         []byte
	PriceCents  int64
	SenderID    string
	ReceiverID  *string
	Status      DropStatus
	OneTimeView bool
	CreatedAt   time.Time
}

// DropMeta is what a prospective buyer may see before paying.
type DropMeta struct {
	ID          string
	Title       string
	PriceCents  int64
	Status      DropStatus
	SenderEmail string
	ReceiverID  *string
	OneTimeView bool
	CreatedAt   time.Time
}
