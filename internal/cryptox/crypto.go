// Package cryptox is the content vault: AES-256-GCM sealing of drop
// payloads. It knows nothing about drops, prices or users.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"github.com/abhidhakal/cipher-drop/internal/common"
)

const (
	KeySize   = 32
	NonceSize = 12
	TagSize   = 16
)

// Envelope is what storage keeps. None of it is secret on its own.
type Envelope struct {
	Ciphertext []byte
	Nonce      []byte
	Tag        []byte
}

type Vault struct {
	aead cipher.AEAD
}

// NewVault rejects any key that is not exactly 256 bits.
func NewVault(key []byte) (*Vault, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: vault key must be %d bytes, got %d", common.ErrInvalidKey, KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Vault{aead: aead}, nil
}

// Seal encrypts plaintext under a fresh random nonce.
func (v *Vault) Seal(plaintext []byte) (*Envelope, error) {
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	sealed := v.aead.Seal(nil, nonce, plaintext, nil)
	split := len(sealed) - TagSize

	return &Envelope{
		Ciphertext: sealed[:split:split],
		Nonce:      nonce,
		Tag:        sealed[split:],
	}, nil
}

// Open verifies the tag and only then returns the plaintext. Any failure
// yields common.ErrDecryptionFailed and no partial output.
func (v *Vault) Open(e *Envelope) ([]byte, error) {
	if e == nil || len(e.Nonce) != NonceSize || len(e.Tag) != TagSize {
		return nil, common.ErrDecryptionFailed
	}

	sealed := make([]byte, 0, len(e.Ciphertext)+TagSize)
	sealed = append(sealed, e.Ciphertext...)
	sealed = append(sealed, e.Tag...)

	plaintext, err := v.aead.Open(nil, e.Nonce, sealed, nil)
	if err != nil {
		return nil, common.ErrDecryptionFailed
	}
	return plaintext, nil
}
