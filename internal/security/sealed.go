package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// SealedBox encrypts credential values before they reach durable storage.
// A nil *SealedBox is valid and passes values through unchanged, so the
// credential store does not need to branch on whether encryption is on.
type SealedBox struct {
	key []byte
}

const sealedPrefix = "sealed:"

var ErrSealedValueCorrupt = errors.New("sealed value corrupt")

// NewSealedBox derives a 256-bit key from the configured secret.
func NewSealedBox(secret string) (*SealedBox, error) {
	if secret == "" {
		return nil, nil
	}
	r := hkdf.New(sha256.New, []byte(secret), []byte("sessionkit.credentials"), nil)
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive sealing key: %w", err)
	}
	return &SealedBox{key: key}, nil
}

func (b *SealedBox) Seal(plaintext string) (string, error) {
	if b == nil {
		return plaintext, nil
	}
	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

func (b *SealedBox) Open(stored string) (string, error) {
	if b == nil {
		return stored, nil
	}
	if len(stored) < len(sealedPrefix) || stored[:len(sealedPrefix)] != sealedPrefix {
		// Value predates encryption being enabled; accept it as-is.
		return stored, nil
	}
	raw, err := base64.StdEncoding.DecodeString(stored[len(sealedPrefix):])
	if err != nil {
		return "", ErrSealedValueCorrupt
	}
	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return "", err
	}
	if len(raw) < aead.NonceSize() {
		return "", ErrSealedValueCorrupt
	}
	plaintext, err := aead.Open(nil, raw[:aead.NonceSize()], raw[aead.NonceSize():], nil)
	if err != nil {
		return "", ErrSealedValueCorrupt
	}
	return string(plaintext), nil
}
