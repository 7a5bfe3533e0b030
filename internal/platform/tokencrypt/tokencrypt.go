// Package tokencrypt seals OAuth tokens before they are written to storage,
// using XChaCha20-Poly1305 with a random nonce prepended to each ciphertext.
package tokencrypt

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrInvalidCiphertext is returned when a sealed value cannot be opened.
var ErrInvalidCiphertext = errors.New("invalid ciphertext")

// Sealer encrypts and decrypts short secrets.
type Sealer struct {
	aead cipher.AEAD
}

// New builds a Sealer from a hex encoded 32 byte key.
func New(keyHex string) (*Sealer, error) {
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid token encryption key: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("invalid token encryption key: want %d bytes, got %d",
			chacha20poly1305.KeySize, len(key))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal encrypts plaintext. additional binds the ciphertext to its owner so a
// row copied to another user fails to open.
func (s *Sealer) Seal(plaintext string, additional []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, []byte(plaintext), additional), nil
}

// Open decrypts a value produced by Seal with the same additional data.
func (s *Sealer) Open(sealed []byte, additional []byte) (string, error) {
	if len(sealed) < s.aead.NonceSize() {
		return "", ErrInvalidCiphertext
	}
	nonce, ct := sealed[:s.aead.NonceSize()], sealed[s.aead.NonceSize():]
	pt, err := s.aead.Open(nil, nonce, ct, additional)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	return string(pt), nil
}
