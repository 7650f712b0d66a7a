// Package encrypted wraps a storage.Storage so values are sealed with
// XChaCha20-Poly1305 before they reach the underlying store.
package encrypted

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	autherrs "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/storage"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const keyInfo = "go-auth-client storage v1"

// Store seals values with a key derived from a secret. The storage key is
// bound as additional data so a value copied to another key fails to open.
type Store struct {
	inner storage.Storage
	aead  aeadCipher
}

type aeadCipher interface {
	NonceSize() int
	Overhead() int
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
}

var _ storage.Storage = (*Store)(nil)

// New derives a 256 bit key from secret with HKDF-SHA256 and wraps inner.
func New(inner storage.Storage, secret []byte) (*Store, error) {
	if inner == nil {
		return nil, fmt.Errorf("[encrypted.New] %w", autherrs.ErrStorageRequired)
	}
	if len(secret) == 0 {
		return nil, fmt.Errorf("[encrypted.New] secret is required")
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("[encrypted.New] derive key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("[encrypted.New] cipher: %w", err)
	}
	return &Store{inner: inner, aead: aead}, nil
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	sealed, ok, err := s.inner.Get(ctx, key)
	if err != nil || !ok {
		return "", ok, err
	}

	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", false, fmt.Errorf("[encrypted.Get] %s: %w", key, autherrs.ErrCorrupt)
	}
	nonceSize := s.aead.NonceSize()
	if len(raw) < nonceSize+s.aead.Overhead() {
		return "", false, fmt.Errorf("[encrypted.Get] %s: short value: %w", key, autherrs.ErrCorrupt)
	}
	plain, err := s.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], []byte(key))
	if err != nil {
		return "", false, fmt.Errorf("[encrypted.Get] %s: %w", key, autherrs.ErrCorrupt)
	}
	return string(plain), true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(value)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("[encrypted.Set] nonce: %w", err)
	}
	sealed := s.aead.Seal(nonce, nonce, []byte(value), []byte(key))
	return s.inner.Set(ctx, key, base64.StdEncoding.EncodeToString(sealed))
}

func (s *Store) Remove(ctx context.Context, key string) error {
	return s.inner.Remove(ctx, key)
}
