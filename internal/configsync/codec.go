package configsync

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/flowslide/synccore/internal/syncerrs"
)

// ErrMissingKey is returned by NewCodec when no decryption key is provided
// by the deployment environment (spec §4.8: "decryption key is provided by
// the deployment environment and never persisted").
var ErrMissingKey = errors.New("configsync: no encryption key configured")

// Codec encrypts and decrypts record payloads with ChaCha20-Poly1305 AEAD.
// The key lives only in process memory for the codec's lifetime: callers
// must source it from the deployment environment and never write it to the
// local store or logs.
type Codec struct {
	aead cipher.AEAD
}

// NewCodec builds a Codec from a base64-encoded 32-byte key, as read from
// the deployment environment (e.g. CONFIG_SYNC_KEY). Returns ErrMissingKey
// if keyB64 is empty.
func NewCodec(keyB64 string) (*Codec, error) {
	if keyB64 == "" {
		return nil, ErrMissingKey
	}

	key, err := base64.StdEncoding.DecodeString(keyB64)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding key: %w", syncerrs.ErrInvalidConfig, err)
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", syncerrs.ErrInvalidConfig, err)
	}

	return &Codec{aead: aead}, nil
}

// Encrypt seals plaintext behind a fresh random nonce, prepended to the
// returned ciphertext.
func (c *Codec) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("configsync: generating nonce: %w", err)
	}

	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens ciphertext produced by Encrypt.
func (c *Codec) Decrypt(ciphertext []byte) ([]byte, error) {
	nonceSize := c.aead.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("configsync: ciphertext shorter than nonce")
	}

	nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]

	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("configsync: decrypting payload: %w", err)
	}

	return plaintext, nil
}
