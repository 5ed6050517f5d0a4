// Package aead implements the stateless AES-256-GCM cipher engine. Encrypt
// always uses the registry's current key; decrypt resolves the key version
// embedded in the stored payload, so data written before a rotation keeps
// decrypting after a new current version is introduced.
package aead

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/root-sector/customer-data-protection-module-encryption/keys"
	"github.com/root-sector/customer-data-protection-module-encryption/payload"
	"github.com/root-sector/customer-data-protection-module-encryption/types"
)

// ErrAuthenticationFailed indicates the GCM tag check failed: tampering, a
// wrong key, or corrupted storage. The cause is deliberately not
// distinguished to avoid acting as a padding/tamper oracle.
var ErrAuthenticationFailed = errors.New("authentication failed: bad ciphertext")

// Engine is a stateless authenticated-encryption primitive over the key
// registry. Safe for concurrent use.
type Engine struct {
	registry *keys.Registry
}

// New creates a cipher engine bound to a key registry.
func New(registry *keys.Registry) (*Engine, error) {
	if registry == nil {
		return nil, fmt.Errorf("key registry is required")
	}
	return &Engine{registry: registry}, nil
}

// aad binds the key version into the authenticated data so a payload cannot
// be replayed under a different version header.
func aad(version uint32) []byte {
	return []byte(fmt.Sprintf("v%d", version))
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// EncryptString encrypts a field value under the current key version and
// returns its encoded storable form. Empty input passes through unchanged:
// wrapping the empty string would leak a fixed-size ciphertext for a null
// sentinel and complicate storage semantics.
func (e *Engine) EncryptString(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	km := e.registry.Current()
	gcm, err := newGCM(km.Key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, types.NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), aad(km.Version))
	split := len(sealed) - types.TagSize

	return payload.Encode(types.EncodedPayload{
		Version:    km.Version,
		Nonce:      nonce,
		Ciphertext: sealed[:split],
		Tag:        sealed[split:],
	}), nil
}

// DecryptString is the inverse of EncryptString. Values that do not decode
// as payloads are returned unchanged, tolerating legacy plaintext rows
// during migration windows. A value that does decode but fails the tag check
// is a hard error, never a silent pass-through.
func (e *Engine) DecryptString(value string) (string, error) {
	p, ok := payload.Decode(value)
	if !ok {
		return value, nil
	}

	km, err := e.registry.ByVersion(p.Version)
	if err != nil {
		return "", err
	}

	gcm, err := newGCM(km.Key)
	if err != nil {
		return "", err
	}

	sealed := make([]byte, 0, len(p.Ciphertext)+len(p.Tag))
	sealed = append(sealed, p.Ciphertext...)
	sealed = append(sealed, p.Tag...)

	plaintext, err := gcm.Open(nil, p.Nonce, sealed, aad(p.Version))
	if err != nil {
		return "", ErrAuthenticationFailed
	}
	return string(plaintext), nil
}

// CurrentVersion exposes the registry's current version tag, used by the
// migration engine for idempotent skip detection.
func (e *Engine) CurrentVersion() uint32 {
	return e.registry.CurrentVersion()
}
