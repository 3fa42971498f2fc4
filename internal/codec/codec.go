// Package codec is the transparent at-rest encryption wrapper used by
// the queue, relay, and memory stores. It is a pure function pair over
// immutable key material: no key means Encode is the identity, and
// Decode always passes legacy untagged values through unchanged.
package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// prefix tags ciphertext so Decode can tell encrypted values apart
// from plaintext rows written before a key was configured.
const prefix = "mgx1:"

const nonceLen = 12

// ErrDecrypt is returned when a tagged value cannot be authenticated
// or decrypted (wrong key, corruption). It is a hard per-value error.
var ErrDecrypt = errors.New("codec: cannot decrypt value")

type Codec struct {
	aead cipher.AEAD
}

// New builds a Codec from a base64-encoded 32-byte key. An empty key
// yields a passthrough codec.
func New(encodedKey string) (*Codec, error) {
	if encodedKey == "" {
		return &Codec{}, nil
	}
	key, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("decode encryption key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return &Codec{aead: aead}, nil
}

// Enabled reports whether a key is configured.
func (c *Codec) Enabled() bool { return c.aead != nil }

// Encode returns the stored form of plaintext: identity without a key,
// otherwise prefix-tagged base64(nonce || ciphertext).
func (c *Codec) Encode(plaintext string) (string, error) {
	if c.aead == nil {
		return plaintext, nil
	}
	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return prefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decode inverts Encode. Untagged values are returned unchanged so
// rows written before encryption was enabled stay readable.
func (c *Codec) Decode(stored string) (string, error) {
	if !strings.HasPrefix(stored, prefix) {
		return stored, nil
	}
	if c.aead == nil {
		return "", ErrDecrypt
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, prefix))
	if err != nil || len(raw) < nonceLen {
		return "", ErrDecrypt
	}
	plaintext, err := c.aead.Open(nil, raw[:nonceLen], raw[nonceLen:], nil)
	if err != nil {
		return "", ErrDecrypt
	}
	return string(plaintext), nil
}
