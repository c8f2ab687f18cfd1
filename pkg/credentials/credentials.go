// Package credentials seals provider configs for storage in the catalog.
//
// Only the schema's sensitive fields are encrypted, each on its own, so the
// stored document still shows which non-secret settings a provider uses.
package credentials

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// sealedPrefix marks an encrypted field value.
const sealedPrefix = "enc:v1:"

// ErrDecrypt is returned when a sealed value cannot be opened, usually
// because the secret changed.
var ErrDecrypt = errors.New("failed to decrypt credentials")

// Cipher encrypts provider configs at rest.
type Cipher interface {
	Encrypt(config map[string]any, sensitiveFields []string) (string, error)
	Decrypt(ciphertext string, sensitiveFields []string) (map[string]any, error)
}

// AESCipher seals sensitive fields with AES-256-GCM under a key derived from
// a secret with argon2id. The field name is bound as associated data.
type AESCipher struct {
	aead cipher.AEAD
}

var _ Cipher = (*AESCipher)(nil)

// NewAESCipher derives the key from secret and salt.
func NewAESCipher(secret, salt string) (*AESCipher, error) {
	if secret == "" {
		return nil, fmt.Errorf("credentials secret is required")
	}
	if len(salt) < 8 {
		return nil, fmt.Errorf("credentials salt must be at least 8 bytes")
	}

	key := argon2.IDKey([]byte(secret), []byte(salt), 1, 64*1024, 4, 32)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &AESCipher{aead: aead}, nil
}

// Encrypt seals every present sensitive field and encodes the document.
func (c *AESCipher) Encrypt(config map[string]any, sensitiveFields []string) (string, error) {
	doc := make(map[string]any, len(config))
	for k, v := range config {
		doc[k] = v
	}

	for _, field := range sensitiveFields {
		v, ok := doc[field]
		if !ok || v == nil {
			continue
		}
		sealed, err := c.seal(field, v)
		if err != nil {
			return "", fmt.Errorf("failed to seal %s: %w", field, err)
		}
		doc[field] = sealed
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Decrypt reverses Encrypt. Sensitive fields stored without the sealed
// prefix are returned as they are.
func (c *AESCipher) Decrypt(ciphertext string, sensitiveFields []string) (map[string]any, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if doc == nil {
		doc = make(map[string]any)
	}

	for _, field := range sensitiveFields {
		s, ok := doc[field].(string)
		if !ok || !strings.HasPrefix(s, sealedPrefix) {
			continue
		}
		v, err := c.open(field, strings.TrimPrefix(s, sealedPrefix))
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", field, err)
		}
		doc[field] = v
	}
	return doc, nil
}

func (c *AESCipher) seal(field string, v any) (string, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	sealed := c.aead.Seal(nonce, nonce, plaintext, []byte(field))
	return sealedPrefix + base64.RawStdEncoding.EncodeToString(sealed), nil
}

func (c *AESCipher) open(field, encoded string) (any, error) {
	raw, err := base64.RawStdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrDecrypt
	}
	if len(raw) < c.aead.NonceSize() {
		return nil, ErrDecrypt
	}

	nonce, sealed := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, sealed, []byte(field))
	if err != nil {
		return nil, ErrDecrypt
	}

	var v any
	if err := json.Unmarshal(plaintext, &v); err != nil {
		return nil, ErrDecrypt
	}
	return v, nil
}
