// Package crypto provides authenticated encryption for stored platform
// secrets, using AES-256-GCM.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ciphertextPrefix makes ciphertext self-describing so IsEncrypted can
// distinguish plaintext from ciphertext without external state.
const ciphertextPrefix = "lsv1:"

var (
	// ErrKeyNotSet is returned when the vault was constructed without an
	// encryption key.
	ErrKeyNotSet = errors.New("encryption key not configured: set LIFESYNC_SECRET_KEY")

	// ErrDecrypt is returned when ciphertext fails to authenticate (tampered
	// data or wrong key) or is malformed.
	ErrDecrypt = errors.New("ciphertext failed to decrypt")
)

// Vault encrypts and decrypts secrets with AES-256-GCM. Output is the
// ciphertextPrefix followed by base64(nonce || ciphertext || tag).
type Vault struct {
	key []byte // 32 bytes, or nil when encryption is disabled.
}

// NewVault creates a Vault from a 32-byte AES-256 key, or nil to disable
// encryption (all operations return ErrKeyNotSet).
func NewVault(key []byte) (*Vault, error) {
	if key != nil && len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}
	return &Vault{key: key}, nil
}

// NewVaultFromHex creates a Vault from a hex-encoded 32-byte key, as carried
// in configuration. An empty string disables encryption.
func NewVaultFromHex(hexKey string) (*Vault, error) {
	if hexKey == "" {
		return &Vault{}, nil
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decode encryption key: %w", err)
	}
	return NewVault(key)
}

// IsEncrypted reports whether value carries the vault's ciphertext format.
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, ciphertextPrefix)
}

// Encrypt encrypts a plaintext secret.
func (v *Vault) Encrypt(secret string) (string, error) {
	if v.key == nil {
		return "", ErrKeyNotSet
	}

	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("cipher.NewGCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}

	// Seal appends the ciphertext to nonce, producing: nonce || ciphertext || tag.
	sealed := gcm.Seal(nonce, nonce, []byte(secret), nil)
	return ciphertextPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// EncryptIfNeeded encrypts value unless it already carries the ciphertext
// format. Re-submitting an already-encrypted credential through an edit form
// must not double-encrypt.
func (v *Vault) EncryptIfNeeded(value string) (string, error) {
	if IsEncrypted(value) {
		return value, nil
	}
	return v.Encrypt(value)
}

// Decrypt decrypts a value produced by Encrypt. It returns ErrDecrypt when
// the authentication tag does not verify and ErrKeyNotSet when the key is
// unavailable.
func (v *Vault) Decrypt(ciphertext string) (string, error) {
	if v.key == nil {
		return "", ErrKeyNotSet
	}
	if !IsEncrypted(ciphertext) {
		return "", fmt.Errorf("%w: missing format prefix", ErrDecrypt)
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(ciphertext, ciphertextPrefix))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}

	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("cipher.NewGCM: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecrypt)
	}

	nonce, sealed := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}

	return string(plaintext), nil
}

// Mask returns a preview of a plaintext secret safe for external reads:
// everything but the last four characters is blanked.
func Mask(secret string) string {
	if len(secret) <= 4 {
		return "••••"
	}
	return "••••" + secret[len(secret)-4:]
}
