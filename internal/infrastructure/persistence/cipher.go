package persistence

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// ErrCiphertextTooShort is returned when sealed data is truncated
var ErrCiphertextTooShort = errors.New("persistence: ciphertext too short")

const cipherKeyInfo = "marketplace-connector/credentials/v1"

// CredentialCipher seals credential material at rest.
// The associated data binds a ciphertext to the row it belongs to.
type CredentialCipher interface {
	Seal(plaintext, associatedData []byte) ([]byte, error)
	Open(sealed, associatedData []byte) ([]byte, error)
}

// XChaCha20Cipher implements CredentialCipher with XChaCha20-Poly1305.
// Output layout is nonce || ciphertext.
type XChaCha20Cipher struct {
	key []byte
}

// NewCredentialCipher derives a 256-bit key from the configured secret with HKDF-SHA256
func NewCredentialCipher(secret string) (*XChaCha20Cipher, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(cipherKeyInfo)), key); err != nil {
		return nil, fmt.Errorf("failed to derive credential key: %w", err)
	}
	return &XChaCha20Cipher{key: key}, nil
}

// Seal encrypts plaintext with a random nonce
func (c *XChaCha20Cipher) Seal(plaintext, associatedData []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, associatedData), nil
}

// Open decrypts data produced by Seal
func (c *XChaCha20Cipher) Open(sealed, associatedData []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrCiphertextTooShort
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, associatedData)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}
