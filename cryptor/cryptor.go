package cryptor

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"
)

const keySize = 32

var (
	// ErrInvalidKey is returned when the configured key material is empty.
	ErrInvalidKey = errors.New("invalid cipher key")
	// ErrTokenMalformed is returned when a token cannot be split into nonce
	// and ciphertext. The token was never produced by this cipher.
	ErrTokenMalformed = errors.New("malformed token")
	// ErrDecryptFailed is returned when a structurally valid token fails
	// authenticated decryption.
	ErrDecryptFailed = errors.New("token decryption failed")
)

// Cryptor seals and opens short strings with AES-256-GCM.
// Safe for concurrent use once constructed.
type Cryptor struct {
	aead      cipher.AEAD
	nonceSize int
}

// New derives the cipher key and returns a ready [Cryptor].
// A 32-byte key is used directly; any other non-empty key is hashed
// with SHA-256 first.
func New(key []byte) (*Cryptor, error) {
	if len(key) == 0 {
		return nil, ErrInvalidKey
	}

	material := key
	if len(material) != keySize {
		digest := sha256.Sum256(key)
		material = digest[:]
	}

	block, err := aes.NewCipher(material)
	if err != nil {
		return nil, err
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &Cryptor{
		aead:      aead,
		nonceSize: aead.NonceSize(),
	}, nil
}

// Encrypt seals plaintext and returns the transportable token.
func (c *Cryptor) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)

	return hex.EncodeToString(nonce) + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a token produced by [Cryptor.Encrypt]. Structural problems
// report [ErrTokenMalformed]; authentication failures (wrong key, tampered
// ciphertext) report [ErrDecryptFailed].
func (c *Cryptor) Decrypt(token string) (string, error) {
	prefixLen := c.nonceSize * 2
	if len(token) <= prefixLen {
		return "", ErrTokenMalformed
	}

	nonce, err := hex.DecodeString(token[:prefixLen])
	if err != nil {
		return "", ErrTokenMalformed
	}

	sealed, err := base64.RawURLEncoding.DecodeString(token[prefixLen:])
	if err != nil {
		return "", ErrTokenMalformed
	}

	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrDecryptFailed
	}

	return string(plaintext), nil
}
