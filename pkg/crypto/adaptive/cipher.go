package adaptive

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"runtime"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// CipherType identifies the cipher algorithm.
type CipherType string

const (
	CipherAESGCM   CipherType = "aes-gcm"
	CipherChaCha20 CipherType = "chacha20-poly1305"
)

// KeySize is the key length every cipher accepts.
const KeySize = 32

// hkdfInfo binds derived keys to their use.
const hkdfInfo = "storyline kvstore v1"

var (
	ErrKeySize         = fmt.Errorf("adaptive: key must be %d bytes", KeySize)
	ErrEmptyPassphrase = errors.New("adaptive: passphrase is empty")
	ErrShortCiphertext = errors.New("adaptive: ciphertext too short")
)

// Cipher provides authenticated encryption.
type Cipher interface {
	Type() CipherType

	// Encrypt seals plaintext, binding additionalData.
	Encrypt(plaintext, additionalData []byte) ([]byte, error)

	// Decrypt opens a value produced by Encrypt with the same
	// additionalData.
	Decrypt(ciphertext, additionalData []byte) ([]byte, error)

	NonceSize() int
	Overhead() int
}

// Preferred returns the cipher type New picks on this platform.
func Preferred() CipherType {
	switch runtime.GOARCH {
	case "amd64", "arm64":
		return CipherAESGCM
	default:
		return CipherChaCha20
	}
}

// New creates the preferred cipher for key.
func New(key []byte) (Cipher, error) {
	return NewWithType(key, Preferred())
}

// NewWithType creates a cipher of the given type. An empty type selects
// the preferred one.
func NewWithType(key []byte, cipherType CipherType) (Cipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: got %d", ErrKeySize, len(key))
	}
	if cipherType == "" {
		cipherType = Preferred()
	}

	var (
		a   cipher.AEAD
		err error
	)
	switch cipherType {
	case CipherAESGCM:
		var block cipher.Block
		if block, err = aes.NewCipher(key); err == nil {
			a, err = cipher.NewGCM(block)
		}
	case CipherChaCha20:
		a, err = chacha20poly1305.New(key)
	default:
		return nil, fmt.Errorf("adaptive: unknown cipher type %q", cipherType)
	}
	if err != nil {
		return nil, err
	}
	return &aead{typ: cipherType, aead: a}, nil
}

// FromPassphrase derives a key from passphrase and creates a cipher of
// the given type. The same passphrase always yields the same key.
func FromPassphrase(passphrase string, cipherType CipherType) (Cipher, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}
	key, err := DeriveKey(passphrase)
	if err != nil {
		return nil, err
	}
	return NewWithType(key, cipherType)
}

// DeriveKey derives a KeySize key from passphrase with HKDF-SHA256.
func DeriveKey(passphrase string) ([]byte, error) {
	key := make([]byte, KeySize)
	r := hkdf.New(sha256.New, []byte(passphrase), nil, []byte(hkdfInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("adaptive: derive key: %w", err)
	}
	return key, nil
}

type aead struct {
	typ  CipherType
	aead cipher.AEAD
}

func (c *aead) Type() CipherType { return c.typ }

func (c *aead) NonceSize() int { return c.aead.NonceSize() }

func (c *aead) Overhead() int { return c.aead.Overhead() }

func (c *aead) Encrypt(plaintext, additionalData []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return c.aead.Seal(nonce, nonce, plaintext, additionalData), nil
}

func (c *aead) Decrypt(ciphertext, additionalData []byte) ([]byte, error) {
	n := c.aead.NonceSize()
	if len(ciphertext) < n+c.aead.Overhead() {
		return nil, ErrShortCiphertext
	}
	return c.aead.Open(nil, ciphertext[:n], ciphertext[n:], additionalData)
}
