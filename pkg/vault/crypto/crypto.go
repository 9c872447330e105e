// Package crypto implements the vault's key derivation and authenticated
// encryption: PBKDF2-HMAC-SHA256 master keys and AES-256-GCM envelopes with
// hex-encoded fields. Payloads are JSON-encoded before encryption.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/entrhq/autofill/pkg/types"
	"golang.org/x/crypto/pbkdf2"
)

const (
	Iterations = 100000
	KeySize    = 32
	SaltSize   = 16
	IVSize     = 12
)

// ErrDecrypt is returned for any envelope that does not authenticate under
// the given key, including malformed envelopes.
var ErrDecrypt = errors.New("decryption failed")

// DeriveMasterKey derives a 256-bit key from a password and salt.
func DeriveMasterKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, Iterations, KeySize, sha256.New)
}

// GenerateKey returns a random 256-bit data key.
func GenerateKey() ([]byte, error) {
	return random(KeySize)
}

// GenerateSalt returns a random salt for DeriveMasterKey.
func GenerateSalt() ([]byte, error) {
	return random(SaltSize)
}

// Encrypt JSON-encodes v and seals it under key with a fresh random IV.
func Encrypt(v any, key []byte) (types.Envelope, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return types.Envelope{}, fmt.Errorf("failed to encode payload: %w", err)
	}

	gcm, err := newGCM(key)
	if err != nil {
		return types.Envelope{}, err
	}

	iv, err := random(IVSize)
	if err != nil {
		return types.Envelope{}, err
	}

	return types.Envelope{
		Ciphertext: hex.EncodeToString(gcm.Seal(nil, iv, plaintext, nil)),
		IV:         hex.EncodeToString(iv),
	}, nil
}

// Decrypt opens env under key and JSON-decodes the payload into out.
func Decrypt(env types.Envelope, key []byte, out any) error {
	ciphertext, err := hex.DecodeString(env.Ciphertext)
	if err != nil {
		return ErrDecrypt
	}
	iv, err := hex.DecodeString(env.IV)
	if err != nil || len(iv) != IVSize {
		return ErrDecrypt
	}

	gcm, err := newGCM(key)
	if err != nil {
		return ErrDecrypt
	}

	plaintext, err := gcm.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return ErrDecrypt
	}
	defer Zero(plaintext)

	if err := json.Unmarshal(plaintext, out); err != nil {
		return ErrDecrypt
	}
	return nil
}

// DecryptString opens an envelope holding a JSON string.
func DecryptString(env types.Envelope, key []byte) (string, error) {
	var s string
	if err := Decrypt(env, key, &s); err != nil {
		return "", err
	}
	return s, nil
}

// Zero overwrites b.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))
	}
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

func random(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("failed to read random bytes: %w", err)
	}
	return b, nil
}
