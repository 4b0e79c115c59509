// Package crypto provides encryption utilities for sensitive deployment
// data. This is part of the Functional Core - all functions are pure with
// no I/O.
//
// Secret values are sealed at rest in deployment documents using NaCl
// secretbox (XSalsa20-Poly1305). The sealing key is symmetric and usually
// handed in through a variable.
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrInvalidKey is returned when the sealing key has the wrong size.
	ErrInvalidKey = errors.New("sealing key must be 32 bytes")

	// ErrInvalidCiphertext is returned when the sealed data is too short to
	// contain a nonce.
	ErrInvalidCiphertext = errors.New("invalid ciphertext: too short")

	// ErrDecryptionFailed is returned when opening fails (wrong key or
	// corrupted data).
	ErrDecryptionFailed = errors.New("decryption failed: authentication mismatch")

	// ErrInvalidPrivateKey is returned when a service account private key
	// cannot be parsed.
	ErrInvalidPrivateKey = errors.New("invalid service account private key")
)

// KeySize is the secretbox key size in bytes.
const KeySize = 32

// nonceSize is the secretbox nonce size in bytes.
const nonceSize = 24

// =============================================================================
// Key Handling
// =============================================================================

// DeriveKey derives a 32-byte sealing key from a passphrase using SHA-256.
//
// Note: This function is deterministic - same input always produces same
// output.
func DeriveKey(passphrase string) []byte {
	hash := sha256.Sum256([]byte(passphrase))
	return hash[:]
}

// GenerateKey creates a random sealing key, base64 encoded for storage in an
// environment variable or variable definition.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// KeyFromString turns a key value from a variable into sealing key bytes.
// A base64 encoding of exactly 32 bytes is used as-is, anything else is
// treated as a passphrase and derived.
func KeyFromString(value string) []byte {
	if decoded, err := base64.StdEncoding.DecodeString(value); err == nil && len(decoded) == KeySize {
		return decoded
	}
	return DeriveKey(value)
}

// =============================================================================
// Secretbox Sealing
// =============================================================================

// Seal encrypts plaintext with NaCl secretbox under the given 32-byte key.
//
// The ciphertext format is: nonce (24 bytes) || box (plaintext + 16 byte tag)
func Seal(plaintext, key []byte) ([]byte, error) {
	sealKey, err := keyArray(key)
	if err != nil {
		return nil, err
	}

	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}

	return secretbox.Seal(nonce[:], plaintext, &nonce, sealKey), nil
}

// Open decrypts ciphertext that was produced by Seal.
func Open(ciphertext, key []byte) ([]byte, error) {
	sealKey, err := keyArray(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < nonceSize {
		return nil, ErrInvalidCiphertext
	}

	var nonce [nonceSize]byte
	copy(nonce[:], ciphertext[:nonceSize])

	plaintext, ok := secretbox.Open(nil, ciphertext[nonceSize:], &nonce, sealKey)
	if !ok {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

func keyArray(key []byte) (*[KeySize]byte, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	var out [KeySize]byte
	copy(out[:], key)
	return &out, nil
}

// =============================================================================
// Base64 Encoding Variants
// =============================================================================

// SealToBase64 seals plaintext and returns base64-encoded ciphertext,
// suitable for embedding in a YAML document.
func SealToBase64(plaintext, key []byte) (string, error) {
	ciphertext, err := Seal(plaintext, key)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// OpenFromBase64 opens base64-encoded ciphertext.
func OpenFromBase64(encoded string, key []byte) ([]byte, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}
	return Open(ciphertext, key)
}

// =============================================================================
// Service Account Keys
// =============================================================================

// GenerateAccountKeyPair generates a new Ed25519 key pair for a service
// account. Returns the private key as PKCS#8 PEM and the public key as
// PKIX PEM, the formats the platform IAM endpoint expects.
func GenerateAccountKeyPair() (privateKeyPEM, publicKeyPEM []byte, err error) {
	pubKey, privKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generate ed25519 key: %w", err)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(privKey)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal private key: %w", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(pubKey)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal public key: %w", err)
	}

	privateKeyPEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})
	publicKeyPEM = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	return privateKeyPEM, publicKeyPEM, nil
}

// PublicKeyFromPrivate recovers the PKIX PEM public key from a PKCS#8 PEM
// private key, used to compare a stored key against the platform state.
func PublicKeyFromPrivate(privateKeyPEM []byte) ([]byte, error) {
	block, _ := pem.Decode(privateKeyPEM)
	if block == nil {
		return nil, ErrInvalidPrivateKey
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, ErrInvalidPrivateKey
	}
	privKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, ErrInvalidPrivateKey
	}

	pubDER, err := x509.MarshalPKIXPublicKey(privKey.Public())
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}), nil
}

// Fingerprint returns the SHA256 fingerprint of a PEM encoded key, used in
// logs to reference keys without leaking them.
func Fingerprint(keyPEM []byte) string {
	hash := sha256.Sum256(keyPEM)
	return "SHA256:" + base64.StdEncoding.EncodeToString(hash[:])
}
