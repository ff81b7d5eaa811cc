// Package crypto seals and opens the datagrams exchanged over the tunnel.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"errors"

	"golang.org/x/crypto/pbkdf2"
)

const (
	keyLen     = 32
	saltLen    = 64
	iterations = 1024
	nonceLen   = 12
)

// ErrAuthenticationFailed is returned by Open when the ciphertext's GCM tag
// does not verify, whether from tampering, a wrong key, or corruption.
var ErrAuthenticationFailed = errors.New("crypto: authentication failed")

// nonce is fixed at all zero bytes and reused for every datagram sealed by
// every Envelope. This reproduces the original implementation's envelope
// exactly, including its weakness: with one nonce reused under one key,
// the XOR of two ciphertexts is the XOR of their plaintexts, and an
// observer of sealed datagrams can recover the GCM authentication subkey
// and forge tags. See DESIGN.md.
var nonce = make([]byte, nonceLen)

// DeriveKey stretches a shared-secret string into a 256-bit AES key with
// PBKDF2-HMAC-SHA256, a fixed all-zero 64-byte salt, and 1024 iterations.
// The fixed salt means two processes given the same secret always derive
// the same key, which is the point: the secret, not the salt, is what the
// operator is expected to keep out of an attacker's hands.
func DeriveKey(secret string) [keyLen]byte {
	salt := make([]byte, saltLen)
	derived := pbkdf2.Key([]byte(secret), salt, iterations, keyLen, sha256.New)
	var key [keyLen]byte
	copy(key[:], derived)
	return key
}

// Envelope seals and opens datagram payloads under a single derived key.
type Envelope struct {
	aead cipher.AEAD
}

// NewEnvelope derives a key from secret and constructs the AES-256-GCM AEAD
// that will seal and open every datagram for the lifetime of a session.
func NewEnvelope(secret string) (*Envelope, error) {
	key := DeriveKey(secret)
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Envelope{aead: aead}, nil
}

// Seal authenticates and encrypts plaintext, returning ciphertext||tag.
func (e *Envelope) Seal(plaintext []byte) []byte {
	return e.aead.Seal(nil, nonce, plaintext, nil)
}

// Open verifies and decrypts a sealed datagram. Any failure, whether a
// corrupt datagram or a wrong key, collapses to ErrAuthenticationFailed so
// callers can't distinguish the two.
func (e *Envelope) Open(sealed []byte) ([]byte, error) {
	plaintext, err := e.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	return plaintext, nil
}
