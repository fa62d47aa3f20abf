// Package envelope implements the password-based authenticated encryption used
// for every chat datagram.
//
// Wire layout:
//
//	salt (16) || nonce (12) || ciphertext (len(plaintext)) || tag (16)
//
// The salt and nonce are drawn from crypto/rand on every call, and the AES-256
// key is derived per message with PBKDF2-HMAC-SHA256 from (password, salt).
// No key material outlives a single Seal or Open call.
package envelope

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"groupchat/internal/cryptographic/encryption"
	"groupchat/internal/cryptographic/kdf"
)

const (
	SaltSize  = 16
	NonceSize = encryption.NonceSize
	TagSize   = encryption.TagSize

	// Overhead is the size of an envelope carrying an empty plaintext.
	Overhead = SaltSize + NonceSize + TagSize
)

// DefaultPassword is used when no password is configured. It is public, so
// envelopes sealed with it provide NO confidentiality: anyone running this
// program can read them. It only keeps casual packet captures from showing
// plaintext.
const DefaultPassword = "k9GsDFy;FJlZi1}R)q=>OisYLCdWKJ"

var (
	ErrEmptyPlaintext       = errors.New("envelope: empty plaintext")
	ErrEmptyPassword        = errors.New("envelope: empty password")
	ErrInvalidEnvelope      = errors.New("envelope: invalid envelope")
	ErrAuthenticationFailed = errors.New("envelope: authentication failed")
)

// IsDefault reports whether password is the public fallback password.
func IsDefault(password []byte) bool {
	return string(password) == DefaultPassword
}

// Seal encrypts plaintext under password and returns a new envelope.
func Seal(plaintext, password []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, ErrEmptyPlaintext
	}
	if len(password) == 0 {
		return nil, ErrEmptyPassword
	}

	out := make([]byte, SaltSize+NonceSize, Overhead+len(plaintext))
	if _, err := io.ReadFull(rand.Reader, out); err != nil {
		return nil, fmt.Errorf("envelope: read random: %w", err)
	}
	salt := out[:SaltSize]
	nonce := out[SaltSize:]

	key := kdf.PBKDF2(password, salt)
	defer kdf.Wipe(key)

	return encryption.AEADSeal(out, key, nonce, plaintext, nil)
}

// Open authenticates and decrypts an envelope produced by Seal.
func Open(envelope, password []byte) ([]byte, error) {
	if len(envelope) < Overhead {
		return nil, fmt.Errorf("%w: %d bytes, need at least %d", ErrInvalidEnvelope, len(envelope), Overhead)
	}
	if len(password) == 0 {
		return nil, ErrEmptyPassword
	}

	salt := envelope[:SaltSize]
	nonce := envelope[SaltSize : SaltSize+NonceSize]
	sealed := envelope[SaltSize+NonceSize:]

	key := kdf.PBKDF2(password, salt)
	defer kdf.Wipe(key)

	plain, err := encryption.AEADOpen(key, nonce, sealed, nil)
	if err != nil {
		if errors.Is(err, encryption.ErrOpen) {
			return nil, ErrAuthenticationFailed
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	return plain, nil
}

// Encrypt is Seal for string inputs. The byte copy of plaintext is wiped
// before returning.
func Encrypt(plaintext string, password string) ([]byte, error) {
	pt := []byte(plaintext)
	defer kdf.Wipe(pt)
	pw := []byte(password)
	defer kdf.Wipe(pw)
	return Seal(pt, pw)
}

// Decrypt is Open returning a string. A zero-length ciphertext decrypts to "".
func Decrypt(envelope []byte, password string) (string, error) {
	pw := []byte(password)
	defer kdf.Wipe(pw)
	plain, err := Open(envelope, pw)
	if err != nil {
		return "", err
	}
	s := string(plain)
	kdf.Wipe(plain)
	return s, nil
}
