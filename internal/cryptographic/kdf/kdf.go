package kdf

import (
	"crypto/sha256"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/pbkdf2"
)

const (
	Iterations = 200000
	KeySize    = 32
)

// PBKDF2 derives a 32-byte key from password and salt with PBKDF2-HMAC-SHA256.
// The caller owns the returned slice and must Wipe it after use.
func PBKDF2(password, salt []byte) []byte {
	return pbkdf2.Key(password, salt, Iterations, KeySize, sha256.New)
}

// Wipe overwrites b with zeroes.
func Wipe(b []byte) {
	if len(b) == 0 {
		return
	}
	memguard.WipeBytes(b)
}
