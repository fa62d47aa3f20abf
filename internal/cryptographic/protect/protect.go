// Package protect encrypts small secrets with a key owned by the operating
// system account, so stored preferences never hold a password in clear.
package protect

import "errors"

var ErrUnsupported = errors.New("secret protection is not supported on this platform")

type Protector interface {
	Protect(plain []byte) ([]byte, error)
	Unprotect(sealed []byte) ([]byte, error)
}

// Default returns the protector for the current platform.
func Default() Protector { return platform{} }
