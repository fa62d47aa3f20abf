// Package preferences persists the last used nickname, adapter, port and the
// OS protected password between runs.
package preferences

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"groupchat/internal/cryptographic/protect"
)

type (
	Preferences struct {
		// Adapter is the MAC address of the selected network adapter.
		Adapter           string `yaml:"adapter,omitempty" json:"adapter,omitempty"`
		Nickname          string `yaml:"nickname,omitempty" json:"nickname,omitempty"`
		Port              int    `yaml:"port,omitempty" json:"port,omitempty"`
		EncryptedPassword string `yaml:"encrypted_password,omitempty" json:"encrypted_password,omitempty"`
	}

	Store interface {
		// Load returns zero preferences when nothing has been saved yet.
		Load(ctx context.Context) (*Preferences, error)
		Save(ctx context.Context, p *Preferences) error
	}
)

// SetPassword protects password and stores it in p. An empty password clears
// the stored one. When protection fails nothing is stored.
func SetPassword(p *Preferences, protector protect.Protector, password []byte) error {
	if len(password) == 0 {
		p.EncryptedPassword = ""
		return nil
	}
	sealed, err := protector.Protect(password)
	if err != nil {
		p.EncryptedPassword = ""
		return fmt.Errorf("preferences: protect password: %w", err)
	}
	p.EncryptedPassword = base64.StdEncoding.EncodeToString(sealed)
	return nil
}

// Password returns the stored password, or nil if none is stored.
func Password(p *Preferences, protector protect.Protector) ([]byte, error) {
	if p.EncryptedPassword == "" {
		return nil, nil
	}
	sealed, err := base64.StdEncoding.DecodeString(p.EncryptedPassword)
	if err != nil {
		return nil, fmt.Errorf("preferences: decode password: %w", err)
	}
	plain, err := protector.Unprotect(sealed)
	if err != nil {
		if errors.Is(err, protect.ErrUnsupported) {
			return nil, err
		}
		return nil, fmt.Errorf("preferences: unprotect password: %w", err)
	}
	return plain, nil
}
