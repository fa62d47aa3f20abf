package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"groupchat/internal/cryptographic/protect"
	"groupchat/internal/model"
	"groupchat/internal/network"
	"groupchat/internal/repository/preferences"
	"groupchat/internal/service/chat"
	"groupchat/internal/utils/log"

	"go.uber.org/zap"
)

type (
	// Session is everything needed to join the group.
	Session struct {
		Nickname string
		Password []byte
		Adapter  network.Adapter
		Port     int
	}

	// Overrides come from flags and environment and win over stored
	// preferences when set.
	Overrides struct {
		Nickname string
		Adapter  string
		// Port is zero unless set explicitly.
		Port     int
		Password []byte
	}
)

func (s Session) ChatConfig() chat.Config {
	return chat.Config{
		Nickname:    s.Nickname,
		LocalIP:     s.Adapter.IP,
		BroadcastIP: s.Adapter.Broadcast,
		Port:        s.Port,
		Password:    s.Password,
	}
}

// resolveSession merges overrides with stored preferences. ready is false
// when the user still has to fill in the setup form.
func resolveSession(prefs *preferences.Preferences, protector protect.Protector, adapters []network.Adapter, o Overrides) (s Session, ready bool) {
	s.Nickname = o.Nickname
	if s.Nickname == "" {
		s.Nickname = prefs.Nickname
	}

	s.Port = o.Port
	if s.Port == 0 {
		s.Port = prefs.Port
	}
	if s.Port == 0 {
		s.Port = chat.DefaultPort
	}

	key := o.Adapter
	if key == "" {
		key = prefs.Adapter
	}
	adapter, err := network.Select(adapters, key)
	if err != nil {
		adapter, err = network.Select(adapters, "")
	}
	s.Adapter = adapter
	haveAdapter := err == nil

	passwordKnown := false
	if len(o.Password) > 0 {
		s.Password = o.Password
		passwordKnown = true
	} else if prefs.EncryptedPassword != "" {
		pw, err := preferences.Password(prefs, protector)
		if err != nil {
			log.Warn("stored password unavailable", zap.Error(err))
		} else {
			s.Password = pw
			passwordKnown = true
		}
	}

	ready = s.Nickname != "" && passwordKnown && haveAdapter
	return s, ready
}

// parseSetup validates the setup form fields.
func parseSetup(nickname, password string, adapterIdx int, port string, adapters []network.Adapter) (Session, error) {
	nickname = strings.TrimSpace(nickname)
	if err := model.ValidateSender(nickname); err != nil {
		return Session{}, fmt.Errorf("nickname: %w", err)
	}
	if adapterIdx < 0 || adapterIdx >= len(adapters) {
		return Session{}, network.ErrNoAdapter
	}
	p, err := strconv.Atoi(strings.TrimSpace(port))
	if err != nil || p < 1 || p > 65535 {
		return Session{}, fmt.Errorf("port %q must be a number between 1 and 65535", port)
	}
	var pw []byte
	if strings.TrimSpace(password) != "" {
		pw = []byte(password)
	}
	return Session{Nickname: nickname, Password: pw, Adapter: adapters[adapterIdx], Port: p}, nil
}

// saveSession stores the session as the new preferences. A password that
// cannot be protected is left out and the rest is still saved.
func saveSession(ctx context.Context, store preferences.Store, protector protect.Protector, prefs *preferences.Preferences, s Session) error {
	prefs.Nickname = s.Nickname
	prefs.Port = s.Port
	prefs.Adapter = s.Adapter.MAC.String()
	if prefs.Adapter == "" {
		prefs.Adapter = s.Adapter.Name
	}

	var perr error
	if err := preferences.SetPassword(prefs, protector, s.Password); err != nil {
		if !errors.Is(err, protect.ErrUnsupported) {
			perr = err
		}
		log.Info("password not stored", zap.Error(err))
	}

	if err := store.Save(ctx, prefs); err != nil {
		return err
	}
	return perr
}
