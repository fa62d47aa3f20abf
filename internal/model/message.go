package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"time"
	"unicode"
	"unicode/utf8"
)

const MaxSenderLength = 32

var ErrMalformedMessage = errors.New("malformed message")

type (
	// ChatMessage is what peers exchange once an envelope has been opened.
	ChatMessage struct {
		Sender string `json:"sender"`
		Body   string `json:"msg"`
	}

	Origin int

	// Event is one notification handed to a sink.
	Event struct {
		Message ChatMessage
		Origin  Origin
		From    netip.AddrPort // zero unless Origin is OriginRemote
		At      time.Time
	}
)

const (
	OriginLocal Origin = iota
	OriginRemote
	OriginInfo
)

func (o Origin) String() string {
	switch o {
	case OriginLocal:
		return "local"
	case OriginRemote:
		return "remote"
	case OriginInfo:
		return "info"
	default:
		return fmt.Sprintf("origin(%d)", int(o))
	}
}

func (o Origin) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// ValidateSender checks a nickname: 1 to 32 printable characters.
func ValidateSender(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty sender", ErrMalformedMessage)
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("%w: sender is not valid UTF-8", ErrMalformedMessage)
	}
	if n := utf8.RuneCountInString(name); n > MaxSenderLength {
		return fmt.Errorf("%w: sender has %d characters, max %d", ErrMalformedMessage, n, MaxSenderLength)
	}
	for _, r := range name {
		if !unicode.IsPrint(r) {
			return fmt.Errorf("%w: sender contains non-printable character %q", ErrMalformedMessage, r)
		}
	}
	return nil
}

func (m ChatMessage) Validate() error {
	if err := ValidateSender(m.Sender); err != nil {
		return err
	}
	if m.Body == "" {
		return fmt.Errorf("%w: empty body", ErrMalformedMessage)
	}
	if !utf8.ValidString(m.Body) {
		return fmt.Errorf("%w: body is not valid UTF-8", ErrMalformedMessage)
	}
	return nil
}

func Serialize(m ChatMessage) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

func Deserialize(data []byte) (ChatMessage, error) {
	var m ChatMessage
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return ChatMessage{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return ChatMessage{}, fmt.Errorf("%w: trailing data", ErrMalformedMessage)
	}
	if err := m.Validate(); err != nil {
		return ChatMessage{}, err
	}
	return m, nil
}
