package domain

import (
	"errors"
	"strings"
	"time"
)

const (
	MaxChannelNameLen = 64
	DefaultChannel    = ChannelName("general")
)

var (
	ErrChannelNameEmpty   = errors.New("channel name empty")
	ErrChannelNameTooLong = errors.New("channel name too long")
	ErrChannelNameInvalid = errors.New("channel name contains invalid characters")
	ErrBodyEmpty          = errors.New("message body empty")
	ErrBodyTooLong        = errors.New("message body too long")
)

type ChannelName string

func NewChannelName(raw string) (ChannelName, error) {
	if raw == "" {
		return "", ErrChannelNameEmpty
	}
	if len(raw) > MaxChannelNameLen {
		return "", ErrChannelNameTooLong
	}
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.':
		default:
			return "", ErrChannelNameInvalid
		}
	}
	return ChannelName(raw), nil
}

// Message is immutable once sequenced.
type Message struct {
	ID        string      `json:"id"`
	Channel   ChannelName `json:"channel"`
	Sender    string      `json:"sender"`
	Body      string      `json:"body"`
	Timestamp time.Time   `json:"timestamp"`
	Sequence  uint64      `json:"sequence"`
}

// NormalizeBody trims surrounding whitespace and enforces the size limit.
func NormalizeBody(body string, maxBytes int) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", ErrBodyEmpty
	}
	if maxBytes > 0 && len(body) > maxBytes {
		return "", ErrBodyTooLong
	}
	return body, nil
}
