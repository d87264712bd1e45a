package domain

import "fmt"

type Status string

const (
	StatusOnline    Status = "online"
	StatusAway      Status = "away"
	StatusStreaming Status = "streaming"
)

// ParseStatus accepts the statuses a client may set explicitly.
// "streaming" is owned by the relay and cannot be chosen by hand.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusOnline, StatusAway:
		return Status(s), nil
	default:
		return "", fmt.Errorf("invalid status %q", s)
	}
}
