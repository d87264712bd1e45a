// Package domain contains entities and validation rules, no transport or locking.
package domain

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

const (
	MaxUsernameLen = 36
	MaxPasswordLen = 72 // bcrypt ignores everything past 72 bytes

	VisitorPrefix = "visitor:"
)

var (
	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameEmpty   = errors.New("username empty")
	ErrUsernameInvalid = errors.New("username contains invalid characters")
	ErrPasswordEmpty   = errors.New("password empty")
	ErrPasswordTooLong = errors.New("password too long")
)

type UserID string

type User struct {
	ID       UserID `json:"id"`
	Username string `json:"username"`
	Visitor  bool   `json:"visitor,omitempty"`
}

// NewUser validates username and builds a registered user.
func NewUser(username string) (*User, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	return &User{ID: UserID(uuid.NewString()), Username: username}, nil
}

// NewVisitor builds a guest user named "visitor:<name>".
func NewVisitor(name string) (*User, error) {
	name = strings.TrimPrefix(name, VisitorPrefix)
	if err := ValidateUsername(name); err != nil {
		return nil, err
	}
	full := VisitorPrefix + name
	if len(full) > MaxUsernameLen {
		return nil, ErrUsernameTooLong
	}
	return &User{ID: UserID(uuid.NewString()), Username: full, Visitor: true}, nil
}

func ValidateUsername(username string) error {
	if len(username) == 0 {
		return ErrUsernameEmpty
	}
	if len(username) > MaxUsernameLen {
		return ErrUsernameTooLong
	}
	if strings.HasPrefix(username, VisitorPrefix) {
		return ErrUsernameInvalid
	}
	for _, r := range username {
		if r <= ' ' || r == 0x7f {
			return ErrUsernameInvalid
		}
	}
	return nil
}

func ValidatePassword(password string) error {
	if len(password) == 0 {
		return ErrPasswordEmpty
	}
	if len(password) > MaxPasswordLen {
		return ErrPasswordTooLong
	}
	return nil
}
