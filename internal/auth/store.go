// Package auth holds the credential store backends and the authenticator
// that turns an auth frame into a user.
package auth

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("account not found")
	ErrAlreadyExists = errors.New("account already exists")
)

// Account is a stored credential. Accounts are created once and never mutated.
type Account struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store is the credential store: a username lookup plus a set-account operation.
type Store interface {
	Lookup(ctx context.Context, username string) (*Account, error)
	Create(ctx context.Context, acc *Account) error
	Close() error
}
