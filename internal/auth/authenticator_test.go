package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/Chatter/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newAuthenticator(t *testing.T, allowVisitors bool) (*Authenticator, *MemoryStore, *[]string) {
	t.Helper()
	store := NewMemoryStore()
	tokens, err := NewTokenService(testSecret, time.Hour)
	require.NoError(t, err)
	var seen []string
	a, err := NewAuthenticator(store, tokens, Options{
		AllowVisitors: allowVisitors,
		BcryptCost:    bcrypt.MinCost,
		Observe:       func(r string) { seen = append(seen, r) },
	})
	require.NoError(t, err)
	return a, store, &seen
}

func TestAuthenticate_Login(t *testing.T) {
	a, _, seen := newAuthenticator(t, false)
	ctx := context.Background()
	require.NoError(t, a.Register(ctx, "bao", "pw-bao"))

	res, err := a.Authenticate(ctx, Request{Username: "bao", Password: "pw-bao"})
	require.NoError(t, err)
	assert.Equal(t, "bao", res.User.Username)
	assert.NotEmpty(t, res.Token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), res.ExpiresAt, time.Minute)

	_, err = a.Authenticate(ctx, Request{Username: "hacker", Password: "1234"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, err = a.Authenticate(ctx, Request{Username: "bao", Password: "wrong"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	assert.Equal(t, []string{"ok", "invalid_credentials", "invalid_credentials"}, *seen)
}

func TestAuthenticate_NewAccount(t *testing.T) {
	a, store, _ := newAuthenticator(t, false)
	ctx := context.Background()

	res, err := a.Authenticate(ctx, Request{Username: "aob", Password: "pw", NewAccount: true})
	require.NoError(t, err)
	assert.Equal(t, "aob", res.User.Username)

	acc, err := store.Lookup(ctx, "aob")
	require.NoError(t, err)
	assert.NotEqual(t, "pw", acc.PasswordHash)

	_, err = a.Authenticate(ctx, Request{Username: "aob", Password: "pw", NewAccount: true})
	assert.ErrorIs(t, err, domain.ErrAccountExists)

	_, err = a.Authenticate(ctx, Request{Username: "", Password: "pw", NewAccount: true})
	assert.Equal(t, "invalid_request", domain.CodeOf(err))

	_, err = a.Authenticate(ctx, Request{Username: "long", Password: strings.Repeat("p", 100), NewAccount: true})
	assert.Equal(t, "invalid_request", domain.CodeOf(err))
}

func TestAuthenticate_Visitor(t *testing.T) {
	closed, _, _ := newAuthenticator(t, false)
	_, err := closed.Authenticate(context.Background(), Request{Username: "guest", Visitor: true})
	assert.ErrorIs(t, err, domain.ErrAuthForbidden)

	open, _, _ := newAuthenticator(t, true)
	res, err := open.Authenticate(context.Background(), Request{Username: "guest", Visitor: true})
	require.NoError(t, err)
	assert.Equal(t, "visitor:guest", res.User.Username)
	assert.True(t, res.User.Visitor)

	again, err := open.Authenticate(context.Background(), Request{Token: res.Token})
	require.NoError(t, err)
	assert.Equal(t, "visitor:guest", again.User.Username)
	assert.True(t, again.User.Visitor)
}

func TestAuthenticate_TokenResume(t *testing.T) {
	a, _, _ := newAuthenticator(t, false)
	ctx := context.Background()
	require.NoError(t, a.Register(ctx, "bao", "pw-bao"))
	res, err := a.Authenticate(ctx, Request{Username: "bao", Password: "pw-bao"})
	require.NoError(t, err)

	resumed, err := a.Authenticate(ctx, Request{Token: res.Token})
	require.NoError(t, err)
	assert.Equal(t, "bao", resumed.User.Username)

	_, err = a.Authenticate(ctx, Request{Token: res.Token + "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestTokenService(t *testing.T) {
	_, err := NewTokenService("short", time.Hour)
	assert.ErrorIs(t, err, ErrWeakSecretKey)
	_, err = NewTokenService(testSecret, 0)
	assert.ErrorIs(t, err, ErrInvalidDuration)

	ephemeral, err := NewTokenService("", time.Hour)
	require.NoError(t, err)
	tok, _, err := ephemeral.Generate(&domain.User{Username: "bao"})
	require.NoError(t, err)
	claims, err := ephemeral.Validate(tok)
	require.NoError(t, err)
	assert.Equal(t, "bao", claims.Username)

	other, err := NewTokenService(testSecret, time.Hour)
	require.NoError(t, err)
	_, err = other.Validate(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := NewTokenService(testSecret, time.Nanosecond)
	require.NoError(t, err)
	tok, _, err = expired.Generate(&domain.User{Username: "bao"})
	require.NoError(t, err)
	time.Sleep(1100 * time.Millisecond)
	_, err = expired.Validate(tok)
	assert.ErrorIs(t, err, ErrExpiredToken)
}
