package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUser(t *testing.T) {
	u, err := NewUser("bao")
	require.NoError(t, err)
	assert.Equal(t, "bao", u.Username)
	assert.False(t, u.Visitor)
	assert.NotEmpty(t, u.ID)

	_, err = NewUser("")
	assert.ErrorIs(t, err, ErrUsernameEmpty)

	_, err = NewUser(strings.Repeat("x", MaxUsernameLen+1))
	assert.ErrorIs(t, err, ErrUsernameTooLong)

	_, err = NewUser("two words")
	assert.ErrorIs(t, err, ErrUsernameInvalid)

	_, err = NewUser("visitor:sneaky")
	assert.ErrorIs(t, err, ErrUsernameInvalid)
}

func TestNewVisitor(t *testing.T) {
	u, err := NewVisitor("guest1")
	require.NoError(t, err)
	assert.Equal(t, "visitor:guest1", u.Username)
	assert.True(t, u.Visitor)

	u, err = NewVisitor("visitor:guest2")
	require.NoError(t, err)
	assert.Equal(t, "visitor:guest2", u.Username)

	_, err = NewVisitor(strings.Repeat("g", MaxUsernameLen))
	assert.ErrorIs(t, err, ErrUsernameTooLong)
}

func TestChannelName(t *testing.T) {
	name, err := NewChannelName("general")
	require.NoError(t, err)
	assert.Equal(t, DefaultChannel, name)

	_, err = NewChannelName("dev-ops_2.0")
	assert.NoError(t, err)

	_, err = NewChannelName("")
	assert.ErrorIs(t, err, ErrChannelNameEmpty)

	_, err = NewChannelName("has space")
	assert.ErrorIs(t, err, ErrChannelNameInvalid)

	_, err = NewChannelName(strings.Repeat("c", MaxChannelNameLen+1))
	assert.ErrorIs(t, err, ErrChannelNameTooLong)
}

func TestNormalizeBody(t *testing.T) {
	b, err := NormalizeBody("  hi  ", 10)
	require.NoError(t, err)
	assert.Equal(t, "hi", b)

	_, err = NormalizeBody("   ", 10)
	assert.ErrorIs(t, err, ErrBodyEmpty)

	_, err = NormalizeBody("0123456789a", 10)
	assert.ErrorIs(t, err, ErrBodyTooLong)
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("away")
	require.NoError(t, err)
	assert.Equal(t, StatusAway, s)

	_, err = ParseStatus("streaming")
	assert.Error(t, err)
}

func TestErrorTaxonomy(t *testing.T) {
	err := fmt.Errorf("login: %w", &AuthError{Reason: AuthInvalidCredentials})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.NotErrorIs(t, err, ErrAlreadyOnline)
	assert.Equal(t, "invalid_credentials", CodeOf(err))

	var ce *ChannelError
	err = &ChannelError{Reason: ChannelNotMember, Channel: "general"}
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, ChannelName("general"), ce.Channel)
	assert.Contains(t, err.Error(), "general")

	assert.Equal(t, "no_active_publisher", CodeOf(ErrNoActivePublisher))
	assert.Equal(t, "internal", CodeOf(errors.New("boom")))

	wrapped := &TransportError{Reason: TransportTimeout, Err: errors.New("deadline")}
	assert.ErrorIs(t, wrapped, ErrTimeout)
	assert.Equal(t, "transport: timeout: deadline", wrapped.Error())
}
