package domain

import "errors"

// Coder is implemented by errors that carry a stable wire code.
type Coder interface {
	Code() string
}

// CodeOf returns the wire code of err, or "internal" for untyped errors.
func CodeOf(err error) string {
	var c Coder
	if errors.As(err, &c) {
		return c.Code()
	}
	return "internal"
}

type AuthReason string

const (
	AuthInvalidCredentials AuthReason = "invalid_credentials"
	AuthAlreadyOnline      AuthReason = "already_online"
	AuthAccountExists      AuthReason = "account_exists"
	AuthInvalidRequest     AuthReason = "invalid_request"
	AuthForbidden          AuthReason = "forbidden"
)

// AuthError is terminal for the authentication attempt.
type AuthError struct {
	Reason AuthReason
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return "auth: " + string(e.Reason) + ": " + e.Err.Error()
	}
	return "auth: " + string(e.Reason)
}

func (e *AuthError) Code() string  { return string(e.Reason) }
func (e *AuthError) Unwrap() error { return e.Err }

func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	return ok && t.Reason == e.Reason
}

type ChannelReason string

const (
	ChannelNotFound  ChannelReason = "channel_not_found"
	ChannelForbidden ChannelReason = "forbidden"
	ChannelInvalid   ChannelReason = "invalid_channel"
	ChannelNotMember ChannelReason = "not_in_channel"
	ChannelBadBody   ChannelReason = "invalid_body"
)

type ChannelError struct {
	Reason  ChannelReason
	Channel ChannelName
	Err     error
}

func (e *ChannelError) Error() string {
	msg := "channel"
	if e.Channel != "" {
		msg += " " + string(e.Channel)
	}
	msg += ": " + string(e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ChannelError) Code() string  { return string(e.Reason) }
func (e *ChannelError) Unwrap() error { return e.Err }

func (e *ChannelError) Is(target error) bool {
	t, ok := target.(*ChannelError)
	return ok && t.Reason == e.Reason
}

type StreamReason string

const (
	StreamNoActivePublisher StreamReason = "no_active_publisher"
	StreamNotPublishing     StreamReason = "not_publishing"
	StreamPublisherActive   StreamReason = "publisher_active"
	StreamBadChunk          StreamReason = "bad_chunk"
)

type StreamError struct {
	Reason  StreamReason
	Channel ChannelName
	Err     error
}

func (e *StreamError) Error() string {
	msg := "stream: " + string(e.Reason)
	if e.Channel != "" {
		msg += " on " + string(e.Channel)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StreamError) Code() string  { return string(e.Reason) }
func (e *StreamError) Unwrap() error { return e.Err }

func (e *StreamError) Is(target error) bool {
	t, ok := target.(*StreamError)
	return ok && t.Reason == e.Reason
}

type TransportReason string

const (
	TransportDisconnected TransportReason = "disconnected"
	TransportTimeout      TransportReason = "timeout"
	TransportBackpressure TransportReason = "backpressure"
)

// TransportError always ends the session; it is never retried.
type TransportError struct {
	Reason TransportReason
	Err    error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return "transport: " + string(e.Reason) + ": " + e.Err.Error()
	}
	return "transport: " + string(e.Reason)
}

func (e *TransportError) Code() string  { return string(e.Reason) }
func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool {
	t, ok := target.(*TransportError)
	return ok && t.Reason == e.Reason
}

type ProtocolReason string

const (
	ProtocolBadPayload    ProtocolReason = "bad_payload"
	ProtocolUnknownType   ProtocolReason = "unknown_type"
	ProtocolRateLimited   ProtocolReason = "rate_limited"
	ProtocolInvalidStatus ProtocolReason = "invalid_status"
)

// ProtocolError reports a malformed or refused frame; the session continues.
type ProtocolError struct {
	Reason ProtocolReason
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return "protocol: " + string(e.Reason) + ": " + e.Err.Error()
	}
	return "protocol: " + string(e.Reason)
}

func (e *ProtocolError) Code() string  { return string(e.Reason) }
func (e *ProtocolError) Unwrap() error { return e.Err }

func (e *ProtocolError) Is(target error) bool {
	t, ok := target.(*ProtocolError)
	return ok && t.Reason == e.Reason
}

// Sentinels for errors.Is checks.
var (
	ErrInvalidCredentials = &AuthError{Reason: AuthInvalidCredentials}
	ErrAlreadyOnline      = &AuthError{Reason: AuthAlreadyOnline}
	ErrAccountExists      = &AuthError{Reason: AuthAccountExists}
	ErrAuthForbidden      = &AuthError{Reason: AuthForbidden}

	ErrChannelNotFound  = &ChannelError{Reason: ChannelNotFound}
	ErrChannelForbidden = &ChannelError{Reason: ChannelForbidden}
	ErrChannelInvalid   = &ChannelError{Reason: ChannelInvalid}
	ErrNotInChannel     = &ChannelError{Reason: ChannelNotMember}

	ErrNoActivePublisher = &StreamError{Reason: StreamNoActivePublisher}
	ErrNotPublishing     = &StreamError{Reason: StreamNotPublishing}
	ErrPublisherActive   = &StreamError{Reason: StreamPublisherActive}
	ErrBadChunk          = &StreamError{Reason: StreamBadChunk}

	ErrBadPayload  = &ProtocolError{Reason: ProtocolBadPayload}
	ErrUnknownType = &ProtocolError{Reason: ProtocolUnknownType}
	ErrRateLimited = &ProtocolError{Reason: ProtocolRateLimited}

	ErrDisconnected = &TransportError{Reason: TransportDisconnected}
	ErrTimeout      = &TransportError{Reason: TransportTimeout}
	ErrBackpressure = &TransportError{Reason: TransportBackpressure}
)
