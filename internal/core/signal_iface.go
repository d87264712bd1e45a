package core

import "errors"

// Frame is one encoded wire event.
type Frame []byte

var ErrConnClosed = errors.New("connection closed")

// SignalConnection abstracts a session's outbound transport.
// Owned by the adapter; the adapter must Close() it.
// All send methods are non-blocking and safe for concurrent use.
type SignalConnection interface {
	// TrySend queues an ordered event; fails when the queue is full.
	TrySend(Frame) error
	// TrySendMedia queues a stream chunk; the newest frame is dropped when full.
	TrySendMedia(Frame) error
	// ForceSendMedia queues a stream chunk, evicting the oldest queued one when full.
	ForceSendMedia(Frame) error
	Close()
}
