package signal

import (
	"sync"

	"github.com/dkeye/Chatter/internal/core"
	"github.com/dkeye/Chatter/internal/domain"
	"github.com/gorilla/websocket"
)

var _ core.SignalConnection = (*WsSignalConn)(nil)

// WsSignalConn queues outbound frames for the write pump. Chat events and
// stream chunks use separate queues so a full media queue never blocks chat.
type WsSignalConn struct {
	conn  *websocket.Conn
	send  chan core.Frame
	media chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func NewWsSignalConn(ws *websocket.Conn, sendBuffer, mediaBuffer int) *WsSignalConn {
	return &WsSignalConn{
		conn:  ws,
		send:  make(chan core.Frame, sendBuffer),
		media: make(chan core.Frame, mediaBuffer),
	}
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnClosed
	}
	select {
	case c.send <- f:
		return nil
	default:
		return domain.ErrBackpressure
	}
}

func (c *WsSignalConn) TrySendMedia(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnClosed
	}
	select {
	case c.media <- f:
		return nil
	default:
		return domain.ErrBackpressure
	}
}

// ForceSendMedia evicts the oldest queued chunk when the media queue is full.
func (c *WsSignalConn) ForceSendMedia(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnClosed
	}
	for {
		select {
		case c.media <- f:
			return nil
		default:
		}
		select {
		case <-c.media:
		default:
		}
	}
}

// Close stops accepting frames. Frames already queued are still flushed by
// the write pump, which then closes the socket.
func (c *WsSignalConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *WsSignalConn) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}
