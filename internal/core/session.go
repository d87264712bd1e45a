package core

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/Chatter/internal/domain"
)

// Session is one authenticated connection. Transport resources stay with the adapter.
type Session struct {
	id          SessionID
	user        *domain.User
	conn        SignalConnection
	connectedAt time.Time

	status atomic.Value // domain.Status

	mu      sync.RWMutex
	channel domain.ChannelName
	media   MediaConnection
	cancel  context.CancelFunc

	closing atomic.Bool
}

func NewSession(id SessionID, user *domain.User, conn SignalConnection) *Session {
	s := &Session{
		id:          id,
		user:        user,
		conn:        conn,
		connectedAt: time.Now(),
	}
	s.status.Store(domain.StatusOnline)
	return s
}

func (s *Session) ID() SessionID            { return s.id }
func (s *Session) User() *domain.User       { return s.user }
func (s *Session) Username() string         { return s.user.Username }
func (s *Session) Visitor() bool            { return s.user.Visitor }
func (s *Session) Signal() SignalConnection { return s.conn }
func (s *Session) ConnectedAt() time.Time   { return s.connectedAt }

func (s *Session) Status() domain.Status {
	return s.status.Load().(domain.Status)
}

func (s *Session) SetStatus(st domain.Status) {
	s.status.Store(st)
}

func (s *Session) Channel() (domain.ChannelName, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.channel, s.channel != ""
}

func (s *Session) SetChannel(name domain.ChannelName) {
	s.mu.Lock()
	s.channel = name
	s.mu.Unlock()
}

func (s *Session) Media() MediaConnection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.media
}

// SwapMedia installs mc and returns the previous connection, if any.
func (s *Session) SwapMedia(mc MediaConnection) MediaConnection {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.media
	s.media = mc
	return old
}

// BindCancel attaches the cancel func of the connection's pump context.
func (s *Session) BindCancel(cancel context.CancelFunc) {
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
}

// Cancel stops the connection pumps. Safe to call before BindCancel.
func (s *Session) Cancel() {
	s.mu.RLock()
	cancel := s.cancel
	s.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
}

// Teardown runs fn at most once per session and reports whether it ran.
// Later callers return immediately, even while the first run is in progress.
func (s *Session) Teardown(fn func()) bool {
	if !s.closing.CompareAndSwap(false, true) {
		return false
	}
	fn()
	return true
}

// Closed reports whether teardown has begun. A flow that mutates shared state
// checks it after the mutation and undoes its work when it lost the race.
func (s *Session) Closed() bool { return s.closing.Load() }

func (s *Session) Presence() domain.Presence {
	ch, _ := s.Channel()
	return domain.Presence{
		Username: s.user.Username,
		Status:   s.Status(),
		Channel:  string(ch),
		Visitor:  s.user.Visitor,
	}
}
