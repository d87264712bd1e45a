package sfu

import (
	"context"
	"sync"

	"github.com/dkeye/Chatter/internal/core"
	"github.com/dkeye/Chatter/internal/domain"
	"github.com/rs/zerolog/log"
)

// ChunkObserver receives per-chunk delivery counts.
type ChunkObserver interface {
	ObserveChunks(result string, n int)
}

// RelayManager holds at most one relay per channel.
type RelayManager struct {
	ValidateRTP bool
	Observer    ChunkObserver

	mu          sync.RWMutex
	relays      map[domain.ChannelName]*Relay
	byPublisher map[core.SessionID]*Relay
}

func NewRelayManager() *RelayManager {
	return &RelayManager{
		relays:      make(map[domain.ChannelName]*Relay),
		byPublisher: make(map[core.SessionID]*Relay),
	}
}

// StartRelay makes publisher the single publisher of ch and subscribes members.
func (m *RelayManager) StartRelay(ctx context.Context, ch domain.ChannelName, publisher core.MemberSession, members []core.MemberSession) (*Relay, error) {
	logger := log.With().
		Str("module", "relay").
		Str("channel", string(ch)).
		Str("publisher", publisher.Username()).
		Logger()

	m.mu.Lock()
	if _, ok := m.relays[ch]; ok {
		m.mu.Unlock()
		return nil, &domain.StreamError{Reason: domain.StreamPublisherActive, Channel: ch}
	}
	if other, ok := m.byPublisher[publisher.ID()]; ok {
		m.mu.Unlock()
		return nil, &domain.StreamError{Reason: domain.StreamPublisherActive, Channel: other.Channel}
	}
	relay := NewRelay(ctx, ch, publisher, m.ValidateRTP, logger)
	for _, ms := range members {
		relay.AddSubscriber(ms)
	}
	m.relays[ch] = relay
	m.byPublisher[publisher.ID()] = relay
	m.mu.Unlock()

	logger.Info().Int("subscribers", relay.SubscriberCount()).Msg("relay started")
	return relay, nil
}

func (m *RelayManager) relayFor(ch domain.ChannelName, sid core.SessionID) (*Relay, error) {
	m.mu.RLock()
	relay, ok := m.relays[ch]
	m.mu.RUnlock()
	if !ok {
		return nil, &domain.StreamError{Reason: domain.StreamNoActivePublisher, Channel: ch}
	}
	if relay.Publisher.ID() != sid {
		return nil, &domain.StreamError{Reason: domain.StreamNotPublishing, Channel: ch}
	}
	return relay, nil
}

// Forward relays a chunk sent by sid on ch.
func (m *RelayManager) Forward(ch domain.ChannelName, sid core.SessionID, chunk domain.StreamChunk) (ForwardResult, error) {
	relay, err := m.relayFor(ch, sid)
	if err != nil {
		return ForwardResult{}, err
	}
	res, err := relay.Forward(chunk)
	m.observe(res, err)
	return res, err
}

func (m *RelayManager) observe(res ForwardResult, err error) {
	if m.Observer == nil {
		return
	}
	switch {
	case err != nil:
		m.Observer.ObserveChunks("rejected", 1)
	case res.Stale:
		m.Observer.ObserveChunks("stale", 1)
	default:
		m.Observer.ObserveChunks("forwarded", res.SentTo)
		m.Observer.ObserveChunks("dropped", res.Dropped)
	}
}

// StopRelay ends sid's stream and reports the channel it was on.
func (m *RelayManager) StopRelay(sid core.SessionID) (domain.ChannelName, bool) {
	m.mu.Lock()
	relay, ok := m.byPublisher[sid]
	if ok {
		delete(m.byPublisher, sid)
		delete(m.relays, relay.Channel)
	}
	m.mu.Unlock()
	if !ok {
		return "", false
	}
	last := relay.stop()
	relay.logger.Info().Uint64("terminal_seq", last).Msg("relay stopped")
	return relay.Channel, true
}

// AddSubscriber attaches ms to the relay on ch, if any.
func (m *RelayManager) AddSubscriber(ch domain.ChannelName, ms core.MemberSession) (publisher string, ok bool) {
	m.mu.RLock()
	relay, ok := m.relays[ch]
	m.mu.RUnlock()
	if !ok {
		return "", false
	}
	relay.AddSubscriber(ms)
	return relay.Publisher.Username(), true
}

// MarkSubscriberDelete detaches dst from the relay on ch.
func (m *RelayManager) MarkSubscriberDelete(ch domain.ChannelName, dst core.SessionID) {
	m.mu.RLock()
	relay, ok := m.relays[ch]
	m.mu.RUnlock()
	if !ok {
		return
	}
	if sub, ok := relay.subscriber(dst); ok {
		sub.MarkDelete()
	}
}

// SetMuted pauses or resumes delivery of the stream on ch to dst.
func (m *RelayManager) SetMuted(ch domain.ChannelName, dst core.SessionID, muted bool) error {
	m.mu.RLock()
	relay, ok := m.relays[ch]
	m.mu.RUnlock()
	if !ok {
		return &domain.StreamError{Reason: domain.StreamNoActivePublisher, Channel: ch}
	}
	sub, ok := relay.subscriber(dst)
	if !ok || sub.State() == SubscriberDelete {
		return &domain.StreamError{Reason: domain.StreamNoActivePublisher, Channel: ch}
	}
	if muted {
		sub.MarkMuted()
	} else {
		sub.MarkOk()
	}
	return nil
}

// HasRelay reports whether ch has an active publisher.
func (m *RelayManager) HasRelay(ch domain.ChannelName) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.relays[ch]
	return ok
}

// RelayOf returns the relay published by sid.
func (m *RelayManager) RelayOf(sid core.SessionID) (*Relay, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	relay, ok := m.byPublisher[sid]
	return relay, ok
}
