package core

import (
	"slices"
	"sync"
	"time"

	"github.com/dkeye/Chatter/internal/domain"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"
)

// channelImpl is a threadsafe in-memory channel.
// Every event is encoded and offered to member queues while mu is held, so all
// members observe the same order. Offers never block; no network I/O happens here.
type channelImpl struct {
	name domain.ChannelName

	mu      sync.Mutex
	members map[SessionID]MemberSession
	history *history
	lastSeq uint64
}

func NewChannelService(name domain.ChannelName, historySize int) ChannelService {
	return &channelImpl{
		name:    name,
		members: make(map[SessionID]MemberSession),
		history: newHistory(historySize),
	}
}

func (c *channelImpl) Name() domain.ChannelName { return c.name }

func (c *channelImpl) MemberCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.members)
}

func (c *channelImpl) IsMember(sid SessionID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.members[sid]
	return ok
}

func (c *channelImpl) LastSequence() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeq
}

func (c *channelImpl) MembersSnapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usernamesLocked()
}

func (c *channelImpl) EachMember(fn func(MemberSession)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ms := range c.members {
		fn(ms)
	}
}

func (c *channelImpl) usernamesLocked() []string {
	out := make([]string, 0, len(c.members))
	for _, ms := range c.members {
		out = append(out, ms.Username())
	}
	slices.Sort(out)
	return out
}

// Join adds ms, hands it the history snapshot and announces it to the others.
// The snapshot and the membership change are one atomic step: a message posted
// concurrently is either in the snapshot or delivered live, never both or neither.
func (c *channelImpl) Join(ms MemberSession) (JoinResult, PublishResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, already := c.members[ms.ID()]
	c.members[ms.ID()] = ms

	res := JoinResult{
		History: c.history.slice(0, 0),
		Members: c.usernamesLocked(),
	}
	var pub PublishResult
	joined := Encode(JoinedEvent{Type: EventJoined, Channel: c.name, History: res.History, Members: res.Members})
	if err := ms.Signal().TrySend(joined); err != nil {
		pub.Dropped = append(pub.Dropped, ms)
	} else {
		pub.SendTo++
	}
	if !already {
		ev := Encode(MemberEvent{Type: EventUserJoined, Channel: c.name, Username: ms.Username()})
		pub.merge(c.broadcastLocked(ms.ID(), ev))
	}
	log.Info().Str("module", "core.channel").Str("channel", string(c.name)).Str("sid", string(ms.ID())).
		Str("username", ms.Username()).Int("history", len(res.History)).Msg("member joined")
	return res, pub
}

func (c *channelImpl) Leave(sid SessionID) (bool, PublishResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ms, ok := c.members[sid]
	if !ok {
		return false, PublishResult{}
	}
	delete(c.members, sid)
	ev := Encode(MemberEvent{Type: EventUserLeft, Channel: c.name, Username: ms.Username()})
	pub := c.broadcastLocked(sid, ev)
	log.Info().Str("module", "core.channel").Str("channel", string(c.name)).Str("sid", string(sid)).
		Str("username", ms.Username()).Msg("member left")
	return true, pub
}

// Post sequences body, records it and fans it out. The sender gets a "sent" ack
// instead of its own message.
func (c *channelImpl) Post(from MemberSession, body string) (domain.Message, PublishResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.members[from.ID()]; !ok {
		return domain.Message{}, PublishResult{}, &domain.ChannelError{Reason: domain.ChannelNotMember, Channel: c.name}
	}

	c.lastSeq++
	msg := domain.Message{
		ID:        ulid.Make().String(),
		Channel:   c.name,
		Sender:    from.Username(),
		Body:      body,
		Timestamp: time.Now().UTC(),
		Sequence:  c.lastSeq,
	}
	c.history.push(msg)

	pub := c.broadcastLocked(from.ID(), Encode(MessageEvent{Type: EventMessage, Message: msg}))
	ack := Encode(SentEvent{Type: EventSent, Channel: c.name, ID: msg.ID, Sequence: msg.Sequence, Timestamp: msg.Timestamp})
	if err := from.Signal().TrySend(ack); err != nil {
		pub.Dropped = append(pub.Dropped, from)
	}
	log.Debug().Str("module", "core.channel").Str("channel", string(c.name)).Str("sender", msg.Sender).
		Uint64("seq", msg.Sequence).Int("sent_to", pub.SendTo).Int("dropped", len(pub.Dropped)).Msg("message posted")
	return msg, pub, nil
}

// Broadcast offers data to every member except from. An empty from reaches everyone.
func (c *channelImpl) Broadcast(from SessionID, data Frame) PublishResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.broadcastLocked(from, data)
}

func (c *channelImpl) broadcastLocked(from SessionID, data Frame) PublishResult {
	res := PublishResult{}
	if data == nil {
		return res
	}
	for sid, m := range c.members {
		if sid == from {
			continue
		}
		if err := m.Signal().TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, m)
			continue
		}
		res.SendTo++
	}
	return res
}

func (c *channelImpl) History(since uint64, limit int) []domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history.slice(since, limit)
}
