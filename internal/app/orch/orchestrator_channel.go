package orch

import (
	"github.com/dkeye/Chatter/internal/core"
	"github.com/dkeye/Chatter/internal/domain"
	"github.com/rs/zerolog/log"
)

// Join moves s into the named channel, leaving its current one first.
func (o *Orchestrator) Join(s *core.Session, raw string) (domain.ChannelName, core.JoinResult, error) {
	name, err := domain.NewChannelName(raw)
	if err != nil {
		return "", core.JoinResult{}, &domain.ChannelError{Reason: domain.ChannelInvalid, Channel: domain.ChannelName(raw), Err: err}
	}
	if cur, ok := s.Channel(); ok && cur != name {
		o.leave(s, cur)
		log.Info().Str("module", "orch").Str("sid", string(s.ID())).Str("from_channel", string(cur)).Msg("left previous channel")
	}

	ch := o.Channels.GetOrCreate(name)
	res, pub := ch.Join(s)
	s.SetChannel(name)
	publisher, streaming := o.Relays.AddSubscriber(name, s)
	if s.Closed() {
		// torn down mid-join: teardown may have read the old channel
		o.leave(s, name)
		o.applyPolicy(ch, pub)
		return "", core.JoinResult{}, domain.ErrDisconnected
	}
	if streaming {
		_ = s.Signal().TrySend(core.Encode(core.StreamEvent{Type: core.EventStreamStarted, Channel: name, Publisher: publisher}))
	}
	log.Info().Str("module", "orch").Str("sid", string(s.ID())).Str("channel", string(name)).Msg("joined channel")
	o.applyPolicy(ch, pub)
	return name, res, nil
}

// Leave removes s from its current channel.
func (o *Orchestrator) Leave(s *core.Session) (domain.ChannelName, error) {
	name, ok := s.Channel()
	if !ok {
		return "", &domain.ChannelError{Reason: domain.ChannelNotMember}
	}
	o.leave(s, name)
	return name, nil
}

func (o *Orchestrator) leave(s *core.Session, name domain.ChannelName) {
	if relay, ok := o.Relays.RelayOf(s.ID()); ok && relay.Channel == name {
		o.stopStream(s)
	}
	s.SetChannel("")
	ch, ok := o.Channels.Get(name)
	if !ok {
		o.Relays.MarkSubscriberDelete(name, s.ID())
		return
	}
	_, pub := ch.Leave(s.ID())
	// after ch.Leave so a relay subscribing the member list cannot re-add s
	o.Relays.MarkSubscriberDelete(name, s.ID())
	o.applyPolicy(ch, pub)
}

// Post sends body to s's current channel. When channel is non-empty it must
// name the current channel.
func (o *Orchestrator) Post(s *core.Session, channel, body string) (domain.Message, error) {
	name, ok := s.Channel()
	if !ok || (channel != "" && domain.ChannelName(channel) != name) {
		return domain.Message{}, &domain.ChannelError{Reason: domain.ChannelNotMember, Channel: domain.ChannelName(channel)}
	}
	body, err := domain.NormalizeBody(body, o.MaxBodyBytes)
	if err != nil {
		return domain.Message{}, &domain.ChannelError{Reason: domain.ChannelBadBody, Channel: name, Err: err}
	}
	ch, ok := o.Channels.Get(name)
	if !ok {
		return domain.Message{}, &domain.ChannelError{Reason: domain.ChannelNotFound, Channel: name}
	}
	msg, pub, err := ch.Post(s, body)
	if err != nil {
		return domain.Message{}, err
	}
	o.Metrics.MessagePosted()
	o.applyPolicy(ch, pub)
	return msg, nil
}

// History reads a channel's recent messages. An empty channel means the
// session's current one.
func (o *Orchestrator) History(s *core.Session, channel string, since uint64, limit int) (domain.ChannelName, []domain.Message, error) {
	name := domain.ChannelName(channel)
	if name == "" {
		cur, ok := s.Channel()
		if !ok {
			return "", nil, &domain.ChannelError{Reason: domain.ChannelNotMember}
		}
		name = cur
	}
	msgs, err := o.ChannelHistory(name, since, limit)
	return name, msgs, err
}

func (o *Orchestrator) ChannelHistory(name domain.ChannelName, since uint64, limit int) ([]domain.Message, error) {
	ch, ok := o.Channels.Get(name)
	if !ok {
		return nil, &domain.ChannelError{Reason: domain.ChannelNotFound, Channel: name}
	}
	return ch.History(since, limit), nil
}

// SetStatus changes s's presence status and announces it. Visitors and
// publishers cannot pick a status.
func (o *Orchestrator) SetStatus(s *core.Session, raw string) (domain.Status, error) {
	if s.Visitor() {
		return "", &domain.ChannelError{Reason: domain.ChannelForbidden}
	}
	st, err := domain.ParseStatus(raw)
	if err != nil {
		return "", &domain.ProtocolError{Reason: domain.ProtocolInvalidStatus, Err: err}
	}
	if s.Status() == domain.StatusStreaming {
		return "", &domain.StreamError{Reason: domain.StreamPublisherActive}
	}
	s.SetStatus(st)
	o.announcePresence(s)
	return st, nil
}

// announcePresence tells s's channel, or only s when idle, about its status.
func (o *Orchestrator) announcePresence(s *core.Session) {
	name, _ := s.Channel()
	frame := core.Encode(core.PresenceEvent{Type: core.EventPresence, Channel: name, Username: s.Username(), Status: s.Status()})
	if name == "" {
		_ = s.Signal().TrySend(frame)
		return
	}
	ch, ok := o.Channels.Get(name)
	if !ok {
		return
	}
	o.applyPolicy(ch, ch.Broadcast("", frame))
}

func (o *Orchestrator) broadcast(name domain.ChannelName, v any) {
	ch, ok := o.Channels.Get(name)
	if !ok {
		return
	}
	o.applyPolicy(ch, ch.Broadcast("", core.Encode(v)))
}
