package orch

import (
	"context"

	"github.com/dkeye/Chatter/internal/app/sfu"
	"github.com/dkeye/Chatter/internal/core"
	"github.com/dkeye/Chatter/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// StartStream makes s the publisher of its current channel.
func (o *Orchestrator) StartStream(s *core.Session) (domain.ChannelName, error) {
	if s.Visitor() {
		return "", &domain.ChannelError{Reason: domain.ChannelForbidden}
	}
	name, ok := s.Channel()
	if !ok {
		return "", &domain.ChannelError{Reason: domain.ChannelNotMember}
	}
	ch, ok := o.Channels.Get(name)
	if !ok {
		return "", &domain.ChannelError{Reason: domain.ChannelNotFound, Channel: name}
	}
	relay, err := o.Relays.StartRelay(context.Background(), name, s, nil)
	if err != nil {
		return "", err
	}
	// The relay is registered first, so a member joining from now on subscribes
	// itself and a member leaving from now on unsubscribes itself.
	ch.EachMember(relay.AddSubscriber)
	if s.Closed() {
		o.Relays.StopRelay(s.ID())
		return "", domain.ErrDisconnected
	}

	s.SetStatus(domain.StatusStreaming)
	o.broadcast(name, core.StreamEvent{Type: core.EventStreamStarted, Channel: name, Publisher: s.Username()})
	o.announcePresence(s)
	return name, nil
}

// StopStream ends s's stream; subscribers get the terminal chunk.
func (o *Orchestrator) StopStream(s *core.Session) (domain.ChannelName, error) {
	name, ok := o.stopStream(s)
	if !ok {
		return "", &domain.StreamError{Reason: domain.StreamNotPublishing}
	}
	return name, nil
}

func (o *Orchestrator) stopStream(s *core.Session) (domain.ChannelName, bool) {
	if mc := s.SwapMedia(nil); mc != nil {
		mc.Close()
	}
	name, ok := o.Relays.StopRelay(s.ID())
	if !ok {
		return "", false
	}
	s.SetStatus(domain.StatusOnline)
	o.broadcast(name, core.StreamEvent{Type: core.EventStreamStopped, Channel: name, Publisher: s.Username()})
	o.announcePresence(s)
	return name, true
}

// ForwardChunk relays a chunk published by s on its current channel.
func (o *Orchestrator) ForwardChunk(s *core.Session, chunk domain.StreamChunk) (sfu.ForwardResult, error) {
	name, ok := s.Channel()
	if !ok {
		return sfu.ForwardResult{}, &domain.StreamError{Reason: domain.StreamNoActivePublisher}
	}
	return o.Relays.Forward(name, s.ID(), chunk)
}

// MuteStream pauses or resumes the stream of s's channel for s.
func (o *Orchestrator) MuteStream(s *core.Session, muted bool) error {
	name, ok := s.Channel()
	if !ok {
		return &domain.StreamError{Reason: domain.StreamNoActivePublisher}
	}
	return o.Relays.SetMuted(name, s.ID(), muted)
}

// AttachMedia binds a WebRTC ingest connection to the publisher s.
func (o *Orchestrator) AttachMedia(s *core.Session, mc core.MediaConnection) error {
	if _, ok := o.Relays.RelayOf(s.ID()); !ok {
		return &domain.StreamError{Reason: domain.StreamNotPublishing}
	}
	o.BindMediaHandlers(mc, s)
	if old := s.SwapMedia(mc); old != nil {
		old.Close()
	}
	if s.Closed() {
		if s.SwapMedia(nil) == mc {
			mc.Close()
		}
		return domain.ErrDisconnected
	}
	return nil
}

func (o *Orchestrator) BindMediaHandlers(mc core.MediaConnection, s *core.Session) {
	mc.OnTrack(func(trackCtx context.Context, track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		o.OnTrack(trackCtx, s, track)
	})
	mc.OnClosed(func() { o.OnMediaDisconnect(s, mc) })
}

// OnTrack starts relaying a remote track published by s.
func (o *Orchestrator) OnTrack(ctx context.Context, s *core.Session, track *webrtc.TrackRemote) {
	relay, ok := o.Relays.RelayOf(s.ID())
	if !ok {
		log.Info().Str("module", "orch").Str("sid", string(s.ID())).Msg("OnTrack: not publishing")
		return
	}
	kind := domain.ChunkVideo
	if track.Kind() == webrtc.RTPCodecTypeAudio {
		kind = domain.ChunkAudio
	}
	go o.Relays.Ingest(ctx, relay, kind, track)
}

// OnMediaDisconnect stops the stream when its ingest connection goes away.
func (o *Orchestrator) OnMediaDisconnect(s *core.Session, mc core.MediaConnection) {
	if s.Media() != mc {
		return
	}
	if _, ok := o.stopStream(s); ok {
		log.Info().Str("module", "orch").Str("sid", string(s.ID())).Msg("media closed, stream stopped")
	}
}
