package orch

import (
	"context"

	"github.com/dkeye/Chatter/internal/app"
	"github.com/dkeye/Chatter/internal/app/sfu"
	"github.com/dkeye/Chatter/internal/core"
	"github.com/dkeye/Chatter/internal/domain"
	"github.com/dkeye/Chatter/internal/metrics"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

// Orchestrator owns the cross-component flows: presence, membership,
// messaging, streaming and teardown.
type Orchestrator struct {
	Directory *app.Directory
	Channels  core.ChannelRegistry
	Policy    app.Policy
	Relays    *sfu.RelayManager
	Metrics   *metrics.Metrics

	MaxBodyBytes int
}

// Connect registers an authenticated session in the presence directory.
func (o *Orchestrator) Connect(s *core.Session) error {
	if err := o.Directory.Register(s); err != nil {
		return err
	}
	o.Metrics.SessionOpened()
	return nil
}

// Disconnect tears s down synchronously: its stream stops, it leaves its
// channel, its presence entry goes away and its transport is closed.
// Only the first call has an effect.
func (o *Orchestrator) Disconnect(s *core.Session, reason error) {
	s.Teardown(func() {
		logger := log.With().Str("module", "orch").Str("sid", string(s.ID())).Str("username", s.Username()).Logger()
		if reason != nil {
			logger = logger.With().Str("reason", domain.CodeOf(reason)).Logger()
		}

		o.stopStream(s)
		if name, ok := s.Channel(); ok {
			o.leave(s, name)
		}
		if o.Directory.Unregister(s) {
			o.Metrics.SessionClosed()
		}
		s.Cancel()
		s.Signal().Close()
		logger.Info().Msg("session closed")
	})
}

// KickBySID disconnects the live session with the given id, if any.
func (o *Orchestrator) KickBySID(sid core.SessionID, reason error) bool {
	s, ok := o.Directory.BySID(sid)
	if !ok {
		return false
	}
	o.Disconnect(s, reason)
	return true
}

func (o *Orchestrator) applyPolicy(ch core.ChannelService, res core.PublishResult) {
	if len(res.Dropped) == 0 {
		return
	}
	for _, slow := range res.Dropped {
		action := app.KickMember
		if o.Policy != nil {
			action = o.Policy.OnBackPressure(ch, slow)
		}
		o.Metrics.EventDropped(action.String())
		log.Warn().Str("module", "orch").Str("channel", string(ch.Name())).Str("sid", string(slow.ID())).
			Str("action", action.String()).Msg("outbound queue full")
		switch action {
		case app.KickMember:
			o.KickBySID(slow.ID(), domain.ErrBackpressure)
		case app.MarkSlow, app.DropFrame, app.NoAction:
		}
	}
}

// ListOnline returns every online user with their status.
func (o *Orchestrator) ListOnline() []domain.Presence {
	return o.Directory.ListOnline()
}

// Shutdown disconnects every session concurrently and waits for teardown or ctx.
func (o *Orchestrator) Shutdown(ctx context.Context) {
	sessions := o.Directory.Sessions()
	var wg conc.WaitGroup
	for _, s := range sessions {
		wg.Go(func() { o.Disconnect(s, domain.ErrDisconnected) })
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Info().Str("module", "orch").Int("sessions", len(sessions)).Msg("all sessions closed")
	case <-ctx.Done():
		log.Warn().Str("module", "orch").Msg("shutdown deadline reached before all sessions closed")
	}
}
