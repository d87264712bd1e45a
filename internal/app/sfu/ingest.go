package sfu

import (
	"context"

	"github.com/dkeye/Chatter/internal/domain"
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
)

// RTPReader is satisfied by *webrtc.TrackRemote.
type RTPReader interface {
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// Ingest reads RTP packets from src and relays them as chunks until src fails,
// ctx is done or the relay stops.
func (m *RelayManager) Ingest(ctx context.Context, relay *Relay, kind domain.ChunkKind, src RTPReader) {
	logger := relay.logger.With().Str("kind", string(kind)).Logger()
	logger.Info().Msg("ingest loop started")
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("ingest ctx done")
			return
		case <-relay.Context().Done():
			logger.Info().Msg("relay stopped, ingest done")
			return
		default:
		}
		pkt, _, err := src.ReadRTP()
		if err != nil {
			logger.Info().Err(err).Msg("ingest read RTP stopped")
			return
		}
		payload, err := pkt.Marshal()
		if err != nil {
			logger.Warn().Err(err).Msg("ingest marshal RTP")
			continue
		}
		res, err := relay.ForwardNext(kind, payload)
		m.observe(res, err)
		if err != nil {
			logger.Info().Err(err).Msg("ingest forward stopped")
			return
		}
	}
}
