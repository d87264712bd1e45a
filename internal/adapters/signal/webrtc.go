package signal

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dkeye/Chatter/internal/core"
	"github.com/dkeye/Chatter/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleStartStream(s *core.Session, conn *WsSignalConn, data []byte) {
	var p struct {
		Channel string `json:"channel"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(conn, domain.ErrBadPayload)
		return
	}
	if cur, _ := s.Channel(); p.Channel != "" && domain.ChannelName(p.Channel) != cur {
		if _, _, err := ctl.Orch.Join(s, p.Channel); err != nil {
			ctl.sendError(conn, err)
			return
		}
	}
	if _, err := ctl.Orch.StartStream(s); err != nil {
		ctl.sendError(conn, err)
	}
}

func (ctl *SignalWSController) handleStopStream(s *core.Session, conn *WsSignalConn) {
	if _, err := ctl.Orch.StopStream(s); err != nil {
		ctl.sendError(conn, err)
	}
}

func (ctl *SignalWSController) handleStreamChunk(s *core.Session, conn *WsSignalConn, data []byte) {
	var p struct {
		Sequence uint64 `json:"sequence"`
		Kind     string `json:"kind"`
		Payload  []byte `json:"payload"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(conn, domain.ErrBadPayload)
		return
	}
	kind, err := domain.ParseChunkKind(p.Kind)
	if err != nil {
		ctl.sendError(conn, &domain.StreamError{Reason: domain.StreamBadChunk, Err: err})
		return
	}
	chunk := domain.StreamChunk{Sequence: p.Sequence, Kind: kind, Payload: p.Payload}
	if _, err := ctl.Orch.ForwardChunk(s, chunk); err != nil {
		ctl.sendError(conn, err)
	}
}

func (ctl *SignalWSController) handleMuteStream(s *core.Session, conn *WsSignalConn, data []byte) {
	var p struct {
		Muted bool `json:"muted"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(conn, domain.ErrBadPayload)
		return
	}
	if err := ctl.Orch.MuteStream(s, p.Muted); err != nil {
		ctl.sendError(conn, err)
	}
}

func (ctl *SignalWSController) sendCandidate(c *WsSignalConn, ci webrtc.ICECandidateInit) {
	resp := struct {
		Type          string `json:"type"`
		Candidate     string `json:"candidate"`
		SDPMid        string `json:"sdpMid,omitempty"`
		SDPMLineIndex uint16 `json:"sdpMLineIndex,omitempty"`
	}{
		Type:      "candidate",
		Candidate: ci.Candidate,
	}
	if ci.SDPMid != nil {
		resp.SDPMid = *ci.SDPMid
	}
	if ci.SDPMLineIndex != nil {
		resp.SDPMLineIndex = *ci.SDPMLineIndex
	}
	ctl.sendJSON(c, resp)
}

// handleOffer opens the ingest peer connection for the current publisher.
func (ctl *SignalWSController) handleOffer(ctx context.Context, s *core.Session, conn *WsSignalConn, data []byte) {
	logger := log.With().Str("module", "signal").Str("sid", string(s.ID())).Logger()

	var p struct {
		SDP string `json:"sdp"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.SDP == "" {
		logger.Error().Err(err).Msg("bad offer payload")
		ctl.sendError(conn, domain.ErrBadPayload)
		return
	}
	if _, ok := ctl.Orch.Relays.RelayOf(s.ID()); !ok {
		ctl.sendError(conn, domain.ErrNotPublishing)
		return
	}
	if ctl.NewMedia == nil {
		ctl.sendError(conn, &domain.StreamError{Reason: domain.StreamNotPublishing, Err: errors.New("media ingest disabled")})
		return
	}

	mc, err := ctl.NewMedia(s.ID())
	if err != nil {
		logger.Error().Err(err).Msg("webrtc new pc")
		ctl.sendError(conn, err)
		return
	}
	mc.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		ctl.sendCandidate(conn, ci)
	})
	if err := mc.Start(ctx); err != nil {
		logger.Error().Err(err).Msg("webrtc start")
		mc.Close()
		ctl.sendError(conn, err)
		return
	}
	answer, err := mc.ApplyOfferAndCreateAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: p.SDP})
	if err != nil {
		logger.Error().Err(err).Msg("webrtc apply offer")
		mc.Close()
		ctl.sendError(conn, &domain.StreamError{Reason: domain.StreamBadChunk, Err: err})
		return
	}
	if err := ctl.Orch.AttachMedia(s, mc); err != nil {
		mc.Close()
		ctl.sendError(conn, err)
		return
	}

	ctl.sendJSON(conn, map[string]string{
		"type": "answer",
		"sdp":  answer.SDP,
	})
}

func (ctl *SignalWSController) handleCandidate(s *core.Session, conn *WsSignalConn, data []byte) {
	var p struct {
		Candidate     string `json:"candidate"`
		SDPMid        string `json:"sdpMid"`
		SDPMLineIndex uint16 `json:"sdpMLineIndex"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad candidate payload")
		ctl.sendError(conn, domain.ErrBadPayload)
		return
	}

	cand := webrtc.ICECandidateInit{
		Candidate: p.Candidate,
	}
	if p.SDPMid != "" {
		cand.SDPMid = &p.SDPMid
	}
	cand.SDPMLineIndex = &p.SDPMLineIndex

	mc := s.Media()
	if mc == nil {
		log.Warn().Str("module", "signal").Str("sid", string(s.ID())).Msg("candidate: no media connection")
		ctl.sendError(conn, domain.ErrNotPublishing)
		return
	}
	if err := mc.AddICECandidate(cand); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("add ice candidate")
	}
}
