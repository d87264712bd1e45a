package signal

import (
	"encoding/json"

	"github.com/dkeye/Chatter/internal/core"
	"github.com/dkeye/Chatter/internal/domain"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleWhoAmI(s *core.Session, conn *WsSignalConn) {
	p := s.Presence()
	resp := struct {
		Type      string        `json:"type"`
		SessionID string        `json:"sessionId"`
		Username  string        `json:"username"`
		Status    domain.Status `json:"status"`
		Channel   string        `json:"channel,omitempty"`
		Visitor   bool          `json:"visitor,omitempty"`
	}{
		Type:      "whoami",
		SessionID: string(s.ID()),
		Username:  p.Username,
		Status:    p.Status,
		Channel:   p.Channel,
		Visitor:   p.Visitor,
	}
	ctl.sendJSON(conn, resp)
}

func (ctl *SignalWSController) handleSetStatus(s *core.Session, conn *WsSignalConn, data []byte) {
	var p struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad setStatus payload")
		ctl.sendError(conn, domain.ErrBadPayload)
		return
	}
	st, err := ctl.Orch.SetStatus(s, p.Status)
	if err != nil {
		ctl.sendError(conn, err)
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(s.ID())).Str("status", string(st)).Msg("status changed")
}
