package signal

import (
	"github.com/dkeye/Chatter/internal/core"
	"github.com/dkeye/Chatter/internal/domain"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handlePing(conn *WsSignalConn) {
	resp := struct {
		Type string `json:"type"`
	}{
		Type: "pong",
	}
	ctl.sendJSON(conn, resp)
}

func (ctl *SignalWSController) handleListOnline(conn *WsSignalConn) {
	resp := struct {
		Type  string            `json:"type"`
		Users []domain.Presence `json:"users"`
	}{
		Type:  "onlineList",
		Users: ctl.Orch.ListOnline(),
	}
	ctl.sendJSON(conn, resp)
}

// handleLogout says goodbye; the queued frame is flushed before the socket closes.
func (ctl *SignalWSController) handleLogout(s *core.Session, conn *WsSignalConn) {
	log.Info().Str("module", "signal").Str("sid", string(s.ID())).Str("username", s.Username()).Msg("logout")
	ctl.sendJSON(conn, struct {
		Type string `json:"type"`
	}{Type: "bye"})
	ctl.Orch.Disconnect(s, nil)
}
