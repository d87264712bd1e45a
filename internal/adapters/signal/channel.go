package signal

import (
	"encoding/json"

	"github.com/dkeye/Chatter/internal/core"
	"github.com/dkeye/Chatter/internal/domain"
	"github.com/rs/zerolog/log"
)

const defaultHistoryLimit = 50

// handleJoin needs no reply of its own: the channel queues "joined" for the
// joiner before anyone else hears about it.
func (ctl *SignalWSController) handleJoin(s *core.Session, conn *WsSignalConn, data []byte) {
	var p struct {
		Channel string `json:"channel"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendError(conn, domain.ErrBadPayload)
		return
	}
	if _, _, err := ctl.Orch.Join(s, p.Channel); err != nil {
		ctl.sendError(conn, err)
	}
}

func (ctl *SignalWSController) handleLeave(s *core.Session, conn *WsSignalConn) {
	name, err := ctl.Orch.Leave(s)
	if err != nil {
		ctl.sendError(conn, err)
		return
	}
	ctl.sendJSON(conn, struct {
		Type    string             `json:"type"`
		Channel domain.ChannelName `json:"channel"`
	}{Type: core.EventLeft, Channel: name})
}

func (ctl *SignalWSController) handleSend(s *core.Session, conn *WsSignalConn, data []byte) {
	var p struct {
		Channel string `json:"channel"`
		Body    string `json:"body"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad send payload")
		ctl.sendError(conn, domain.ErrBadPayload)
		return
	}
	if _, err := ctl.Orch.Post(s, p.Channel, p.Body); err != nil {
		ctl.sendError(conn, err)
	}
}

func (ctl *SignalWSController) handleHistory(s *core.Session, conn *WsSignalConn, data []byte) {
	var p struct {
		Channel  string `json:"channel"`
		SinceSeq uint64 `json:"sinceSeq"`
		Limit    int    `json:"limit"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(conn, domain.ErrBadPayload)
		return
	}
	if p.Limit <= 0 {
		p.Limit = defaultHistoryLimit
	}
	name, msgs, err := ctl.Orch.History(s, p.Channel, p.SinceSeq, p.Limit)
	if err != nil {
		ctl.sendError(conn, err)
		return
	}
	ctl.sendJSON(conn, struct {
		Type     string             `json:"type"`
		Channel  domain.ChannelName `json:"channel"`
		Messages []domain.Message   `json:"messages"`
	}{Type: "history", Channel: name, Messages: msgs})
}
