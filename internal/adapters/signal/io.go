package signal

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/dkeye/Chatter/internal/core"
	"github.com/dkeye/Chatter/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) error {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			ctl.flush(c)
			return nil
		case data, ok := <-c.send:
			if !ok {
				ctl.writeClose(c)
				return nil
			}
			if err := ctl.drainMedia(c); err != nil {
				return &domain.TransportError{Reason: domain.TransportDisconnected, Err: err}
			}
			if err := ctl.write(c, websocket.TextMessage, data); err != nil {
				return &domain.TransportError{Reason: domain.TransportDisconnected, Err: err}
			}
		case data := <-c.media:
			if err := ctl.write(c, websocket.TextMessage, data); err != nil {
				return &domain.TransportError{Reason: domain.TransportDisconnected, Err: err}
			}
		case <-ticker.C:
			if err := ctl.write(c, websocket.PingMessage, nil); err != nil {
				return &domain.TransportError{Reason: domain.TransportTimeout, Err: err}
			}
		}
	}
}

// drainMedia writes the chunks queued so far. Chat frames go out only after
// them, so a stream's terminal chunk precedes its streamStopped.
func (ctl *SignalWSController) drainMedia(c *WsSignalConn) error {
	for {
		select {
		case data := <-c.media:
			if err := ctl.write(c, websocket.TextMessage, data); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (ctl *SignalWSController) write(c *WsSignalConn, kind int, data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.opts.WriteWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(kind, data)
}

// flush writes whatever chat frames are still queued, then says goodbye.
func (ctl *SignalWSController) flush(c *WsSignalConn) {
	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				ctl.writeClose(c)
				return
			}
			if err := ctl.drainMedia(c); err != nil {
				return
			}
			if err := ctl.write(c, websocket.TextMessage, data); err != nil {
				return
			}
		default:
			ctl.writeClose(c)
			return
		}
	}
}

func (ctl *SignalWSController) writeClose(c *WsSignalConn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(ctl.opts.WriteWait))
}

func (ctl *SignalWSController) readPump(ctx context.Context, s *core.Session, c *WsSignalConn) error {
	logger := log.With().Str("module", "signal").Str("sid", string(s.ID())).Logger()
	defer logger.Info().Msg("readPump closing")

	if err := c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait)); err != nil {
		return &domain.TransportError{Reason: domain.TransportDisconnected, Err: err}
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return ctl.handleReadError(s, err)
		}
		ctl.handleFrame(ctx, s, c, data)
	}
}

// handleReadError logs the read failure and classifies it for teardown.
func (ctl *SignalWSController) handleReadError(s *core.Session, err error) error {
	logger := log.With().Str("module", "signal").Str("sid", string(s.ID())).Str("username", s.Username()).Logger()

	var ne net.Error
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		logger.Warn().Int64("limit", ctl.opts.ReadLimit).Msg("frame exceeded read limit")
		return &domain.TransportError{Reason: domain.TransportDisconnected, Err: err}
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		logger.Info().Msg("client disconnected")
		return &domain.TransportError{Reason: domain.TransportDisconnected, Err: err}
	case errors.As(err, &ne) && ne.Timeout():
		logger.Info().Msg("client timed out")
		return &domain.TransportError{Reason: domain.TransportTimeout, Err: err}
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		logger.Info().Err(err).Msg("connection closed")
		return &domain.TransportError{Reason: domain.TransportDisconnected, Err: err}
	default:
		logger.Warn().Err(err).Msg("unexpected read error")
		return &domain.TransportError{Reason: domain.TransportDisconnected, Err: err}
	}
}

func (ctl *SignalWSController) handleFrame(ctx context.Context, s *core.Session, c *WsSignalConn, data []byte) {
	if !gjson.ValidBytes(data) {
		ctl.sendError(c, domain.ErrBadPayload)
		return
	}
	typ := gjson.GetBytes(data, "type").String()

	switch typ {
	case "send":
		if ctl.limiter != nil && !ctl.limiter.Allow(s.Username()) {
			ctl.sendError(c, domain.ErrRateLimited)
			return
		}
		ctl.handleSend(s, c, data)
	case "join":
		ctl.handleJoin(s, c, data)
	case "leave":
		ctl.handleLeave(s, c)
	case "history":
		ctl.handleHistory(s, c, data)
	case "listOnline":
		ctl.handleListOnline(c)
	case "setStatus":
		ctl.handleSetStatus(s, c, data)
	case "whoami":
		ctl.handleWhoAmI(s, c)
	case "ping":
		ctl.handlePing(c)
	case "logout":
		ctl.handleLogout(s, c)
	case "startStream":
		ctl.handleStartStream(s, c, data)
	case "stopStream":
		ctl.handleStopStream(s, c)
	case "streamChunk":
		ctl.handleStreamChunk(s, c, data)
	case "muteStream":
		ctl.handleMuteStream(s, c, data)
	case "offer":
		ctl.handleOffer(ctx, s, c, data)
	case "candidate":
		ctl.handleCandidate(s, c, data)
	case "auth":
		ctl.sendError(c, &domain.AuthError{Reason: domain.AuthInvalidRequest, Err: errors.New("already authenticated")})
	default:
		log.Warn().Str("module", "signal").Str("sid", string(s.ID())).Str("type", typ).Msg("unknown signal")
		ctl.sendError(c, domain.ErrUnknownType)
	}
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, v any) {
	frame := core.Encode(v)
	if frame == nil {
		return
	}
	if err := c.TrySend(frame); err != nil && !errors.Is(err, core.ErrConnClosed) {
		log.Warn().Err(err).Str("module", "signal").Msg("reply dropped")
	}
}

func (ctl *SignalWSController) sendError(c *WsSignalConn, err error) {
	ctl.sendJSON(c, core.NewErrorEvent(err))
}
