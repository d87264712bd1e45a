package signal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/dkeye/Chatter/internal/adapters/rtc"
	"github.com/dkeye/Chatter/internal/app/orch"
	"github.com/dkeye/Chatter/internal/auth"
	"github.com/dkeye/Chatter/internal/config"
	"github.com/dkeye/Chatter/internal/core"
	"github.com/dkeye/Chatter/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"
)

type Options struct {
	ReadLimit    int64
	PingPeriod   time.Duration
	PongWait     time.Duration
	WriteWait    time.Duration
	AuthTimeout  time.Duration
	SendBuffer   int
	MediaBuffer  int
	RateMessages int
	RateInterval time.Duration
	Origins      []string
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ReadLimit:    cfg.ReadLimit,
		PingPeriod:   cfg.PingPeriod,
		PongWait:     cfg.PongWait,
		WriteWait:    cfg.WriteWait,
		AuthTimeout:  cfg.AuthTimeout,
		SendBuffer:   cfg.SendBuffer,
		MediaBuffer:  cfg.MediaBuffer,
		RateMessages: cfg.RateLimit.Messages,
		RateInterval: cfg.RateLimit.Interval,
		Origins:      cfg.Origins,
	}
}

// MediaFactory opens an ingest peer connection for a publishing session.
type MediaFactory func(sid core.SessionID) (core.MediaConnection, error)

func RTCMediaFactory(api *rtc.IngestAPI) MediaFactory {
	return func(sid core.SessionID) (core.MediaConnection, error) {
		mc, err := api.NewConnection(sid)
		if err != nil {
			return nil, err
		}
		return mc, nil
	}
}

type SignalWSController struct {
	Orch     *orch.Orchestrator
	Auth     *auth.Authenticator
	NewMedia MediaFactory

	opts     Options
	limiter  *RateLimiter
	upgrader websocket.Upgrader
}

func NewSignalWSController(o *orch.Orchestrator, a *auth.Authenticator, media MediaFactory, opts Options) *SignalWSController {
	ctl := &SignalWSController{
		Orch:     o,
		Auth:     a,
		NewMedia: media,
		opts:     opts,
	}
	if opts.RateMessages > 0 {
		ctl.limiter = NewRateLimiter(opts.RateMessages, opts.RateInterval)
	}
	ctl.upgrader = websocket.Upgrader{CheckOrigin: ctl.checkOrigin}
	return ctl
}

func (ctl *SignalWSController) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(ctl.opts.Origins) == 0 || slices.Contains(ctl.opts.Origins, "*") {
		return true
	}
	return slices.Contains(ctl.opts.Origins, origin)
}

type authOk struct {
	Type      string    `json:"type"`
	SessionID string    `json:"sessionId"`
	Username  string    `json:"username"`
	Visitor   bool      `json:"visitor,omitempty"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type authErr struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
	Error  string `json:"error,omitempty"`
}

// HandleSignal upgrades the request, runs the auth handshake and then pumps
// frames until the connection ends. It blocks for the life of the connection.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	logger := log.With().Str("module", "signal").Str("client", c.GetString("client_token")).Logger()

	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error().Err(err).Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(ctl.opts.ReadLimit)

	s, conn, err := ctl.handshake(ctx, ws)
	if err != nil {
		logger.Info().Err(err).Msg("handshake failed")
		ctl.reject(ws, err)
		return
	}
	logger.Info().Str("sid", string(s.ID())).Str("username", s.Username()).Msg("session started")
	ctl.serve(ctx, s, conn)
}

func (ctl *SignalWSController) handshake(ctx context.Context, ws *websocket.Conn) (*core.Session, *WsSignalConn, error) {
	if err := ws.SetReadDeadline(time.Now().Add(ctl.opts.AuthTimeout)); err != nil {
		return nil, nil, &domain.TransportError{Reason: domain.TransportDisconnected, Err: err}
	}
	_, data, err := ws.ReadMessage()
	if err != nil {
		var ne interface{ Timeout() bool }
		if errors.As(err, &ne) && ne.Timeout() {
			return nil, nil, &domain.TransportError{Reason: domain.TransportTimeout, Err: err}
		}
		return nil, nil, &domain.TransportError{Reason: domain.TransportDisconnected, Err: err}
	}
	if !gjson.ValidBytes(data) || gjson.GetBytes(data, "type").String() != "auth" {
		return nil, nil, &domain.AuthError{Reason: domain.AuthInvalidRequest, Err: errors.New("first frame must be auth")}
	}
	var req auth.Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, nil, &domain.AuthError{Reason: domain.AuthInvalidRequest, Err: err}
	}

	authCtx, cancel := context.WithTimeout(ctx, ctl.opts.AuthTimeout)
	defer cancel()
	res, err := ctl.Auth.Authenticate(authCtx, req)
	if err != nil {
		return nil, nil, err
	}

	conn := NewWsSignalConn(ws, ctl.opts.SendBuffer, ctl.opts.MediaBuffer)
	s := core.NewSession(core.SessionID(uuid.NewString()), res.User, conn)
	if err := ctl.Orch.Connect(s); err != nil {
		return nil, nil, err
	}
	_ = conn.TrySend(core.Encode(authOk{
		Type:      "authOk",
		SessionID: string(s.ID()),
		Username:  s.Username(),
		Visitor:   s.Visitor(),
		Token:     res.Token,
		ExpiresAt: res.ExpiresAt,
	}))
	return s, conn, nil
}

// reject answers a failed handshake and closes the socket. No session exists.
func (ctl *SignalWSController) reject(ws *websocket.Conn, err error) {
	defer ws.Close()
	var tErr *domain.TransportError
	if errors.As(err, &tErr) && tErr.Reason == domain.TransportDisconnected {
		return
	}
	deadline := time.Now().Add(ctl.opts.WriteWait)
	_ = ws.SetWriteDeadline(deadline)
	frame := authErr{Type: "authErr", Reason: domain.CodeOf(err)}
	var aErr *domain.AuthError
	if errors.As(err, &aErr) && aErr.Reason == domain.AuthInvalidRequest && aErr.Err != nil {
		frame.Error = aErr.Err.Error()
	}
	if err := ws.WriteJSON(frame); err != nil {
		return
	}
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, frame.Reason), deadline)
}

// serve runs the pumps; whichever ends first tears the session down.
func (ctl *SignalWSController) serve(ctx context.Context, s *core.Session, conn *WsSignalConn) {
	ctx, cancel := context.WithCancel(ctx)
	s.BindCancel(cancel)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ctl.writePump(gctx, conn) })
	g.Go(func() error { return ctl.readPump(gctx, s, conn) })
	err := g.Wait()

	ctl.Orch.Disconnect(s, err)
	if ctl.limiter != nil {
		ctl.limiter.Forget(s.Username())
	}
}
