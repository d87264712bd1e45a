package signal

import (
	"context"
	"encoding/base64"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/Chatter/internal/app"
	"github.com/dkeye/Chatter/internal/app/orch"
	"github.com/dkeye/Chatter/internal/app/sfu"
	"github.com/dkeye/Chatter/internal/auth"
	"github.com/dkeye/Chatter/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type testServer struct {
	url  string
	orch *orch.Orchestrator
	auth *auth.Authenticator
}

func testOptions() Options {
	return Options{
		ReadLimit:   64 * 1024,
		PingPeriod:  time.Second,
		PongWait:    2 * time.Second,
		WriteWait:   time.Second,
		AuthTimeout: time.Second,
		SendBuffer:  64,
		MediaBuffer: 16,
	}
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tokens, err := auth.NewTokenService(testSecret, time.Hour)
	require.NoError(t, err)
	a, err := auth.NewAuthenticator(auth.NewMemoryStore(), tokens, auth.Options{AllowVisitors: true, BcryptCost: bcrypt.MinCost})
	require.NoError(t, err)
	o := &orch.Orchestrator{
		Directory:    app.NewDirectory(),
		Channels:     app.NewChannelManager(10),
		Policy:       app.SimplePolicy{},
		Relays:       sfu.NewRelayManager(),
		MaxBodyBytes: 4096,
	}
	ctl := NewSignalWSController(o, a, nil, opts)

	ctx, cancel := context.WithCancel(context.Background())
	r := gin.New()
	r.GET("/ws", func(c *gin.Context) { ctl.HandleSignal(ctx, c) })
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})

	for _, name := range []string{"bao", "aob"} {
		require.NoError(t, a.Register(context.Background(), name, "pw-"+name))
	}
	return &testServer{url: "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws", orch: o, auth: a}
}

func (ts *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(ts.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func (ts *testServer) login(t *testing.T, name string) *websocket.Conn {
	t.Helper()
	ws := ts.dial(t)
	send(t, ws, map[string]any{"type": "auth", "username": name, "password": "pw-" + name})
	ev := next(t, ws)
	require.Equal(t, "authOk", ev["type"], "auth reply: %v", ev)
	assert.Equal(t, name, ev["username"])
	assert.NotEmpty(t, ev["token"])
	return ws
}

func send(t *testing.T, ws *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, ws.WriteJSON(v))
}

func next(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev map[string]any
	require.NoError(t, ws.ReadJSON(&ev))
	return ev
}

func nextOf(t *testing.T, ws *websocket.Conn, typ string) map[string]any {
	t.Helper()
	for range 20 {
		ev := next(t, ws)
		if ev["type"] == typ {
			return ev
		}
	}
	t.Fatalf("no %q frame", typ)
	return nil
}

func TestSignal_BaoAobScenario(t *testing.T) {
	ts := newTestServer(t, testOptions())

	bao := ts.login(t, "bao")
	send(t, bao, map[string]any{"type": "join", "channel": "general"})
	joined := next(t, bao)
	require.Equal(t, "joined", joined["type"])
	assert.Empty(t, joined["history"])

	send(t, bao, map[string]any{"type": "send", "body": "hi"})
	sent := next(t, bao)
	require.Equal(t, "sent", sent["type"])
	assert.Equal(t, float64(1), sent["sequence"])

	aob := ts.login(t, "aob")
	send(t, aob, map[string]any{"type": "join", "channel": "general"})
	joined = next(t, aob)
	require.Equal(t, "joined", joined["type"])
	history := joined["history"].([]any)
	require.Len(t, history, 1)
	first := history[0].(map[string]any)
	assert.Equal(t, "bao", first["sender"])
	assert.Equal(t, "hi", first["body"])
	assert.Equal(t, float64(1), first["sequence"])

	send(t, aob, map[string]any{"type": "send", "channel": "general", "body": "hello"})
	assert.Equal(t, "sent", next(t, aob)["type"])

	ev := next(t, bao)
	assert.Equal(t, "userJoined", ev["type"])
	assert.Equal(t, "aob", ev["username"])
	ev = next(t, bao)
	assert.Equal(t, "message", ev["type"])
	assert.Equal(t, "aob", ev["sender"])
	assert.Equal(t, "hello", ev["body"])
	assert.Equal(t, float64(2), ev["sequence"])
}

func TestSignal_HackerIsRejected(t *testing.T) {
	ts := newTestServer(t, testOptions())

	ws := ts.dial(t)
	send(t, ws, map[string]any{"type": "auth", "username": "hacker", "password": "1234"})
	ev := next(t, ws)
	assert.Equal(t, "authErr", ev["type"])
	assert.Equal(t, "invalid_credentials", ev["reason"])

	_, _, err := ws.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
	assert.Empty(t, ts.orch.ListOnline())
}

func TestSignal_FirstFrameMustBeAuth(t *testing.T) {
	ts := newTestServer(t, testOptions())

	ws := ts.dial(t)
	send(t, ws, map[string]any{"type": "join", "channel": "general"})
	ev := next(t, ws)
	assert.Equal(t, "authErr", ev["type"])
	assert.Equal(t, "invalid_request", ev["reason"])
}

func TestSignal_AuthTimeout(t *testing.T) {
	opts := testOptions()
	opts.AuthTimeout = 100 * time.Millisecond
	ts := newTestServer(t, opts)

	ws := ts.dial(t)
	ev := next(t, ws)
	assert.Equal(t, "authErr", ev["type"])
	assert.Equal(t, "timeout", ev["reason"])
}

func TestSignal_DuplicateLoginRejected(t *testing.T) {
	ts := newTestServer(t, testOptions())
	ts.login(t, "bao")

	ws := ts.dial(t)
	send(t, ws, map[string]any{"type": "auth", "username": "bao", "password": "pw-bao"})
	ev := next(t, ws)
	assert.Equal(t, "authErr", ev["type"])
	assert.Equal(t, "already_online", ev["reason"])
	assert.Len(t, ts.orch.ListOnline(), 1)
}

func TestSignal_VisitorAndTokenResume(t *testing.T) {
	ts := newTestServer(t, testOptions())

	v := ts.dial(t)
	send(t, v, map[string]any{"type": "auth", "username": "guest", "visitor": true})
	ev := next(t, v)
	require.Equal(t, "authOk", ev["type"])
	assert.Equal(t, "visitor:guest", ev["username"])
	send(t, v, map[string]any{"type": "startStream"})
	assert.Equal(t, "forbidden", nextOf(t, v, "error")["code"])

	bao := ts.login(t, "bao")
	send(t, bao, map[string]any{"type": "whoami"})
	who := next(t, bao)
	require.Equal(t, "whoami", who["type"])
	send(t, bao, map[string]any{"type": "logout"})
	assert.Equal(t, "bye", next(t, bao)["type"])

	require.Eventually(t, func() bool {
		_, ok := ts.orch.Directory.Lookup("bao")
		return !ok
	}, 2*time.Second, 10*time.Millisecond)

	u, err := domain.NewUser("bao")
	require.NoError(t, err)
	token, _, err := ts.auth.Tokens().Generate(u)
	require.NoError(t, err)
	again := ts.dial(t)
	send(t, again, map[string]any{"type": "auth", "token": token})
	ev = next(t, again)
	assert.Equal(t, "authOk", ev["type"])
	assert.Equal(t, "bao", ev["username"])
}

func TestSignal_ProtocolErrorsKeepSession(t *testing.T) {
	ts := newTestServer(t, testOptions())
	bao := ts.login(t, "bao")

	require.NoError(t, bao.WriteMessage(websocket.TextMessage, []byte("{not json")))
	ev := next(t, bao)
	assert.Equal(t, "error", ev["type"])
	assert.Equal(t, "bad_payload", ev["code"])

	send(t, bao, map[string]any{"type": "dance"})
	assert.Equal(t, "unknown_type", next(t, bao)["code"])

	send(t, bao, map[string]any{"type": "send", "body": "hi"})
	assert.Equal(t, "not_in_channel", next(t, bao)["code"])

	send(t, bao, map[string]any{"type": "join", "channel": "no spaces allowed"})
	assert.Equal(t, "invalid_channel", next(t, bao)["code"])

	send(t, bao, map[string]any{"type": "setStatus", "status": "sleeping"})
	assert.Equal(t, "invalid_status", next(t, bao)["code"])

	send(t, bao, map[string]any{"type": "ping"})
	assert.Equal(t, "pong", next(t, bao)["type"])
}

func TestSignal_RateLimitedSend(t *testing.T) {
	opts := testOptions()
	opts.RateMessages = 2
	opts.RateInterval = time.Minute
	ts := newTestServer(t, opts)

	bao := ts.login(t, "bao")
	send(t, bao, map[string]any{"type": "join", "channel": "general"})
	require.Equal(t, "joined", next(t, bao)["type"])

	for range 2 {
		send(t, bao, map[string]any{"type": "send", "body": "hi"})
		require.Equal(t, "sent", next(t, bao)["type"])
	}
	send(t, bao, map[string]any{"type": "send", "body": "hi"})
	ev := next(t, bao)
	assert.Equal(t, "error", ev["type"])
	assert.Equal(t, "rate_limited", ev["code"])
}

func TestSignal_DisconnectCleansUp(t *testing.T) {
	ts := newTestServer(t, testOptions())

	bao := ts.login(t, "bao")
	send(t, bao, map[string]any{"type": "join", "channel": "general"})
	require.Equal(t, "joined", next(t, bao)["type"])
	aob := ts.login(t, "aob")
	send(t, aob, map[string]any{"type": "join", "channel": "general"})
	require.Equal(t, "joined", next(t, aob)["type"])
	require.Equal(t, "userJoined", next(t, bao)["type"])

	require.NoError(t, aob.Close())

	ev := next(t, bao)
	assert.Equal(t, "userLeft", ev["type"])
	assert.Equal(t, "aob", ev["username"])
	require.Eventually(t, func() bool {
		_, ok := ts.orch.Directory.Lookup("aob")
		return !ok
	}, 2*time.Second, 10*time.Millisecond)

	send(t, bao, map[string]any{"type": "listOnline"})
	list := nextOf(t, bao, "onlineList")
	users := list["users"].([]any)
	require.Len(t, users, 1)
	assert.Equal(t, "bao", users[0].(map[string]any)["username"])
}

func TestSignal_StreamRelay(t *testing.T) {
	ts := newTestServer(t, testOptions())

	bao := ts.login(t, "bao")
	send(t, bao, map[string]any{"type": "join", "channel": "general"})
	require.Equal(t, "joined", next(t, bao)["type"])
	aob := ts.login(t, "aob")
	send(t, aob, map[string]any{"type": "join", "channel": "general"})
	require.Equal(t, "joined", next(t, aob)["type"])

	send(t, bao, map[string]any{"type": "startStream"})
	started := nextOf(t, aob, "streamStarted")
	assert.Equal(t, "bao", started["publisher"])

	payload := []byte{0xde, 0xad}
	send(t, bao, map[string]any{"type": "streamChunk", "sequence": 1, "kind": "audio", "payload": base64.StdEncoding.EncodeToString(payload)})
	chunk := nextOf(t, aob, "streamChunk")
	assert.Equal(t, float64(1), chunk["sequence"])
	assert.Equal(t, base64.StdEncoding.EncodeToString(payload), chunk["payload"])

	send(t, aob, map[string]any{"type": "streamChunk", "sequence": 2, "kind": "audio"})
	assert.Equal(t, "not_publishing", nextOf(t, aob, "error")["code"])

	send(t, bao, map[string]any{"type": "stopStream"})
	// the terminal chunk reaches the client before streamStopped
	var end map[string]any
	for range 10 {
		ev := next(t, aob)
		if ev["type"] == "streamChunk" {
			end = ev
		}
		if ev["type"] == "streamStopped" {
			break
		}
	}
	require.NotNil(t, end, "terminal chunk must precede streamStopped")
	assert.Equal(t, true, end["end"])
	assert.Equal(t, float64(2), end["sequence"])
}

func TestRateLimiter_SlidingWindow(t *testing.T) {
	rl := NewRateLimiter(2, time.Second)
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("bao"))
	assert.True(t, rl.Allow("bao"))
	assert.False(t, rl.Allow("bao"))
	assert.True(t, rl.Allow("aob"))

	now = now.Add(1100 * time.Millisecond)
	assert.True(t, rl.Allow("bao"))

	rl.Forget("bao")
	assert.True(t, rl.Allow("bao"))
	assert.True(t, rl.Allow("bao"))
}
