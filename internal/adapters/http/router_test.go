package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dkeye/Chatter/internal/adapters/signal"
	"github.com/dkeye/Chatter/internal/app"
	"github.com/dkeye/Chatter/internal/app/orch"
	"github.com/dkeye/Chatter/internal/app/sfu"
	"github.com/dkeye/Chatter/internal/auth"
	"github.com/dkeye/Chatter/internal/config"
	"github.com/dkeye/Chatter/internal/metrics"
	transport "github.com/dkeye/Chatter/internal/transport/http"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newRouter(t *testing.T) (*gin.Engine, *metrics.Metrics) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{Mode: "test", CookieSecret: "cookie-secret-for-tests"}

	tokens, err := auth.NewTokenService("", time.Hour)
	require.NoError(t, err)
	a, err := auth.NewAuthenticator(auth.NewMemoryStore(), tokens, auth.Options{BcryptCost: bcrypt.MinCost})
	require.NoError(t, err)
	m := metrics.New("chatter_test")
	o := &orch.Orchestrator{
		Directory: app.NewDirectory(),
		Channels:  app.NewChannelManager(10),
		Policy:    app.SimplePolicy{},
		Relays:    sfu.NewRelayManager(),
		Metrics:   m,
	}
	ctrl := signal.NewSignalWSController(o, a, nil, signal.OptionsFromConfig(cfg))
	return SetupRouter(t.Context(), cfg, ctrl, transport.NewAPI(o, a), m), m
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	r, _ := newRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `chatter_test_http_requests_total{method="GET",route="/healthz",status="200"} 1`)
	assert.Contains(t, w.Body.String(), "chatter_test_sessions_online 0")
}

func TestRouter_ClientTokenCookie(t *testing.T) {
	r, _ := newRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Equal(t, "ChatterSession", cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	// a returning browser keeps its cookie
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.AddCookie(cookies[0])
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Result().Cookies())
}

func TestRouter_APIRequiresBearer(t *testing.T) {
	r, _ := newRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/channels", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
