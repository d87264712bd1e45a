package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New("chatter")
	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()
	m.MessagePosted()
	m.ObserveChunks("forwarded", 3)
	m.ObserveChunks("dropped", 0)
	m.EventDropped("kick")
	m.AuthAttempt("ok")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.sessions))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.messages))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.chunks.WithLabelValues("forwarded")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.eventsDropped.WithLabelValues("kick")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "chatter_messages_posted_total 1")
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SessionOpened()
		m.SetChannels(3)
		m.ObserveChunks("forwarded", 1)
		m.AuthAttempt("fail")
	})
}
