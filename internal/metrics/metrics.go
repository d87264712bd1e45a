package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	registry *prometheus.Registry

	sessions      prometheus.Gauge
	channels      prometheus.Gauge
	messages      prometheus.Counter
	eventsDropped *prometheus.CounterVec
	chunks        *prometheus.CounterVec
	authAttempts  *prometheus.CounterVec
	httpReqCnt    *prometheus.CounterVec
	httpDur       *prometheus.HistogramVec
}

func New(namespace string) *Metrics {
	r := prometheus.NewRegistry()
	r.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	r.MustRegister(collectors.NewGoCollector())

	m := &Metrics{
		registry:      r,
		sessions:      prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "sessions_online"}),
		channels:      prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "channels"}),
		messages:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "messages_posted_total"}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "events_dropped_total"}, []string{"action"}),
		chunks:        prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "stream_chunks_total"}, []string{"result"}),
		authAttempts:  prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "auth_attempts_total"}, []string{"result"}),
		httpReqCnt:    prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total"}, []string{"method", "route", "status"}),
		httpDur:       prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: namespace, Name: "http_request_duration_seconds", Buckets: prometheus.DefBuckets}, []string{"method", "route"}),
	}
	r.MustRegister(m.sessions, m.channels, m.messages, m.eventsDropped, m.chunks, m.authAttempts, m.httpReqCnt, m.httpDur)
	return m
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessions.Dec()
}

func (m *Metrics) SetChannels(n int) {
	if m == nil {
		return
	}
	m.channels.Set(float64(n))
}

func (m *Metrics) MessagePosted() {
	if m == nil {
		return
	}
	m.messages.Inc()
}

func (m *Metrics) EventDropped(action string) {
	if m == nil {
		return
	}
	m.eventsDropped.WithLabelValues(action).Inc()
}

// ObserveChunks implements sfu.ChunkObserver.
func (m *Metrics) ObserveChunks(result string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.chunks.WithLabelValues(result).Add(float64(n))
}

func (m *Metrics) AuthAttempt(result string) {
	if m == nil {
		return
	}
	m.authAttempts.WithLabelValues(result).Inc()
}

func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		start := time.Now()
		c.Next()
		m.httpReqCnt.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDur.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
