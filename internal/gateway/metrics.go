package gateway

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics はゲートウェイのPrometheusメトリクス。
// session.Observer を実装し、セッション管理の出来事をカウンタに反映する。
type Metrics struct {
	registry *prometheus.Registry

	// Session metrics
	Logins        *prometheus.CounterVec
	CacheLookups  *prometheus.CounterVec
	Invalidations prometheus.Counter
	Upstream      *prometheus.CounterVec

	// HTTP metrics
	APIRequests *prometheus.CounterVec
	APILatency  *prometheus.HistogramVec
}

// NewMetrics はサーバーごとのレジストリにメトリクスを登録する。
// グローバルレジストリを使わないため、テストで複数のサーバーを生成できる。
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Logins: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "routergw_logins_total",
			Help: "Upstream login attempts by result",
		}, []string{"result"}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "routergw_token_cache_lookups_total",
			Help: "Token cache lookups by result",
		}, []string{"result"}),
		Invalidations: factory.NewCounter(prometheus.CounterOpts{
			Name: "routergw_token_invalidations_total",
			Help: "Cached tokens discarded after an upstream 401",
		}),
		Upstream: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "routergw_upstream_requests_total",
			Help: "Forwarded upstream requests by endpoint and status code",
		}, []string{"endpoint", "code"}),
		APIRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "routergw_http_requests_total",
			Help: "HTTP requests served by the gateway",
		}, []string{"method", "route", "code"}),
		APILatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "routergw_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// ObserveLogin はログインの結果を記録する。
func (m *Metrics) ObserveLogin(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	m.Logins.WithLabelValues(result).Inc()
}

// ObserveCacheLookup はキャッシュ参照の結果を記録する。
func (m *Metrics) ObserveCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// ObserveUpstream は上流APIへの転送結果を記録する。応答が無い場合のcodeは "none"。
func (m *Metrics) ObserveUpstream(endpoint string, status int) {
	code := "none"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	m.Upstream.WithLabelValues(endpoint, code).Inc()
}

// ObserveInvalidation はキャッシュの破棄を記録する。
func (m *Metrics) ObserveInvalidation() {
	m.Invalidations.Inc()
}

// Middleware はリクエスト数とレイテンシを記録するGinミドルウェアを返す。
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.APIRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.APILatency.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// Handler はPrometheusのエクスポジション形式でメトリクスを返すハンドラ。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
