package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reportaciudad",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route, method and status.",
	}, []string{"route", "method", "status"})

	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "reportaciudad",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})

	// ModerationActionsTotal counts moderation decisions by action and outcome.
	ModerationActionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reportaciudad",
		Subsystem: "moderation",
		Name:      "actions_total",
		Help:      "Moderation actions by action and result.",
	}, []string{"action", "result"})

	PendingReports = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "reportaciudad",
		Subsystem: "badges",
		Name:      "pending_reports",
		Help:      "Reports waiting for moderation, as of the last badge refresh.",
	})

	PendingUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "reportaciudad",
		Subsystem: "badges",
		Name:      "pending_users",
		Help:      "Accounts waiting for validation, as of the last badge refresh.",
	})

	BadgeRefreshTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reportaciudad",
		Subsystem: "badges",
		Name:      "refresh_total",
		Help:      "Badge refreshes by result.",
	}, []string{"result"})

	WebsocketClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "reportaciudad",
		Subsystem: "badges",
		Name:      "websocket_clients",
		Help:      "Connected badge websocket clients.",
	})

	ClusterDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "reportaciudad",
		Subsystem: "cluster",
		Name:      "duration_seconds",
		Help:      "Time spent clustering reports for one viewport.",
		Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
	})
)

// Register registers the collectors with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDurationSeconds,
			ModerationActionsTotal,
			PendingReports,
			PendingUsers,
			BadgeRefreshTotal,
			WebsocketClients,
			ClusterDurationSeconds,
		)
	})
}

// Handler serves /metrics.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// Middleware records request count and latency by matched route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		HTTPRequestsTotal.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPRequestDurationSeconds.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}

// ObserveModeration 记录一次审核动作
func ObserveModeration(action string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	ModerationActionsTotal.WithLabelValues(action, result).Inc()
}
