package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_http_requests_total",
			Help: "Total number of HTTP requests processed by the bridge service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bridge_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	webhookTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_webhook_total",
			Help: "Inbound webhook deliveries by platform and ingestion outcome.",
		},
		[]string{"platform", "outcome"},
	)
	fanoutSendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_fanout_sends_total",
			Help: "Outbound fan-out sends by platform and outcome.",
		},
		[]string{"platform", "outcome"},
	)
	retryAttempts = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bridge_retry_attempts",
			Help:    "Attempts consumed per retried outbound operation.",
			Buckets: []float64{1, 2, 3, 4, 5, 8},
		},
		[]string{"operation"},
	)
	wsActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bridge_ws_active_connections",
			Help: "Number of active event stream websocket connections.",
		},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_ws_events_total",
			Help: "Total number of websocket lifecycle events.",
		},
		[]string{"event"},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bridge_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		webhookTotal,
		fanoutSendsTotal,
		retryAttempts,
		wsActiveConnections,
		wsEventsTotal,
		amqpPublishErrorsTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

// Webhook ingestion outcomes.
const (
	WebhookIngested       = "ingested"
	WebhookDropInactive   = "dropped_inactive"
	WebhookDropBotEcho    = "dropped_bot_echo"
	WebhookDropGroupMatch = "dropped_group_mismatch"
	WebhookDropDuplicate  = "dropped_duplicate"
	WebhookDropBadSecret  = "dropped_bad_secret"
	WebhookFailed         = "failed"
	FanoutSent            = "sent"
	FanoutFailed          = "failed"
)

func IncWebhook(platform, outcome string) {
	webhookTotal.WithLabelValues(platform, outcome).Inc()
}

func IncFanoutSend(platform, outcome string) {
	fanoutSendsTotal.WithLabelValues(platform, outcome).Inc()
}

func ObserveRetryAttempts(operation string, attempts int) {
	retryAttempts.WithLabelValues(operation).Observe(float64(attempts))
}

func IncWSActive() {
	wsActiveConnections.Inc()
}

func DecWSActive() {
	wsActiveConnections.Dec()
}

func IncWSEvent(event string) {
	wsEventsTotal.WithLabelValues(event).Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
