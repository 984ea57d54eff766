package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anonchat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "anonchat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Chat metrics
	MessagesAppended = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anonchat_messages_appended_total",
			Help: "Total messages appended to the store",
		},
		[]string{"sender"},
	)

	ActiveSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "anonchat_active_subscriptions",
			Help: "Live message subscriptions",
		},
	)

	// Answer service metrics
	AnswerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anonchat_answer_requests_total",
			Help: "Answer service requests by outcome",
		},
		[]string{"outcome"}, // "ok", "unsuccessful", "rejected", "error", "busy", "discarded"
	)

	AnswerLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "anonchat_answer_latency_seconds",
			Help:    "Answer service round trip latency",
			Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)
)
