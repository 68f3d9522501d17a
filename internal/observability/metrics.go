package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	dispatchQueueDepth    prometheus.Gauge
	dispatchEnqueueTotal  prometheus.Counter
	dispatchDeliveryTotal *prometheus.CounterVec
	dispatchRequeueTotal  prometheus.Counter
	dispatchSendDuration  prometheus.Histogram
	dispatchItemWait      prometheus.Histogram

	activeSessions       prometheus.Gauge
	sessionEvictionTotal *prometheus.CounterVec
	sessionLockWait      prometheus.Histogram

	generationAttemptTotal *prometheus.CounterVec
	generationDuration     *prometheus.HistogramVec

	routedEventTotal *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			dispatchQueueDepth: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "kodok_dispatch_queue_depth",
					Help: "Messages waiting in the outbound dispatch queue.",
				},
			),
			dispatchEnqueueTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "kodok_dispatch_enqueue_total",
					Help: "Total messages accepted for delivery.",
				},
			),
			dispatchDeliveryTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "kodok_dispatch_delivery_total",
					Help: "Delivery attempts by status (sent, rate_limited, dropped).",
				},
				[]string{"status"},
			),
			dispatchRequeueTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "kodok_dispatch_requeue_total",
					Help: "Messages put back at the tail of the queue after throttling.",
				},
			),
			dispatchSendDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "kodok_dispatch_send_duration_seconds",
					Help:    "Duration of a single delivery call in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			dispatchItemWait: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "kodok_dispatch_item_wait_seconds",
					Help:    "Time between enqueue and delivery attempt in seconds.",
					Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120},
				},
			),
			activeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "kodok_active_sessions",
					Help: "Conversations currently held in memory.",
				},
			),
			sessionEvictionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "kodok_session_eviction_total",
					Help: "Conversations evicted by reason (idle, ended, dropped).",
				},
				[]string{"reason"},
			),
			sessionLockWait: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "kodok_session_lock_wait_seconds",
					Help:    "Time spent waiting for a per-conversation lock in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			generationAttemptTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "kodok_generation_attempt_total",
					Help: "Completion attempts by provider and status.",
				},
				[]string{"provider", "status"},
			),
			generationDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "kodok_generation_duration_seconds",
					Help:    "End-to-end reply generation duration including retries.",
					Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 20, 40},
				},
				[]string{"provider"},
			),
			routedEventTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "kodok_routed_event_total",
					Help: "Inbound events by route.",
				},
				[]string{"route"},
			),
		}

		prometheus.MustRegister(
			m.dispatchQueueDepth,
			m.dispatchEnqueueTotal,
			m.dispatchDeliveryTotal,
			m.dispatchRequeueTotal,
			m.dispatchSendDuration,
			m.dispatchItemWait,
			m.activeSessions,
			m.sessionEvictionTotal,
			m.sessionLockWait,
			m.generationAttemptTotal,
			m.generationDuration,
			m.routedEventTotal,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordDispatchEnqueue(queueDepth int) {
	m := getMetrics()
	m.dispatchEnqueueTotal.Inc()
	m.dispatchQueueDepth.Set(float64(queueDepth))
}

func SetDispatchQueueDepth(queueDepth int) {
	m := getMetrics()
	m.dispatchQueueDepth.Set(float64(queueDepth))
}

// RecordDispatchDelivery records one delivery attempt. status is one of
// "sent", "rate_limited" or "dropped".
func RecordDispatchDelivery(status string, sendDuration, waited time.Duration) {
	m := getMetrics()
	m.dispatchDeliveryTotal.WithLabelValues(status).Inc()
	m.dispatchSendDuration.Observe(sendDuration.Seconds())
	m.dispatchItemWait.Observe(waited.Seconds())
}

func RecordDispatchRequeue(queueDepth int) {
	m := getMetrics()
	m.dispatchRequeueTotal.Inc()
	m.dispatchQueueDepth.Set(float64(queueDepth))
}

func SetActiveSessions(count int) {
	m := getMetrics()
	m.activeSessions.Set(float64(count))
}

func RecordSessionEviction(reason string) {
	m := getMetrics()
	m.sessionEvictionTotal.WithLabelValues(reason).Inc()
}

func RecordSessionLockWait(waited time.Duration) {
	m := getMetrics()
	m.sessionLockWait.Observe(waited.Seconds())
}

func RecordGenerationAttempt(provider string, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.generationAttemptTotal.WithLabelValues(provider, status).Inc()
}

func RecordGeneration(provider string, duration time.Duration) {
	m := getMetrics()
	m.generationDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func RecordRoutedEvent(route string) {
	m := getMetrics()
	m.routedEventTotal.WithLabelValues(route).Inc()
}
