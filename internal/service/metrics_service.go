package service

import (
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/internal/models"
)

// Notification trigger labels.
const (
	NotifyTriggerManual = "manual"
	NotifyTriggerAuto   = "auto"
)

// MetricsService encapsulates Prometheus instrumentation for HTTP traffic, the
// directory cache and workflow transitions.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Histogram
	cacheWrite      prometheus.Histogram
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	decisions       *prometheus.CounterVec
	forwards        prometheus.Counter
	payments        prometheus.Counter
	notifications   *prometheus.CounterVec
	mailDeliveries  *prometheus.CounterVec

	requestCount         uint64
	requestDurationTotal uint64
	cacheHitCount        uint64
	cacheMissCount       uint64
	decisionCount        uint64
	forwardCount         uint64
	paymentCount         uint64
	notificationCount    uint64
	mailFailureCount     uint64
}

// NewMetricsService registers the collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	m := &MetricsService{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		cacheLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "directory_cache_latency_seconds",
			Help:    "Latency for directory cache lookups",
			Buckets: prometheus.DefBuckets,
		}),
		cacheWrite: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "directory_cache_write_seconds",
			Help:    "Latency for directory cache writes",
			Buckets: prometheus.DefBuckets,
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "directory_cache_hits_total",
			Help: "Directory cache hits",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "directory_cache_misses_total",
			Help: "Directory cache misses",
		}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_decisions_total",
			Help: "Coordinator decisions recorded, by outcome",
		}, []string{"status"}),
		forwards: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "payment_batches_forwarded_total",
			Help: "Batches forwarded to the payer",
		}),
		payments: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "payment_requests_paid_total",
			Help: "Payment confirmations recorded",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_notifications_total",
			Help: "Payment notice dispatches, by trigger and outcome",
		}, []string{"trigger", "outcome"}),
		mailDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mail_deliveries_total",
			Help: "Individual mail deliveries, by outcome",
		}, []string{"outcome"}),
	}

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(m.requestDuration, m.requestTotal, m.cacheLatency, m.cacheWrite,
		m.cacheHits, m.cacheMisses, m.decisions, m.forwards, m.payments, m.notifications, m.mailDeliveries, goroutines)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry exposes the underlying registry.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records a cache hit or miss.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
		return
	}
	m.cacheMisses.Inc()
	atomic.AddUint64(&m.cacheMissCount, 1)
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordDecision counts a coordinator decision.
func (m *MetricsService) RecordDecision(status models.PaymentStatus) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(string(status)).Inc()
	atomic.AddUint64(&m.decisionCount, 1)
}

// RecordForward counts a batch forwarded for the first time.
func (m *MetricsService) RecordForward() {
	if m == nil {
		return
	}
	m.forwards.Inc()
	atomic.AddUint64(&m.forwardCount, 1)
}

// RecordPayment counts a payment confirmation.
func (m *MetricsService) RecordPayment() {
	if m == nil {
		return
	}
	m.payments.Inc()
	atomic.AddUint64(&m.paymentCount, 1)
}

// RecordNotification counts a dispatch attempt.
func (m *MetricsService) RecordNotification(trigger string, success bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.notifications.WithLabelValues(trigger, outcome).Inc()
	if success {
		atomic.AddUint64(&m.notificationCount, 1)
	}
}

// RecordMailDelivery counts one mail delivery attempt.
func (m *MetricsService) RecordMailDelivery(success bool) {
	if m == nil {
		return
	}
	if success {
		m.mailDeliveries.WithLabelValues("sent").Inc()
		return
	}
	m.mailDeliveries.WithLabelValues("failed").Inc()
	atomic.AddUint64(&m.mailFailureCount, 1)
}

// Snapshot returns aggregated counters for the metrics JSON endpoint.
func (m *MetricsService) Snapshot() models.MetricsSnapshot {
	if m == nil {
		return models.MetricsSnapshot{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	if total := hits + misses; total > 0 {
		cacheRatio = float64(hits) / float64(total)
	}
	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return models.MetricsSnapshot{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		CacheHits:                hits,
		CacheMisses:              misses,
		CacheHitRatio:            cacheRatio,
		Decisions:                atomic.LoadUint64(&m.decisionCount),
		BatchesForwarded:         atomic.LoadUint64(&m.forwardCount),
		PaymentsConfirmed:        atomic.LoadUint64(&m.paymentCount),
		NotificationsSent:        atomic.LoadUint64(&m.notificationCount),
		MailFailures:             atomic.LoadUint64(&m.mailFailureCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
