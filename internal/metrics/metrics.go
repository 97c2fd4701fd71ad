package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "shelfwise"

// Metrics groups the collectors of the checkout service. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	CheckoutAttempts *prometheus.CounterVec
	CheckoutDuration prometheus.Histogram
	GatewayRequests  *prometheus.CounterVec
	GatewayLatency   *prometheus.HistogramVec
	WebhookEvents    *prometheus.CounterVec
	LedgerEntries    *prometheus.CounterVec
	OutboxEvents     *prometheus.CounterVec
	HTTPRequests     *prometheus.CounterVec
	HTTPLatency      *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CheckoutAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "attempts_total",
			Help:      "Checkout attempts by outcome.",
		}, []string{"outcome"}),
		CheckoutDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "duration_seconds",
			Help:      "Time spent in the checkout transaction and payment initiation.",
			Buckets:   prometheus.DefBuckets,
		}),
		GatewayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Outbound payment gateway calls by gateway, operation and outcome.",
		}, []string{"gateway", "operation", "outcome"}),
		GatewayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "request_duration_seconds",
			Help:      "Outbound payment gateway call latency.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"gateway", "operation"}),
		WebhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "webhook_events_total",
			Help:      "Inbound webhook deliveries by gateway and outcome.",
		}, []string{"gateway", "outcome"}),
		LedgerEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "entries_total",
			Help:      "Order payment ledger entries by kind and source.",
		}, []string{"kind", "source"}),
		OutboxEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "events_total",
			Help:      "Outbox events handed to the broker, by outcome.",
		}, []string{"outcome"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"route", "status"}),
		HTTPLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	reg.MustRegister(
		m.CheckoutAttempts,
		m.CheckoutDuration,
		m.GatewayRequests,
		m.GatewayLatency,
		m.WebhookEvents,
		m.LedgerEntries,
		m.OutboxEvents,
		m.HTTPRequests,
		m.HTTPLatency,
	)
	return m
}

func (m *Metrics) ObserveCheckout(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.CheckoutAttempts.WithLabelValues(outcome).Inc()
	m.CheckoutDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveGateway(gateway, operation, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.GatewayRequests.WithLabelValues(gateway, operation, outcome).Inc()
	m.GatewayLatency.WithLabelValues(gateway, operation).Observe(d.Seconds())
}

func (m *Metrics) ObserveWebhook(gateway, outcome string) {
	if m == nil {
		return
	}
	m.WebhookEvents.WithLabelValues(gateway, outcome).Inc()
}

func (m *Metrics) ObserveLedgerEntry(kind, source string) {
	if m == nil {
		return
	}
	m.LedgerEntries.WithLabelValues(kind, source).Inc()
}

func (m *Metrics) ObserveOutbox(outcome string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.OutboxEvents.WithLabelValues(outcome).Add(float64(n))
}

func (m *Metrics) ObserveHTTP(route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.HTTPLatency.WithLabelValues(route).Observe(d.Seconds())
}

// Handler serves the collectors registered on gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
