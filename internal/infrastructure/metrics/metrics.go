// Package metrics owns the bridge's Prometheus instrumentation. Every
// instance carries a private registry so tests can build as many as they want
// without duplicate-registration panics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "meshbridge"

// Metrics holds the bridge-wide counters. Instantaneous values (queue size,
// tokens, link state) are wired later as gauge functions once the components
// that own them exist.
type Metrics struct {
	registry *prometheus.Registry

	CommandsProcessed prometheus.Counter
	CommandsDropped   prometheus.Counter
	CommandsDebounced prometheus.Counter

	EventsIngested *prometheus.CounterVec
	EventsDropped  prometheus.Counter

	WebhookAttempts *prometheus.CounterVec
	WebhookFailures *prometheus.CounterVec
}

// New builds the counter set on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		CommandsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_processed_total",
			Help:      "Commands the worker dispatched to the device.",
		}),
		CommandsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_dropped_total",
			Help:      "Commands rejected or evicted by the bounded queue.",
		}),
		CommandsDebounced: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_debounced_total",
			Help:      "Commands suppressed as duplicates within the debounce window.",
		}),
		EventsIngested: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_ingested_total",
			Help:      "Device events consumed by the normalizer.",
		}, []string{"type"}),
		EventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Device events dropped because a subscriber buffer was full.",
		}),
		WebhookAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_attempts_total",
			Help:      "Webhook POST attempts, including retries.",
		}, []string{"kind"}),
		WebhookFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_failures_total",
			Help:      "Webhook dispatches that exhausted every attempt.",
		}, []string{"kind"}),
	}
}

// RegisterPipelineGauges exposes the command pipeline's instantaneous state.
func (m *Metrics) RegisterPipelineGauges(queueSize, tokensAvailable, debounceSize func() float64) {
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_size",
			Help:      "Commands currently waiting in the bounded queue.",
		}, queueSize),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rate_limit_tokens_available",
			Help:      "Tokens currently available to the command worker; -1 when rate limiting is disabled.",
		}, tokensAvailable),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "debounce_cache_size",
			Help:      "Entries currently held by the debounce cache.",
		}, debounceSize),
	)
}

// RegisterDeviceGauge exposes the device link state as 0/1.
func (m *Metrics) RegisterDeviceGauge(connected func() bool) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "device_connected",
		Help:      "Whether the device link is currently up.",
	}, func() float64 {
		if connected() {
			return 1
		}
		return 0
	}))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
