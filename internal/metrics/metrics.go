// Package metrics exposes Prometheus collectors for the daemon.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dokzlo13/climated/internal/device"
	"github.com/dokzlo13/climated/internal/eventbus"
)

const namespace = "climated"

// Metrics holds every collector, registered on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	Ticks          prometheus.Counter
	TickDuration   prometheus.Histogram
	Transitions    *prometheus.CounterVec
	DeviceCalls    *prometheus.CounterVec
	CallDuration   *prometheus.HistogramVec
	DroppedEvents  *prometheus.CounterVec
	ActiveGroups   prometheus.Gauge
	ActiveOverride prometheus.Gauge
	WebhookErrors  prometheus.Counter
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Resolution passes over all groups.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Time spent resolving and applying all groups in one pass.",
			Buckets:   prometheus.DefBuckets,
		}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Effective-node transitions emitted, by trigger.",
		}, []string{"trigger"}),
		DeviceCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_calls_total",
			Help:      "Device calls issued, by call and result.",
		}, []string{"call", "result"}),
		CallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "device_call_duration_seconds",
			Help:      "Latency of device calls.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"call"}),
		DroppedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "eventbus_dropped_total",
			Help:      "Events dropped because the bus queue was full or closed.",
		}, []string{"type"}),
		ActiveGroups: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_groups",
			Help:      "Groups resolved on the last tick.",
		}),
		ActiveOverride: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_overrides",
			Help:      "Groups currently held by a manual advance.",
		}),
		WebhookErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_errors_total",
			Help:      "Failed outbound webhook deliveries.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Ticks,
		m.TickDuration,
		m.Transitions,
		m.DeviceCalls,
		m.CallDuration,
		m.DroppedEvents,
		m.ActiveGroups,
		m.ActiveOverride,
		m.WebhookErrors,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// CallDone implements apply.Observer.
func (m *Metrics) CallDone(_ string, cmd device.Command, elapsed time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.DeviceCalls.WithLabelValues(string(cmd.Call), result).Inc()
	m.CallDuration.WithLabelValues(string(cmd.Call)).Observe(elapsed.Seconds())
}

// EventDropped counts a dropped bus event. Pass it to eventbus.Bus.OnDrop.
func (m *Metrics) EventDropped(t eventbus.EventType) {
	m.DroppedEvents.WithLabelValues(string(t)).Inc()
}
