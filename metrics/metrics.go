// Package metrics exposes Prometheus instrumentation for the realtime
// client. All methods are nil-safe so an uninstrumented client costs
// nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Config controls metric registration.
type Config struct {
	// Namespace is the metrics namespace (default: "gamelink").
	Namespace string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

type Option func(*Config)

func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

// Metrics holds the client's Prometheus collectors.
type Metrics struct {
	connectsTotal     prometheus.Counter
	reconnectsTotal   prometheus.Counter
	framesTotal       *prometheus.CounterVec
	eventsDispatched  *prometheus.CounterVec
	eventsDropped     prometheus.Counter
	heartbeatDegraded prometheus.Counter
	connectionState   prometheus.Gauge
}

// New registers the client metrics and returns the handle passed to
// realtime.WithMetrics.
func New(opts ...Option) *Metrics {
	config := Config{
		Namespace: "gamelink",
		Registry:  prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(&config)
	}

	factory := promauto.With(config.Registry)

	return &Metrics{
		connectsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "connects_total",
			Help:        "Total number of successful handshakes",
			ConstLabels: config.ConstLabels,
		}),
		reconnectsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "reconnects_total",
			Help:        "Total number of reconnection attempts scheduled",
			ConstLabels: config.ConstLabels,
		}),
		framesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "frames_total",
			Help:        "Inbound frames by protocol kind",
			ConstLabels: config.ConstLabels,
		}, []string{"kind"}),
		eventsDispatched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "events_dispatched_total",
			Help:        "Application events dispatched to handlers",
			ConstLabels: config.ConstLabels,
		}, []string{"event"}),
		eventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "events_dropped_total",
			Help:        "Application events dropped for missing required fields",
			ConstLabels: config.ConstLabels,
		}),
		heartbeatDegraded: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "heartbeat_degraded_total",
			Help:        "Times the heartbeat monitor flagged a degraded connection",
			ConstLabels: config.ConstLabels,
		}),
		connectionState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Name:        "connection_state",
			Help:        "Current connection state (0 disconnected, 1 connecting, 2 connected, 3 error)",
			ConstLabels: config.ConstLabels,
		}),
	}
}

func (m *Metrics) ObserveConnect() {
	if m == nil {
		return
	}
	m.connectsTotal.Inc()
}

func (m *Metrics) ObserveReconnectScheduled() {
	if m == nil {
		return
	}
	m.reconnectsTotal.Inc()
}

func (m *Metrics) ObserveFrame(kind string) {
	if m == nil {
		return
	}
	m.framesTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveEventDispatched(event string) {
	if m == nil {
		return
	}
	m.eventsDispatched.WithLabelValues(event).Inc()
}

func (m *Metrics) ObserveEventDropped() {
	if m == nil {
		return
	}
	m.eventsDropped.Inc()
}

func (m *Metrics) ObserveHeartbeatDegraded() {
	if m == nil {
		return
	}
	m.heartbeatDegraded.Inc()
}

func (m *Metrics) SetConnectionState(state int) {
	if m == nil {
		return
	}
	m.connectionState.Set(float64(state))
}
