package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bsn_realtime"

// Metrics holds the gateway collectors. Each instance owns its registry, so
// tests can create as many as they like.
type Metrics struct {
	Connections     prometheus.Gauge
	FramesIn        *prometheus.CounterVec
	FramesOut       *prometheus.CounterVec
	FramesDropped   prometheus.Counter
	Closes          *prometheus.CounterVec
	Published       *prometheus.CounterVec
	PublishFailures *prometheus.CounterVec
	Delivered       prometheus.Counter
	PersistLatency  prometheus.Histogram
	PersistAttempts prometheus.Histogram

	registry *prometheus.Registry
}

func New() *Metrics {
	m := &Metrics{
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Open websocket connections in READY state.",
		}),
		FramesIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_in_total",
			Help:      "Inbound frames by command type.",
		}, []string{"type"}),
		FramesOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_out_total",
			Help:      "Outbound frames by kind.",
		}, []string{"kind"}),
		FramesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Outbound frames dropped because a client send buffer was full.",
		}),
		Closes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "closes_total",
			Help:      "Connection closes by close code.",
		}, []string{"code"}),
		Published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broker_published_total",
			Help:      "Events accepted by the broker transport.",
		}, []string{"transport"}),
		PublishFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broker_publish_failures_total",
			Help:      "Events the broker transport refused.",
		}, []string{"transport"}),
		Delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broker_local_deliveries_total",
			Help:      "Events handed to local connection handles.",
		}),
		PersistLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "persist_seconds",
			Help:      "Chat message persistence latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		PersistAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "persist_attempts",
			Help:      "Transaction attempts per persisted chat message.",
			Buckets:   []float64{1, 2, 3},
		}),
		registry: prometheus.NewRegistry(),
	}
	m.Register(m.registry)
	return m
}

func (m *Metrics) Register(r prometheus.Registerer) {
	r.MustRegister(
		m.Connections,
		m.FramesIn,
		m.FramesOut,
		m.FramesDropped,
		m.Closes,
		m.Published,
		m.PublishFailures,
		m.Delivered,
		m.PersistLatency,
		m.PersistAttempts,
	)
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		Registry:          m.registry,
		EnableOpenMetrics: true,
	})
}
