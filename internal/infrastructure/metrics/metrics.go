// Package metrics exposes connector and relay counters to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"ikedadada/go-onehop/internal/domain/apperror"
	vo "ikedadada/go-onehop/internal/domain/value_object"
)

const namespace = "onehop"

// Metrics groups every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	channelsOpened  *prometheus.CounterVec
	channelsClosed  prometheus.Counter
	circuitsBuilt   prometheus.Counter
	streamsOpened   prometheus.Counter
	connectFailures *prometheus.CounterVec
	connectDuration prometheus.Histogram
	relayedBytes    *prometheus.CounterVec
	relayCircuits   prometheus.Gauge
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		channelsOpened: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "channels_total",
			Help: "Channels handed out, by provenance.",
		}, []string{"provenance"}),
		channelsClosed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "channels_dropped_total",
			Help: "Channels dropped by housekeeping.",
		}),
		circuitsBuilt: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "circuits_built_total",
			Help: "Circuits that finished CREATE_FAST.",
		}),
		streamsOpened: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "streams_opened_total",
			Help: "Streams that reached CONNECTED.",
		}),
		connectFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "connect_failures_total",
			Help: "Failed connect attempts, by error kind.",
		}, []string{"kind"}),
		connectDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "connect_duration_seconds",
			Help:    "Time from Connect to an open stream.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		relayedBytes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "relay_bytes_total",
			Help: "Bytes relayed between circuits and exit connections.",
		}, []string{"direction"}),
		relayCircuits: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "relay_open_circuits",
			Help: "Circuits currently open on the relay.",
		}),
	}
}

func (m *Metrics) ObserveChannel(p vo.Provenance) {
	if m == nil {
		return
	}
	m.channelsOpened.WithLabelValues(p.String()).Inc()
}

func (m *Metrics) ObserveChannelDropped() {
	if m == nil {
		return
	}
	m.channelsClosed.Inc()
}

func (m *Metrics) ObserveCircuit() {
	if m == nil {
		return
	}
	m.circuitsBuilt.Inc()
}

func (m *Metrics) ObserveStream() {
	if m == nil {
		return
	}
	m.streamsOpened.Inc()
}

// ObserveConnect records one finished connect attempt.
func (m *Metrics) ObserveConnect(start time.Time, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.connectFailures.WithLabelValues(apperror.KindOf(err).String()).Inc()
		return
	}
	m.connectDuration.Observe(time.Since(start).Seconds())
}

// ObserveRelayed counts bytes; direction is "exit" or "client".
func (m *Metrics) ObserveRelayed(direction string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.relayedBytes.WithLabelValues(direction).Add(float64(n))
}

func (m *Metrics) RelayCircuitOpened() {
	if m == nil {
		return
	}
	m.relayCircuits.Inc()
}

func (m *Metrics) RelayCircuitClosed() {
	if m == nil {
		return
	}
	m.relayCircuits.Dec()
}
