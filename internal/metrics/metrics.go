// Package metrics exposes the synchronisation counters of a peer as Prometheus collectors.
// Labels are bounded: message kinds, outcomes and roles, never peer or entity ids.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every collector on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	Frames          prometheus.Counter
	FrameDuration   prometheus.Histogram
	TicksSimulated  prometheus.Counter
	SnapshotsSent   prometheus.Counter
	SnapshotsDrop   prometheus.Counter
	InputsDropped   prometheus.Counter
	StaleSnapshots  prometheus.Counter
	Packets         *prometheus.CounterVec
	Desyncs         prometheus.Counter
	Reconciliations *prometheus.CounterVec
	Replayed        prometheus.Histogram
	HistoryLength   prometheus.Gauge
	Peers           prometheus.Gauge
	Entities        prometheus.Gauge
	ClockDrift      prometheus.Gauge
	RTT             prometheus.Gauge
}

// New registers the collectors under the netsync namespace with a constant role label.
func New(role string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(prometheus.WrapRegistererWith(prometheus.Labels{"role": role}, reg))
	const ns = "netsync"
	return &Metrics{
		registry: reg,
		Frames: f.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "frames_total", Help: "Frame loop iterations.",
		}),
		FrameDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Name: "frame_duration_seconds", Help: "Wall time spent in one frame.",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.016, 0.033},
		}),
		TicksSimulated: f.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "ticks_simulated_total", Help: "Fixed simulation steps taken across all entities.",
		}),
		SnapshotsSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "snapshots_sent_total", Help: "Snapshots queued to peers.",
		}),
		SnapshotsDrop: f.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "snapshots_dropped_total", Help: "Snapshots dropped by a full queue or spent bandwidth budget.",
		}),
		InputsDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "inputs_dropped_total", Help: "Inputs that arrived for already simulated ticks or unknown entities.",
		}),
		StaleSnapshots: f.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "stale_snapshots_total", Help: "Snapshots older than the newest one held for the entity.",
		}),
		Packets: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "packets_received_total", Help: "Decoded packets by message kind.",
		}, []string{"kind"}),
		Desyncs: f.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "protocol_desync_total", Help: "Malformed packets that disconnected a peer.",
		}),
		Reconciliations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "reconciliations_total", Help: "Own-entity snapshots by reconciliation outcome.",
		}, []string{"outcome"}),
		Replayed: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Name: "replayed_entries", Help: "Entries recomputed by one correction.",
			Buckets: prometheus.LinearBuckets(0, 5, 10),
		}),
		HistoryLength: f.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "history_length", Help: "Predicted states held for reconciliation.",
		}),
		Peers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "peers", Help: "Connected peers.",
		}),
		Entities: f.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "entities", Help: "Known entities.",
		}),
		ClockDrift: f.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "clock_drift_seconds", Help: "Local synced clock minus server clock.",
		}),
		RTT: f.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "rtt_seconds", Help: "Smoothed round trip to the server.",
		}),
	}
}

// ObserveFrame records one frame's wall time.
func (m *Metrics) ObserveFrame(d time.Duration) {
	if m == nil {
		return
	}
	m.Frames.Inc()
	m.FrameDuration.Observe(d.Seconds())
}

// Registry exposes the private registry, e.g. for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
