// Package telemetry exports driver metrics for Prometheus.
package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "framepump"

// Metrics is safe to use through a nil pointer, which records nothing.
type Metrics struct {
	chunks        prometheus.Counter
	chunkBytes    prometheus.Counter
	busy          prometheus.Counter
	formatChanges prometheus.Counter
	units         prometheus.Counter
	unitBytes     prometheus.Counter
	failures      *prometheus.CounterVec
	state         prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		chunks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "driver", Name: "chunks_fed_total",
			Help: "Input chunks accepted by the transform",
		}),
		chunkBytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "driver", Name: "chunk_bytes_total",
			Help: "Encoded bytes accepted by the transform",
		}),
		busy: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "driver", Name: "busy_total",
			Help: "Feed attempts rejected because the transform was busy",
		}),
		formatChanges: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "driver", Name: "format_changes_total",
			Help: "Output format renegotiations",
		}),
		units: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "driver", Name: "units_total",
			Help: "Decoded units yielded",
		}),
		unitBytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "driver", Name: "unit_bytes_total",
			Help: "Decoded bytes yielded",
		}),
		failures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "driver", Name: "failures_total",
			Help: "Streams that ended in an error, by kind",
		}, []string{"kind"}),
		state: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "driver", Name: "state",
			Help: "Driver state (0 feeding, 1 draining, 2 finished)",
		}),
	}
}

func (m *Metrics) ChunkFed(n int) {
	if m == nil {
		return
	}
	m.chunks.Inc()
	m.chunkBytes.Add(float64(n))
}

func (m *Metrics) Busy() {
	if m != nil {
		m.busy.Inc()
	}
}

func (m *Metrics) FormatChanged() {
	if m != nil {
		m.formatChanges.Inc()
	}
}

func (m *Metrics) UnitYielded(n int) {
	if m == nil {
		return
	}
	m.units.Inc()
	m.unitBytes.Add(float64(n))
}

func (m *Metrics) Failed(kind string) {
	if m != nil {
		m.failures.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) SetState(v int) {
	if m != nil {
		m.state.Set(float64(v))
	}
}

// NewServer serves g on /metrics.
func NewServer(port int, g prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
