// Package metrics exposes filesystem operation and capacity metrics to
// Prometheus. A nil *Metrics is valid and records nothing.
package metrics

import (
	"syscall"
	"time"

	"github.com/brettbedarf/treefs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sys/unix"
)

const namespace = "treefs"

// Label names
const (
	LabelOp     = "op"
	LabelStatus = "status"
)

type Metrics struct {
	factory promauto.Factory
	ops     *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

// New creates the operation metrics and registers them on reg.
// If reg is nil, metrics are created but not registered (useful for testing).
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		factory: f,
		ops: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ops",
				Name:      "total",
				Help:      "Total filesystem operations by result",
			},
			[]string{LabelOp, LabelStatus},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "ops",
				Name:      "duration_seconds",
				Help:      "Filesystem operation latency",
				Buckets:   []float64{0.00001, 0.0001, 0.001, 0.01, 0.1, 1},
			},
			[]string{LabelOp},
		),
	}
}

// ObserveOp records one operation with its signed status
func (m *Metrics) ObserveOp(op string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.ops.WithLabelValues(op, StatusLabel(status)).Inc()
	m.latency.WithLabelValues(op).Observe(d.Seconds())
}

// WatchTree registers gauges sampled at scrape time: live node count and,
// when usage is non-nil, block totals
func (m *Metrics) WatchTree(nodes func() int64, usage treefs.UsageReporter) {
	if m == nil {
		return
	}
	m.factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "nodes",
		Help:      "Live nodes in the tree including root",
	}, func() float64 { return float64(nodes()) })

	if usage == nil {
		return
	}
	m.factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "blocks_total",
		Help:      "Blocks on the volume",
	}, func() float64 { return float64(usage.TotalBlocks()) })
	m.factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "blocks_free",
		Help:      "Unallocated blocks on the volume",
	}, func() float64 { return float64(usage.FreeBlocks()) })
}

// StatusLabel is "ok" for non-negative statuses and the errno name otherwise
func StatusLabel(status int) string {
	if status >= 0 {
		return "ok"
	}
	if name := unix.ErrnoName(syscall.Errno(-status)); name != "" {
		return name
	}
	return "unknown"
}
