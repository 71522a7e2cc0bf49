package metric

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storyline"

// Registry holds all application metrics.
type Registry struct {
	registry *prometheus.Registry

	// Save store metrics
	SaveOps         *prometheus.CounterVec
	SaveOpDuration  *prometheus.HistogramVec
	LockContentions *prometheus.CounterVec
	Degraded        prometheus.Gauge
	Migrated        prometheus.Counter

	// History metrics
	HistoryLength prometheus.Gauge
	HistoryIndex  prometheus.Gauge

	// Session snapshot metrics
	SessionWrites  *prometheus.CounterVec
	SessionRetries prometheus.Counter
	SessionBytes   prometheus.Gauge

	// Quarantine metrics
	QuarantineFailures prometheus.Counter
}

// NewRegistry creates a registry with every storyline metric registered,
// plus the Go runtime and process collectors.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		registry: reg,
		SaveOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "savestore",
			Name:      "operations_total",
			Help:      "Save store operations by kind and status.",
		}, []string{"op", "status"}),
		SaveOpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "savestore",
			Name:      "operation_duration_seconds",
			Help:      "Save store operation latency.",
			Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"op"}),
		LockContentions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "savestore",
			Name:      "lock_contentions_total",
			Help:      "Mutations rejected because another one was in flight.",
		}, []string{"op"}),
		Degraded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "savestore",
			Name:      "degraded",
			Help:      "1 when the save store fell back to the legacy store.",
		}),
		Migrated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "savestore",
			Name:      "migrated_slots_total",
			Help:      "Legacy slots copied into the save store.",
		}),
		HistoryLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "length",
			Help:      "Number of moments in the history.",
		}),
		HistoryIndex: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "index",
			Help:      "Active moment index.",
		}),
		SessionWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "writes_total",
			Help:      "Session snapshot writes by result.",
		}, []string{"result"}),
		SessionRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "shrink_retries_total",
			Help:      "Session snapshot writes retried at a smaller depth.",
		}),
		SessionBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "snapshot_bytes",
			Help:      "Size of the last stored session snapshot.",
		}),
		QuarantineFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "quarantine",
			Name:      "restore_failures_total",
			Help:      "Quarantined values that could not be restored.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.SaveOps,
		r.SaveOpDuration,
		r.LockContentions,
		r.Degraded,
		r.Migrated,
		r.HistoryLength,
		r.HistoryIndex,
		r.SessionWrites,
		r.SessionRetries,
		r.SessionBytes,
		r.QuarantineFailures,
	)
	return r
}

var (
	globalOnce sync.Once
	global     *Registry
)

// Global returns the process-wide registry.
func Global() *Registry {
	globalOnce.Do(func() {
		global = NewRegistry()
	})
	return global
}

// Handler returns an HTTP handler for the /metrics endpoint of the global
// registry.
func Handler() http.Handler {
	return Global().Handler()
}

// Handler returns an HTTP handler exposing r.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Prometheus returns the underlying registry, for registering extra
// collectors.
func (r *Registry) Prometheus() *prometheus.Registry {
	return r.registry
}

// Register adds a collector to r.
func (r *Registry) Register(c prometheus.Collector) error {
	if r == nil {
		return nil
	}
	return r.registry.Register(c)
}

// ObserveSaveOp records one save store operation.
func (r *Registry) ObserveSaveOp(op, status string, d time.Duration) {
	if r == nil {
		return
	}
	r.SaveOps.WithLabelValues(op, status).Inc()
	r.SaveOpDuration.WithLabelValues(op).Observe(d.Seconds())
}

// IncLockContention counts a mutation rejected by the save store lock.
func (r *Registry) IncLockContention(op string) {
	if r == nil {
		return
	}
	r.LockContentions.WithLabelValues(op).Inc()
}

// SetDegraded records the save store mode.
func (r *Registry) SetDegraded(degraded bool) {
	if r == nil {
		return
	}
	if degraded {
		r.Degraded.Set(1)
	} else {
		r.Degraded.Set(0)
	}
}

// AddMigrated counts migrated legacy slots.
func (r *Registry) AddMigrated(n int) {
	if r == nil {
		return
	}
	r.Migrated.Add(float64(n))
}

// SetHistory records the history shape.
func (r *Registry) SetHistory(length, index int) {
	if r == nil {
		return
	}
	r.HistoryLength.Set(float64(length))
	r.HistoryIndex.Set(float64(index))
}

// ObserveSessionWrite records the outcome of a session snapshot write.
func (r *Registry) ObserveSessionWrite(ok bool, retries int, size int) {
	if r == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	r.SessionWrites.WithLabelValues(result).Inc()
	r.SessionRetries.Add(float64(retries))
	if ok {
		r.SessionBytes.Set(float64(size))
	}
}

// AddQuarantineFailures counts values that could not be restored.
func (r *Registry) AddQuarantineFailures(n int) {
	if r == nil || n == 0 {
		return
	}
	r.QuarantineFailures.Add(float64(n))
}
