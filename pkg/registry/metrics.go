package registry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/odvcencio/hotreg/pkg/class"
)

// Metrics holds the Prometheus collectors updated by the coordinator. A nil
// *Metrics records nothing.
type Metrics struct {
	ClassEvents    *prometheus.CounterVec
	Batches        prometheus.Counter
	ReloadFailures prometheus.Counter
	BatchDuration  prometheus.Histogram
}

// NewMetrics creates the collectors and registers them on reg when reg is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ClassEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hotreg_class_events_total",
			Help: "Class change events applied, by kind.",
		}, []string{"kind"}),
		Batches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hotreg_batches_total",
			Help: "Batches processed through the finalize and notify pipeline.",
		}),
		ReloadFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hotreg_reload_failures_total",
			Help: "File changes whose re-import failed and left classes stale.",
		}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hotreg_batch_duration_seconds",
			Help:    "Time spent processing one batch.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.ClassEvents, m.Batches, m.ReloadFailures, m.BatchDuration)
	}
	return m
}

func (m *Metrics) observeEvent(kind class.EventKind) {
	if m == nil {
		return
	}
	m.ClassEvents.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) observeBatch(start time.Time) {
	if m == nil {
		return
	}
	m.Batches.Inc()
	m.BatchDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) observeReloadFailure() {
	if m == nil {
		return
	}
	m.ReloadFailures.Inc()
}
