package lock

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for one lock instance.
type Metrics struct {
	Acquisitions prometheus.Counter
	Contended    prometheus.Counter
	Timeouts     prometheus.Counter
	Releases     prometheus.Counter
	WaitSeconds  prometheus.Histogram
}

// NewMetrics builds collectors labeled by lock variant and registers
// them on reg when it is non-nil.
func NewMetrics(reg prometheus.Registerer, variant string) *Metrics {
	labels := prometheus.Labels{"variant": variant}
	m := &Metrics{
		Acquisitions: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "shmlock_acquisitions_total",
			Help:        "Total number of successful lock acquisitions.",
			ConstLabels: labels,
		}),
		Contended: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "shmlock_contended_acquisitions_total",
			Help:        "Acquisitions that could not take the fast path.",
			ConstLabels: labels,
		}),
		Timeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "shmlock_acquire_timeouts_total",
			Help:        "Acquire attempts that exhausted their timeout.",
			ConstLabels: labels,
		}),
		Releases: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "shmlock_releases_total",
			Help:        "Total number of lock releases.",
			ConstLabels: labels,
		}),
		WaitSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "shmlock_wait_seconds",
			Help:        "Time spent inside Acquire.",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Acquisitions, m.Contended, m.Timeouts, m.Releases, m.WaitSeconds)
	}
	return m
}

func (m *Metrics) observeAcquire(waited time.Duration, contended bool, err error) {
	m.WaitSeconds.Observe(waited.Seconds())
	if contended {
		m.Contended.Inc()
	}
	switch {
	case err == nil:
		m.Acquisitions.Inc()
	case err == ErrTimeout:
		m.Timeouts.Inc()
	}
}
