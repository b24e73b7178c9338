package lock

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// counterValue extracts a Counter's value for assertions.
func counterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	_ = c.Write(m)
	return m.GetCounter().GetValue()
}

func histogramSamples(h prometheus.Histogram) uint64 {
	m := &dto.Metric{}
	_ = h.Write(m)
	return m.GetHistogram().GetSampleCount()
}

func TestMetricsObserveAcquire(t *testing.T) {
	m := NewMetrics(nil, "futex")

	m.observeAcquire(time.Millisecond, false, nil)
	assert.Equal(t, float64(1), counterValue(m.Acquisitions))
	assert.Equal(t, float64(0), counterValue(m.Contended))

	m.observeAcquire(2*time.Millisecond, true, nil)
	assert.Equal(t, float64(2), counterValue(m.Acquisitions))
	assert.Equal(t, float64(1), counterValue(m.Contended))

	m.observeAcquire(time.Second, true, ErrTimeout)
	assert.Equal(t, float64(2), counterValue(m.Acquisitions))
	assert.Equal(t, float64(1), counterValue(m.Timeouts))

	assert.Equal(t, uint64(3), histogramSamples(m.WaitSeconds))
}

func TestMetricsRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "polled")
	m.Acquisitions.Inc()
	m.Releases.Inc()

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["shmlock_acquisitions_total"])
	assert.True(t, names["shmlock_releases_total"])
	assert.True(t, names["shmlock_wait_seconds"])
}
