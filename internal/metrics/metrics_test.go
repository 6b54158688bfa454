package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func value(m prometheus.Metric) float64 {
	var out dto.Metric
	if err := m.Write(&out); err != nil {
		panic(err)
	}
	if out.Counter != nil {
		return out.GetCounter().GetValue()
	}
	return out.GetGauge().GetValue()
}

func TestNewIsSingleton(t *testing.T) {
	require.Same(t, New(), New())
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordCycle(OutcomeOK, time.Second)
		m.RecordRead("status", ResultOK)
		m.RecordSkippedTick()
		m.RecordHistoryWrite("ok")
		m.SetAlert(true)
	})
}

func TestCounters(t *testing.T) {
	m := New()

	before := value(m.pollReads.WithLabelValues("logs", ResultNetwork))
	m.RecordRead("logs", ResultNetwork)
	assert.Equal(t, before+1, value(m.pollReads.WithLabelValues("logs", ResultNetwork)))

	skipped := value(m.ticksSkipped)
	m.RecordSkippedTick()
	assert.Equal(t, skipped+1, value(m.ticksSkipped))

	unknown := value(m.pollCycles.WithLabelValues("unknown"))
	m.RecordCycle("", time.Millisecond)
	assert.Equal(t, unknown+1, value(m.pollCycles.WithLabelValues("unknown")))
}

func TestSetAlert(t *testing.T) {
	m := New()
	m.SetAlert(true)
	assert.Equal(t, 1.0, value(m.alertActive))
	m.SetAlert(false)
	assert.Equal(t, 0.0, value(m.alertActive))
}
