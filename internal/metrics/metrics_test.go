package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_IsolatedRegistries(t *testing.T) {
	first := NewMetrics(prometheus.NewRegistry())
	second := NewMetrics(prometheus.NewRegistry())

	first.DecisionsTotal.WithLabelValues("critical").Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(first.DecisionsTotal.WithLabelValues("critical")))
	assert.Equal(t, 0.0, testutil.ToFloat64(second.DecisionsTotal.WithLabelValues("critical")))
}

func TestNewMetrics_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)

	assert.Panics(t, func() { NewMetrics(reg) })
}

func TestNewMetrics_Gathered(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.CasesCreated.Inc()
	m.SideEffectFailures.WithLabelValues("email").Inc()
	m.DispatchDuration.Observe(0.05)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["escalation_cases_created_total"])
	assert.True(t, names["escalation_side_effect_failures_total"])
	assert.True(t, names["escalation_dispatch_duration_seconds"])
}
