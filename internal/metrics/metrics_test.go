package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

// value reads a counter or gauge from the default registry, optionally
// filtered by one label pair.
func value(t *testing.T, name, label, labelValue string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, m := range family.GetMetric() {
			if label != "" {
				matched := false
				for _, l := range m.GetLabel() {
					if l.GetName() == label && l.GetValue() == labelValue {
						matched = true
					}
				}
				if !matched {
					continue
				}
			}
			if c := m.GetCounter(); c != nil {
				return c.GetValue()
			}
			return m.GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func TestCountersIncrement(t *testing.T) {
	Init()
	before := value(t, "uiwalk_runs_total", "outcome", "failure")
	IncRunOutcome("failure")
	require.Equal(t, before+1, value(t, "uiwalk_runs_total", "outcome", "failure"))

	samples := value(t, "uiwalk_wait_samples_total", "", "")
	ObserveWait("satisfied", 250*time.Millisecond, 3)
	require.Equal(t, samples+3, value(t, "uiwalk_wait_samples_total", "", ""))
}

func TestRunStartedGauge(t *testing.T) {
	Init()
	base := value(t, "uiwalk_runs_in_flight", "", "")
	done := RunStarted()
	require.Equal(t, base+1, value(t, "uiwalk_runs_in_flight", "", ""))
	done()
	require.Equal(t, base, value(t, "uiwalk_runs_in_flight", "", ""))
}

func TestOutcomeSeriesExistBeforeFirstIncrement(t *testing.T) {
	Init()
	for _, outcome := range outcomes {
		value(t, "uiwalk_steps_total", "outcome", outcome)
	}
}
