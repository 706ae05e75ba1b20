package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/lokutor-ai/lokutor-orchestrator/pkg/router"
)

func TestRouterObserverRecordsDeltas(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	obs := NewRouterObserver(m)

	obs.Observe(router.Stats{Routed: 3, Dropped: 1, NoRoute: 0})
	obs.Observe(router.Stats{Routed: 5, Dropped: 1, NoRoute: 2})

	require.Equal(t, float64(5), counterValue(t, m.Routed))
	require.Equal(t, float64(1), counterValue(t, m.Dropped))
	require.Equal(t, float64(2), counterValue(t, m.NoRoute))
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestSetQueueDepthByAdapter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.SetQueueDepth("wakeword", 4)

	var g dto.Metric
	require.NoError(t, m.QueueDepth.WithLabelValues("wakeword").Write(&g))
	require.Equal(t, float64(4), g.GetGauge().GetValue())
}
