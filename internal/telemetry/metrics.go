package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/lokutor-ai/lokutor-orchestrator/pkg/router"
)

// Metrics exposes the router's routed/dropped/no_route counters and
// per-adapter queue depth gauges as prometheus instruments. Grounded
// on MrWong99-glyphoxa and lookatitude-beluga-ai's client_golang
// counter/gauge registration idiom.
type Metrics struct {
	Routed  prometheus.Counter
	Dropped prometheus.Counter
	NoRoute prometheus.Counter

	QueueDepth *prometheus.GaugeVec
}

// NewMetrics registers every instrument against reg. Pass
// prometheus.NewRegistry() in tests to avoid colliding with the
// default global registry across test runs.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Routed: factory.NewCounter(prometheus.CounterOpts{
			Name: "buddy_router_routed_total",
			Help: "Total output events successfully delivered to a subscriber.",
		}),
		Dropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "buddy_router_dropped_total",
			Help: "Total output events dropped because a subscriber refused delivery.",
		}),
		NoRoute: factory.NewCounter(prometheus.CounterOpts{
			Name: "buddy_router_no_route_total",
			Help: "Total output events with no registered subscriber.",
		}),
		QueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "buddy_adapter_queue_depth",
			Help: "Current depth of an adapter's internal priority queue.",
		}, []string{"adapter"}),
	}
}

// Observe samples a router.Stats snapshot into the counters. Counters
// only increase, so this records the delta since the last observation.
type RouterObserver struct {
	metrics *Metrics
	last    router.Stats
}

// NewRouterObserver creates an observer starting from a zeroed baseline.
func NewRouterObserver(m *Metrics) *RouterObserver {
	return &RouterObserver{metrics: m}
}

// Observe adds the delta between stats and the last observed snapshot
// to the prometheus counters.
func (o *RouterObserver) Observe(stats router.Stats) {
	if d := stats.Routed - o.last.Routed; d > 0 {
		o.metrics.Routed.Add(float64(d))
	}
	if d := stats.Dropped - o.last.Dropped; d > 0 {
		o.metrics.Dropped.Add(float64(d))
	}
	if d := stats.NoRoute - o.last.NoRoute; d > 0 {
		o.metrics.NoRoute.Add(float64(d))
	}
	o.last = stats
}

// SetQueueDepth records the current queue depth for a named adapter.
func (m *Metrics) SetQueueDepth(adapter string, depth int) {
	m.QueueDepth.WithLabelValues(adapter).Set(float64(depth))
}
