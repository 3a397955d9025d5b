package fleet

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the fleet module's Prometheus collectors. Collectors are
// registered against an explicit registerer so tests can use isolated
// registries without duplicate-registration panics.
type Metrics struct {
	Heartbeats          prometheus.Counter
	CommandsEnqueued    prometheus.Counter
	CommandsCompleted   *prometheus.CounterVec
	ResultsRecorded     *prometheus.CounterVec
	SchedulesDispatched prometheus.Counter
}

// NewMetrics creates and registers the fleet collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Heartbeats: factory.NewCounter(prometheus.CounterOpts{
			Name: "snutz_heartbeats_total",
			Help: "Total number of device heartbeats received",
		}),
		CommandsEnqueued: factory.NewCounter(prometheus.CounterOpts{
			Name: "snutz_commands_enqueued_total",
			Help: "Total number of commands enqueued",
		}),
		CommandsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "snutz_commands_completed_total",
			Help: "Total number of command terminal transitions",
		}, []string{"status"}),
		ResultsRecorded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "snutz_test_results_total",
			Help: "Total number of diagnostic test results recorded",
		}, []string{"test_type", "triggered_by"}),
		SchedulesDispatched: factory.NewCounter(prometheus.CounterOpts{
			Name: "snutz_schedules_dispatched_total",
			Help: "Total number of due schedules returned to polling agents",
		}),
	}
}
