package simulation

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	eventsProcessedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispatchsim_events_processed_total",
		Help: "Number of simulation events dispatched.",
	})

	assignmentsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispatchsim_assignments_total",
		Help: "Number of completed resource trips.",
	})

	expirationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispatchsim_expirations_total",
		Help: "Number of resources that expired before pickup.",
	})

	abortionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispatchsim_abortions_total",
		Help: "Number of assignments aborted by resource expiration.",
	})

	servingAgents = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dispatchsim_serving_agents",
		Help: "Agents currently assigned to a resource.",
	})

	emptyAgents = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dispatchsim_empty_agents",
		Help: "Agents currently cruising without a resource.",
	})

	pathTableBuildDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "dispatchsim_path_table_build_seconds",
		Help:    "Duration of the all-pairs shortest path precomputation.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})
)

func init() {
	prometheus.MustRegister(eventsProcessedTotal, assignmentsTotal, expirationsTotal,
		abortionsTotal, servingAgents, emptyAgents, pathTableBuildDuration)
}

// ObservePathTableBuild records the duration of the all-pairs precomputation.
func ObservePathTableBuild(d time.Duration) {
	pathTableBuildDuration.Observe(d.Seconds())
}
