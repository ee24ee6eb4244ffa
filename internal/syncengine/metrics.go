package syncengine

import "github.com/prometheus/client_golang/prometheus"

// metrics holds the per-worker counters/histograms reported in step 6 of the
// worker loop (spec §4.5: "records seen, applied, conflicts, errors,
// elapsed").
type metrics struct {
	recordsSeen    *prometheus.CounterVec
	recordsApplied *prometheus.CounterVec
	conflicts      *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	tickDuration   *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		recordsSeen: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "synccore", Subsystem: "sync", Name: "records_seen_total",
			Help: "Records read from the source store per worker tick.",
		}, []string{"data_type", "direction"}),
		recordsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "synccore", Subsystem: "sync", Name: "records_applied_total",
			Help: "Records written to the destination store per worker tick.",
		}, []string{"data_type", "direction"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "synccore", Subsystem: "sync", Name: "conflicts_total",
			Help: "Records resolved via conflict comparison rather than a clean insert.",
		}, []string{"data_type", "direction"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "synccore", Subsystem: "sync", Name: "errors_total",
			Help: "Per-record apply errors.",
		}, []string{"data_type", "direction"}),
		tickDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "synccore", Subsystem: "sync", Name: "tick_duration_seconds",
			Help: "Elapsed time for one worker tick.",
		}, []string{"data_type", "direction"}),
	}

	if reg != nil {
		reg.MustRegister(m.recordsSeen, m.recordsApplied, m.conflicts, m.errorsTotal, m.tickDuration)
	}

	return m
}
