package poller

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	reasonSnapshot = "snapshot"
	reasonSink     = "sink"
)

// Metrics holds the poller's Prometheus collectors.
type Metrics struct {
	Ticks        prometheus.Counter
	Polls        prometheus.Counter
	Failures     *prometheus.CounterVec
	CopyDuration prometheus.Histogram
	LastPoll     prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Ticks: f.NewCounter(prometheus.CounterOpts{
			Namespace: "vecshm",
			Subsystem: "poller",
			Name:      "ticks_total",
			Help:      "Ticks delivered by the tick source.",
		}),
		Polls: f.NewCounter(prometheus.CounterOpts{
			Namespace: "vecshm",
			Subsystem: "poller",
			Name:      "polls_total",
			Help:      "Successful copies handed to the sink.",
		}),
		Failures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vecshm",
			Subsystem: "poller",
			Name:      "failures_total",
			Help:      "Failed polls by stage.",
		}, []string{"reason"}),
		CopyDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "vecshm",
			Subsystem: "poller",
			Name:      "copy_duration_seconds",
			Help:      "Time spent copying the region into the consumer buffer.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
		LastPoll: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "vecshm",
			Subsystem: "poller",
			Name:      "last_poll_timestamp_seconds",
			Help:      "Unix time of the last successful copy.",
		}),
	}
}
