package jobs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	statusPollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "studybuddy_status_polls_total",
		Help: "Total number of status requests by outcome",
	}, []string{"outcome"})

	watchOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "studybuddy_watch_outcomes_total",
		Help: "Total number of finished watches by outcome",
	}, []string{"outcome"})

	watchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "studybuddy_watch_duration_seconds",
		Help:    "Time from first poll to the end of a watch",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"outcome"})
)
