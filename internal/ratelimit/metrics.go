package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes limiter and sweeper counters. Construct once at process
// start; promauto registers on the default registry.
type Metrics struct {
	Checks           *prometheus.CounterVec
	AttemptsRecorded *prometheus.CounterVec
	Resets           *prometheus.CounterVec
	SweepsTotal      *prometheus.CounterVec
	EntriesEvicted   prometheus.Counter
}

func NewMetrics() *Metrics {
	return &Metrics{
		Checks: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gatehouse_ratelimit_checks_total",
			Help: "Total number of rate limit checks by action and outcome",
		}, []string{"action", "outcome"}),
		AttemptsRecorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gatehouse_ratelimit_attempts_recorded_total",
			Help: "Total number of failed attempts recorded by action",
		}, []string{"action"}),
		Resets: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gatehouse_ratelimit_resets_total",
			Help: "Total number of quota resets issued on successful logins",
		}, []string{"action"}),
		SweepsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gatehouse_ratelimit_sweeps_total",
			Help: "Total number of background eviction runs by status",
		}, []string{"status"}),
		EntriesEvicted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gatehouse_ratelimit_entries_evicted_total",
			Help: "Total number of expired entries evicted by the sweeper",
		}),
	}
}
