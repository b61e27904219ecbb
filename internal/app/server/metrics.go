package server

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "voice_agent"

type metrics struct {
	registry *prometheus.Registry

	jobsTotal      *prometheus.CounterVec
	activeJobs     prometheus.Gauge
	userTurns      prometheus.Counter
	prewarmSeconds prometheus.Gauge
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "jobs_total",
			Help:      "Total number of inbound calls by result",
		}, []string{"result"}),
		activeJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "active_jobs",
			Help:      "Number of calls currently in progress",
		}),
		userTurns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "user_turns_total",
			Help:      "Total number of recognized user turns",
		}),
		prewarmSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "prewarm_seconds",
			Help:      "Time spent in worker prewarm",
		}),
	}
	m.registry.MustRegister(m.jobsTotal, m.activeJobs, m.userTurns, m.prewarmSeconds)
	return m
}
