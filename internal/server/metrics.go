package server

import (
	"github.com/prometheus/client_golang/prometheus"
)

// metrics are the service's Prometheus collectors.
type metrics struct {
	runs        *prometheus.CounterVec
	evaluations prometheus.Counter
	passes      prometheus.Counter
	duration    *prometheus.HistogramVec
	queueDepth  prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "powell_runs_total",
			Help: "Finished minimization runs by method and outcome.",
		}, []string{"method", "outcome"}),
		evaluations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "powell_evaluations_total",
			Help: "Objective function evaluations across all runs.",
		}),
		passes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "powell_passes_total",
			Help: "Completed direction-set passes across all Powell runs.",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "powell_run_duration_seconds",
			Help:    "Wall time of minimization runs.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"method"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "powell_queue_depth",
			Help: "Jobs waiting for the worker.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.runs, m.evaluations, m.passes, m.duration, m.queueDepth)
	}
	return m
}
