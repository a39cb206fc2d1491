// Package metrics exposes the service's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors groups the pipeline's instrumentation.
type Collectors struct {
	JobsTotal        *prometheus.CounterVec
	ProviderAttempts *prometheus.CounterVec
	FallbacksTotal   *prometheus.CounterVec
	JobDuration      prometheus.Histogram
}

// New registers the collectors on the given registerer.
func New(reg prometheus.Registerer) *Collectors {
	factory := promauto.With(reg)
	return &Collectors{
		JobsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "parallax_jobs_total",
			Help: "Jobs reaching a terminal status, labelled by outcome.",
		}, []string{"status"}),
		ProviderAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "parallax_provider_attempts_total",
			Help: "Remote provider attempts, labelled by provider and outcome.",
		}, []string{"provider", "outcome"}),
		FallbacksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "parallax_fallbacks_total",
			Help: "Local fallback computations, labelled by kind.",
		}, []string{"kind"}),
		JobDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "parallax_job_duration_seconds",
			Help:    "Wall time from pipeline start to terminal status.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
	}
}
