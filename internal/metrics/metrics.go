package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	PostsIngested prometheus.Counter
	JobsStarted   *prometheus.CounterVec
	JobsSucceeded *prometheus.CounterVec
	JobsFailed    *prometheus.CounterVec
	JobsReaped    prometheus.Counter
	JobsRetried   prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		PostsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crossflow_posts_ingested_total",
			Help: "Number of source posts ingested into the pipeline.",
		}),
		JobsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crossflow_jobs_started_total",
			Help: "Number of crosspost jobs claimed by the executor.",
		}, []string{"platform"}),
		JobsSucceeded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crossflow_jobs_succeeded_total",
			Help: "Number of crosspost jobs that published successfully.",
		}, []string{"platform"}),
		JobsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crossflow_jobs_failed_total",
			Help: "Number of crosspost jobs that ended in failure.",
		}, []string{"platform"}),
		JobsReaped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crossflow_jobs_reaped_total",
			Help: "Number of stuck jobs failed by the recovery sweep.",
		}),
		JobsRetried: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crossflow_jobs_retried_total",
			Help: "Number of jobs resubmitted by the recovery sweep.",
		}),
	}

	m.registry.MustRegister(
		m.PostsIngested,
		m.JobsStarted,
		m.JobsSucceeded,
		m.JobsFailed,
		m.JobsReaped,
		m.JobsRetried,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
