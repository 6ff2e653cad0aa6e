// Package metrics exposes Prometheus collectors for the job queue, the
// receipt pipeline and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dvloznov/grocery-tracker/internal/domain"
	"github.com/dvloznov/grocery-tracker/internal/jobs"
)

const namespace = "grocerytrack"

// Metrics holds every collector the service registers.
type Metrics struct {
	registry *prometheus.Registry

	jobsEnqueued *prometheus.CounterVec
	jobsFinished *prometheus.CounterVec
	jobDuration  *prometheus.HistogramVec

	stepDuration *prometheus.HistogramVec
	stepFailures *prometheus.CounterVec
	outcomes     *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New creates the collectors on a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		jobsEnqueued: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "enqueued_total",
			Help:      "Jobs accepted by the queue.",
		}, []string{"type"}),
		jobsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "finished_total",
			Help:      "Job attempts that ended, by resulting status.",
		}, []string{"type", "status"}),
		jobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "duration_seconds",
			Help:      "Wall time of one job attempt.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"type"}),
		stepDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "step_duration_seconds",
			Help:      "Wall time of one pipeline step.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"step"}),
		stepFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "step_failures_total",
			Help:      "Pipeline steps that returned an error.",
		}, []string{"step"}),
		outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "receipts_total",
			Help:      "Receipts that reached a terminal status.",
		}, []string{"status"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests served.",
		}, []string{"method", "route", "code"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// JobEnqueued implements jobs.Observer.
func (m *Metrics) JobEnqueued(job jobs.Job) {
	m.jobsEnqueued.WithLabelValues(string(job.GetType())).Inc()
}

// JobFinished implements jobs.Observer.
func (m *Metrics) JobFinished(job jobs.Job, elapsed time.Duration) {
	t := string(job.GetType())
	m.jobsFinished.WithLabelValues(t, string(job.GetStatus())).Inc()
	m.jobDuration.WithLabelValues(t).Observe(elapsed.Seconds())
}

// ObserveStep implements pipeline.StepObserver.
func (m *Metrics) ObserveStep(step string, elapsed time.Duration, err error) {
	m.stepDuration.WithLabelValues(step).Observe(elapsed.Seconds())
	if err != nil {
		m.stepFailures.WithLabelValues(step).Inc()
	}
}

// ObserveOutcome implements pipeline.StepObserver.
func (m *Metrics) ObserveOutcome(status domain.ValidationStatus) {
	m.outcomes.WithLabelValues(string(status)).Inc()
}

// ObserveRequest records one served HTTP request. route is the matched
// pattern, not the raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveRequest(method, route string, code int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
