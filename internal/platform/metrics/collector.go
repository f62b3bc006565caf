// Package metrics exposes the service's Prometheus metrics. Every method on
// a nil *Collector is a no-op, so components can take an optional collector.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the service metrics on its own registry.
type Collector struct {
	registry *prometheus.Registry

	tasksSubmitted   prometheus.Counter
	taskTransitions  *prometheus.CounterVec
	providerAttempts *prometheus.CounterVec
	claimConflicts   prometheus.Counter
	pipelineDuration *prometheus.HistogramVec

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewCollector creates a Collector whose metric names start with namespace.
func NewCollector(namespace string) *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,

		tasksSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_submitted_total",
			Help:      "Total number of generation tasks submitted",
		}),
		taskTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_transitions_total",
			Help:      "Task transitions into a status, by diagnostic code for failures",
		}, []string{"status", "code"}),
		providerAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_attempts_total",
			Help:      "Provider calls by outcome",
		}, []string{"outcome"}),
		claimConflicts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claim_conflicts_total",
			Help:      "Polls that lost the claim race",
		}),
		pipelineDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_duration_seconds",
			Help:      "Duration of a pipeline run from claim to terminal write",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300},
		}, []string{"status"}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		httpRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// TaskSubmitted counts a new task.
func (c *Collector) TaskSubmitted() {
	if c == nil {
		return
	}
	c.tasksSubmitted.Inc()
}

// TaskTransition counts a status change. code is empty except for failures.
func (c *Collector) TaskTransition(status, code string) {
	if c == nil {
		return
	}
	c.taskTransitions.WithLabelValues(status, code).Inc()
}

// ProviderAttempt counts one provider call.
func (c *Collector) ProviderAttempt(outcome string) {
	if c == nil {
		return
	}
	c.providerAttempts.WithLabelValues(outcome).Inc()
}

// ClaimConflict counts a poll that found the task claimed by someone else.
func (c *Collector) ClaimConflict() {
	if c == nil {
		return
	}
	c.claimConflicts.Inc()
}

// ObservePipeline records the duration of a pipeline run ending in status.
func (c *Collector) ObservePipeline(status string, d time.Duration) {
	if c == nil {
		return
	}
	c.pipelineDuration.WithLabelValues(status).Observe(d.Seconds())
}

// ObserveHTTP records one served request. route should be the route
// pattern, not the raw path, to keep label cardinality bounded.
func (c *Collector) ObserveHTTP(method, route string, status int, d time.Duration) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
