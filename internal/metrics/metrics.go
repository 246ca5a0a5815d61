// Package metrics collects and exposes nanoserve's Prometheus
// metrics: HTTP-layer counters fed by internal/httpserver.Recorder,
// and task-queue counters/gauges fed by internal/taskqueue.Recorder.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector implements both internal/httpserver.Recorder and
// internal/taskqueue.Recorder, so a single instance can be wired into
// both without either package depending on this one.
type Collector struct {
	connectionsTotal prometheus.Counter
	requestsTotal    *prometheus.CounterVec
	routeMissesTotal prometheus.Counter
	poolPanicsTotal  *prometheus.CounterVec

	tasksEnqueuedTotal  prometheus.Counter
	tasksCompletedTotal prometheus.Counter
	tasksDeadTotal      prometheus.Counter
	taskLatency         prometheus.Histogram
	tasksPending        prometheus.Gauge
	tasksInFlight       prometheus.Gauge
}

// NewCollector builds and registers a Collector against the default
// Prometheus registry.
func NewCollector() *Collector {
	c := &Collector{
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nanoserve_connections_total",
			Help: "Total number of TCP connections accepted.",
		}),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nanoserve_requests_total",
			Help: "Total number of HTTP requests handled, by method.",
		}, []string{"method"}),
		routeMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nanoserve_route_misses_total",
			Help: "Total number of requests that matched no registered route.",
		}),
		poolPanicsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nanoserve_pool_panics_total",
			Help: "Total number of worker pool goroutines that caught a panicking task, by pool.",
		}, []string{"pool"}),
		tasksEnqueuedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nanoserve_tasks_enqueued_total",
			Help: "Total number of tasks enqueued.",
		}),
		tasksCompletedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nanoserve_tasks_completed_total",
			Help: "Total number of tasks completed successfully.",
		}),
		tasksDeadTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nanoserve_tasks_dead_total",
			Help: "Total number of tasks moved to the dead letter set.",
		}),
		taskLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "nanoserve_task_latency_seconds",
			Help:    "Task processing latency in seconds, from enqueue to completion.",
			Buckets: prometheus.DefBuckets,
		}),
		tasksPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nanoserve_tasks_pending",
			Help: "Current number of pending tasks.",
		}),
		tasksInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nanoserve_tasks_in_flight",
			Help: "Current number of in-flight tasks.",
		}),
	}

	prometheus.MustRegister(
		c.connectionsTotal,
		c.requestsTotal,
		c.routeMissesTotal,
		c.poolPanicsTotal,
		c.tasksEnqueuedTotal,
		c.tasksCompletedTotal,
		c.tasksDeadTotal,
		c.taskLatency,
		c.tasksPending,
		c.tasksInFlight,
	)

	return c
}

// ConnectionAccepted implements httpserver.Recorder.
func (c *Collector) ConnectionAccepted() { c.connectionsTotal.Inc() }

// RequestReceived implements httpserver.Recorder.
func (c *Collector) RequestReceived(method string) { c.requestsTotal.WithLabelValues(method).Inc() }

// RouteMiss implements httpserver.Recorder.
func (c *Collector) RouteMiss() { c.routeMissesTotal.Inc() }

// WorkerPanic implements httpserver.Recorder. The server only runs
// one pool, so the pool label is fixed.
func (c *Collector) WorkerPanic() { c.poolPanicsTotal.WithLabelValues("httpserver").Inc() }

// RecordEnqueue implements taskqueue.Recorder.
func (c *Collector) RecordEnqueue() { c.tasksEnqueuedTotal.Inc() }

// RecordCompleted implements taskqueue.Recorder.
func (c *Collector) RecordCompleted(latencySeconds float64) {
	c.tasksCompletedTotal.Inc()
	c.taskLatency.Observe(latencySeconds)
}

// RecordDead implements taskqueue.Recorder.
func (c *Collector) RecordDead() { c.tasksDeadTotal.Inc() }

// UpdateQueueStats implements taskqueue.Recorder.
func (c *Collector) UpdateQueueStats(pending, inFlight int) {
	c.tasksPending.Set(float64(pending))
	c.tasksInFlight.Set(float64(inFlight))
}

// StartServer serves Prometheus metrics at /metrics on port, using a
// dedicated net/http listener — the one place nanoserve reaches for
// net/http, since Prometheus scraping is not part of the core's
// hand-rolled HTTP/1.1 surface.
func StartServer(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(fmt.Sprintf(":%d", port), mux)
}
