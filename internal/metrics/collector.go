// Package metrics exposes simulation, LLM and HTTP counters to Prometheus.
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

// Collector records metrics on its own registry.
type Collector struct {
	registry *prometheus.Registry

	ticksTotal   prometheus.Counter
	tickDuration prometheus.Histogram
	liveEvents   prometheus.Gauge
	actionsTotal *prometheus.CounterVec
	droppedTotal *prometheus.CounterVec
	agentErrors  prometheus.Counter
	interactions prometheus.Counter
	llmRequests  *prometheus.CounterVec
	llmDuration  prometheus.Histogram
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewCollector creates a collector whose metric names start with namespace.
func NewCollector(namespace string) *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Collector{
		registry: reg,
		ticksTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Simulation ticks completed",
		}),
		tickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Wall-clock time spent in one world step",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		}),
		liveEvents: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_events",
			Help:      "World events currently live",
		}),
		actionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Actions started by agents",
		}, []string{"kind"}),
		droppedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_dropped_total",
			Help:      "Actions dropped as invalid (out of range, unreachable, building full)",
		}, []string{"kind"}),
		agentErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_errors_total",
			Help:      "Agent steps that failed, panicked or timed out",
		}),
		interactions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interactions_total",
			Help:      "Spontaneous greetings between agents",
		}),
		llmRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Language model calls by outcome",
		}, []string{"status"}),
		llmDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "Language model call latency",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "API requests",
		}, []string{"path", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "API request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path"}),
	}
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

func (c *Collector) TickDone(elapsed time.Duration, live int) {
	c.ticksTotal.Inc()
	c.tickDuration.Observe(elapsed.Seconds())
	c.liveEvents.Set(float64(live))
}

func (c *Collector) ActionApplied(kind string) { c.actionsTotal.WithLabelValues(kind).Inc() }
func (c *Collector) ActionDropped(kind string) { c.droppedTotal.WithLabelValues(kind).Inc() }
func (c *Collector) AgentFailed()              { c.agentErrors.Inc() }
func (c *Collector) InteractionTriggered()     { c.interactions.Inc() }

// LLMCall records one language model request.
func (c *Collector) LLMCall(elapsed time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.llmRequests.WithLabelValues(status).Inc()
	c.llmDuration.Observe(elapsed.Seconds())
}

// HTTPRequest records one API request.
func (c *Collector) HTTPRequest(path string, status int, elapsed time.Duration) {
	c.httpRequests.WithLabelValues(path, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(path).Observe(elapsed.Seconds())
}
