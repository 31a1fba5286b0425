// Package metrics provides Prometheus metrics for the agent, its tools and the vector store.
//
// A nil *Metrics is valid and records nothing, so components can take one optionally.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for searchy.
type Metrics struct {
	registry *prometheus.Registry

	// Agent runs
	AgentRunsTotal *prometheus.CounterVec
	AgentSteps     prometheus.Histogram

	// LLM requests
	LLMRequestsTotal   *prometheus.CounterVec
	LLMRequestDuration *prometheus.HistogramVec

	// Tools
	ToolInvocationsTotal *prometheus.CounterVec
	ToolDuration         *prometheus.HistogramVec

	// Web search
	WebFetchesTotal *prometheus.CounterVec

	// Vector store
	VectorSearchesTotal *prometheus.CounterVec
	VectorStoreSize     prometheus.Gauge
}

// New creates and registers all metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{registry: reg}

	m.AgentRunsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchy_agent_runs_total",
			Help: "Total number of agent runs by outcome",
		},
		[]string{"outcome"},
	)

	m.AgentSteps = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "searchy_agent_steps",
			Help:    "Number of state machine steps per run",
			Buckets: []float64{1, 2, 3, 5, 7, 9, 11, 13, 15, 20},
		},
	)

	m.LLMRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchy_llm_requests_total",
			Help: "Total number of language model requests",
		},
		[]string{"provider", "status"},
	)

	m.LLMRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "searchy_llm_request_duration_seconds",
			Help:    "Duration of language model requests in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"provider"},
	)

	m.ToolInvocationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchy_tool_invocations_total",
			Help: "Total number of tool invocations",
		},
		[]string{"tool", "status"},
	)

	m.ToolDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "searchy_tool_duration_seconds",
			Help:    "Duration of tool invocations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tool"},
	)

	m.WebFetchesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchy_web_fetches_total",
			Help: "Total number of web page fetches by outcome",
		},
		[]string{"outcome"},
	)

	m.VectorSearchesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchy_vector_searches_total",
			Help: "Total number of vector store searches",
		},
		[]string{"status"},
	)

	m.VectorStoreSize = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "searchy_vector_store_records",
			Help: "Number of records loaded in the vector store",
		},
	)

	return m
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns an HTTP handler exposing the metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRun records a finished agent run.
func (m *Metrics) RecordRun(outcome string, steps int) {
	if m == nil {
		return
	}
	m.AgentRunsTotal.WithLabelValues(outcome).Inc()
	m.AgentSteps.Observe(float64(steps))
}

// RecordLLMRequest records a language model request.
func (m *Metrics) RecordLLMRequest(provider string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.LLMRequestsTotal.WithLabelValues(provider, status(err)).Inc()
	m.LLMRequestDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordTool records a tool invocation.
func (m *Metrics) RecordTool(tool string, duration time.Duration, ok bool) {
	if m == nil {
		return
	}
	s := "ok"
	if !ok {
		s = "error"
	}
	m.ToolInvocationsTotal.WithLabelValues(tool, s).Inc()
	m.ToolDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordFetch records the outcome of one web page fetch.
func (m *Metrics) RecordFetch(outcome string) {
	if m == nil {
		return
	}
	m.WebFetchesTotal.WithLabelValues(outcome).Inc()
}

// RecordSearch records a vector store search.
func (m *Metrics) RecordSearch(err error) {
	if m == nil {
		return
	}
	m.VectorSearchesTotal.WithLabelValues(status(err)).Inc()
}

// SetStoreSize updates the loaded vector store size.
func (m *Metrics) SetStoreSize(n int) {
	if m == nil {
		return
	}
	m.VectorStoreSize.Set(float64(n))
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
