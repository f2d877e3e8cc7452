// Package metrics records service counters. Counters live in atomic fields
// for the JSON snapshot surfaces and are mirrored into prometheus collectors
// for scraping; both views are updated by the same Recorder call so they
// never drift.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels a finished operation.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeFallback Outcome = "fallback"
	OutcomeFailed   Outcome = "failed"
	OutcomePartial  Outcome = "partial"
)

// Snapshot is the JSON view of the counters.
type Snapshot struct {
	Generations         int64 `json:"generations"`
	GenerationFallbacks int64 `json:"generationFallbacks"`
	GenerationFailures  int64 `json:"generationFailures"`

	Simulations        int64 `json:"simulations"`
	SimulationFailures int64 `json:"simulationFailures"`

	PipelineExecutions int64 `json:"pipelineExecutions"`
	PipelineFailures   int64 `json:"pipelineFailures"`
	PipelinePartials   int64 `json:"pipelinePartials"`

	SSEClients int64 `json:"sseClients"`
}

// Recorder tracks operation outcomes and durations.
type Recorder struct {
	generations         atomic.Int64
	generationFallbacks atomic.Int64
	generationFailures  atomic.Int64

	simulations        atomic.Int64
	simulationFailures atomic.Int64

	pipelineExecutions atomic.Int64
	pipelineFailures   atomic.Int64
	pipelinePartials   atomic.Int64

	sseClients atomic.Int64

	generationsTotal *prometheus.CounterVec
	simulationsTotal *prometheus.CounterVec
	pipelinesTotal   *prometheus.CounterVec
	stageDuration    *prometheus.HistogramVec
	sseClientsGauge  prometheus.Gauge
}

// NewRecorder creates a Recorder and registers its collectors with reg. A
// nil registerer skips prometheus registration, which keeps unit tests free
// of global registry collisions.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		generationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "forge",
			Name:      "generations_total",
			Help:      "Workflow generations by outcome.",
		}, []string{"outcome"}),
		simulationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "forge",
			Name:      "simulations_total",
			Help:      "Workflow simulations by outcome.",
		}, []string{"outcome"}),
		pipelinesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "forge",
			Name:      "pipeline_executions_total",
			Help:      "Pipeline executions by outcome.",
		}, []string{"outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "forge",
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"stage"}),
		sseClientsGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "forge",
			Name:      "sse_clients",
			Help:      "Currently connected SSE subscribers.",
		}),
	}

	if reg != nil {
		reg.MustRegister(r.generationsTotal, r.simulationsTotal,
			r.pipelinesTotal, r.stageDuration, r.sseClientsGauge)
	}
	return r
}

// RecordGeneration counts one finished generation.
func (r *Recorder) RecordGeneration(outcome Outcome, d time.Duration) {
	r.generations.Add(1)
	switch outcome {
	case OutcomeFallback:
		r.generationFallbacks.Add(1)
	case OutcomeFailed:
		r.generationFailures.Add(1)
	}
	r.generationsTotal.WithLabelValues(string(outcome)).Inc()
	r.stageDuration.WithLabelValues("generation").Observe(d.Seconds())
}

// RecordSimulation counts one finished simulation.
func (r *Recorder) RecordSimulation(success bool, d time.Duration) {
	r.simulations.Add(1)
	outcome := OutcomeSuccess
	if !success {
		r.simulationFailures.Add(1)
		outcome = OutcomeFailed
	}
	r.simulationsTotal.WithLabelValues(string(outcome)).Inc()
	r.stageDuration.WithLabelValues("simulation").Observe(d.Seconds())
}

// RecordPipeline counts one finished pipeline execution by its terminal
// status string (completed, failed or partial).
func (r *Recorder) RecordPipeline(status string, d time.Duration) {
	r.pipelineExecutions.Add(1)
	switch status {
	case "failed":
		r.pipelineFailures.Add(1)
	case "partial":
		r.pipelinePartials.Add(1)
	}
	r.pipelinesTotal.WithLabelValues(status).Inc()
	r.stageDuration.WithLabelValues("pipeline").Observe(d.Seconds())
}

// SSEConnected notes a new live subscriber.
func (r *Recorder) SSEConnected() {
	r.sseClients.Add(1)
	r.sseClientsGauge.Inc()
}

// SSEDisconnected notes a departed subscriber.
func (r *Recorder) SSEDisconnected() {
	r.sseClients.Add(-1)
	r.sseClientsGauge.Dec()
}

// Snapshot returns the current counter values.
func (r *Recorder) Snapshot() Snapshot {
	return Snapshot{
		Generations:         r.generations.Load(),
		GenerationFallbacks: r.generationFallbacks.Load(),
		GenerationFailures:  r.generationFailures.Load(),
		Simulations:         r.simulations.Load(),
		SimulationFailures:  r.simulationFailures.Load(),
		PipelineExecutions:  r.pipelineExecutions.Load(),
		PipelineFailures:    r.pipelineFailures.Load(),
		PipelinePartials:    r.pipelinePartials.Load(),
		SSEClients:          r.sseClients.Load(),
	}
}
