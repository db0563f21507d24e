package metrics

import (
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const PipelineMetricsPrefix = "pppp_"

type (
	PollResult string
	DropReason string
)

const (
	PollResultActive   PollResult = "active"
	PollResultNotFound PollResult = "not_found"
	PollResultUnknown  PollResult = "unknown"
	PollResultError    PollResult = "error"

	DropReasonMalformedTag    DropReason = "malformed_tag"
	DropReasonMalformedRecord DropReason = "malformed_record"
)

// Metrics collects counters for a single batch. Each instance owns its registry so that several batches
// (or tests) in one process never collide, and the registry can be dumped to a node-exporter textfile.
type Metrics struct {
	registry          *prometheus.Registry
	jobsSubmitted     *prometheus.CounterVec
	submitRetries     prometheus.Counter
	jobPolls          *prometheus.CounterVec
	jobWaitSeconds    *prometheus.HistogramVec
	recordsClassified *prometheus.CounterVec
	recordsDropped    *prometheus.CounterVec
	unitsByState      *prometheus.GaugeVec
}

func NewMetrics(prefix string) *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		jobsSubmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "jobs_submitted",
			Help: "Number of jobs submitted to the scheduler grouped by stage",
		}, []string{"stage"}),
		submitRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: prefix + "submit_retries",
			Help: "Number of times a submit command was retried",
		}),
		jobPolls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "job_polls",
			Help: "Number of job status queries grouped by result",
		}, []string{"result"}),
		jobWaitSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    prefix + "job_wait_seconds",
			Help:    "Time spent waiting for a job to leave the scheduler, grouped by stage",
			Buckets: prometheus.ExponentialBuckets(5, 2, 12),
		}, []string{"stage"}),
		recordsClassified: factory.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "records_classified",
			Help: "Number of records classified grouped by category",
		}, []string{"category"}),
		recordsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "records_dropped",
			Help: "Number of malformed lines dropped grouped by reason",
		}, []string{"reason"}),
		unitsByState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: prefix + "units",
			Help: "Number of units in each pipeline state",
		}, []string{"state"}),
	}
}

func (m *Metrics) RecordJobSubmitted(stage string) {
	m.jobsSubmitted.With(map[string]string{"stage": stage}).Inc()
}

func (m *Metrics) RecordSubmitRetry() {
	m.submitRetries.Inc()
}

func (m *Metrics) RecordJobPoll(result PollResult) {
	m.jobPolls.With(map[string]string{"result": string(result)}).Inc()
}

func (m *Metrics) RecordJobWait(stage string, waited time.Duration) {
	m.jobWaitSeconds.With(map[string]string{"stage": stage}).Observe(waited.Seconds())
}

func (m *Metrics) RecordClassified(category string, n int) {
	m.recordsClassified.With(map[string]string{"category": category}).Add(float64(n))
}

func (m *Metrics) RecordDropped(reason DropReason, n int) {
	m.recordsDropped.With(map[string]string{"reason": string(reason)}).Add(float64(n))
}

// SetUnitsByState replaces the unit gauges with the given counts. States absent from counts are reset to zero.
func (m *Metrics) SetUnitsByState(counts map[string]int) {
	m.unitsByState.Reset()
	for state, n := range counts {
		m.unitsByState.With(map[string]string{"state": state}).Set(float64(n))
	}
}

// WriteTextfile atomically writes the current values in the Prometheus text format.
func (m *Metrics) WriteTextfile(path string) error {
	return errors.WithStack(prometheus.WriteToTextfile(path, m.registry))
}
