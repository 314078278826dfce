// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package.
//
// It adapts the generic metrics.Backend interface to Prometheus by:
//
//   - Using client_golang CounterVec and SummaryVec collectors.
//   - Mapping the pipeline labels (job, step, status, kind) onto Prometheus
//     labels.
//   - Pushing collected metrics to a Prometheus Pushgateway instance instead
//     of exposing an HTTP scrape endpoint, which suits a batch job that exits
//     when the run is done.
package prompush

import (
	"fmt"

	"census/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string // e.g. http://pushgateway:9091
	jobName    string // Pushgateway "job" group
	reg        *prometheus.Registry

	stepCounter  *prometheus.CounterVec // "census_step_total"
	stepDuration *prometheus.SummaryVec // "census_step_duration_seconds"

	recordCounter *prometheus.CounterVec // "census_records_total"
	chunkCounter  prometheus.Counter     // "census_chunks_total"
}

// NewBackend constructs a Prometheus Pushgateway backend.
// jobName: the Pushgateway "job" name (often same as the pipeline job).
// gatewayURL: base URL of the Pushgateway server.
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "census"
	}

	reg := prometheus.NewRegistry()

	// job is carried as the Pushgateway grouping key, so the collectors only
	// partition by the remaining labels.
	stepCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "census_step_total",
			Help: "Total number of pipeline step executions, partitioned by step and status.",
		},
		[]string{"step", "status"},
	)
	stepDuration := prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       "census_step_duration_seconds",
			Help:       "Duration of pipeline steps in seconds, partitioned by step and status.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"step", "status"},
	)
	recordCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "census_records_total",
			Help: "Record-level counts per kind (processed, parse_errors, invalid_ages).",
		},
		[]string{"kind"},
	)
	chunkCounter := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "census_chunks_total",
			Help: "Total number of chunks aggregated for this run.",
		},
	)

	if err := reg.Register(stepCounter); err != nil {
		return nil, fmt.Errorf("prompush: register step counter: %w", err)
	}
	if err := reg.Register(stepDuration); err != nil {
		return nil, fmt.Errorf("prompush: register step summary: %w", err)
	}
	if err := reg.Register(recordCounter); err != nil {
		return nil, fmt.Errorf("prompush: register record counter: %w", err)
	}
	if err := reg.Register(chunkCounter); err != nil {
		return nil, fmt.Errorf("prompush: register chunk counter: %w", err)
	}

	return &Backend{
		gatewayURL:    gatewayURL,
		jobName:       jobName,
		reg:           reg,
		stepCounter:   stepCounter,
		stepDuration:  stepDuration,
		recordCounter: recordCounter,
		chunkCounter:  chunkCounter,
	}, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case "census_step_total":
		if b.stepCounter == nil {
			return
		}
		b.stepCounter.WithLabelValues(labels["step"], labels["status"]).Add(delta)

	case "census_records_total":
		if b.recordCounter == nil {
			return
		}
		b.recordCounter.WithLabelValues(labels["kind"]).Add(delta)

	case "census_chunks_total":
		if b.chunkCounter == nil {
			return
		}
		b.chunkCounter.Add(delta)

	default:
		// unknown metric name: ignore
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != "census_step_duration_seconds" || b.stepDuration == nil {
		return
	}
	b.stepDuration.WithLabelValues(labels["step"], labels["status"]).Observe(value)
}

// Flush pushes the current registry to the Pushgateway.
func (b *Backend) Flush() error {
	return push.New(b.gatewayURL, b.jobName).
		Gatherer(b.reg).
		Push()
}
