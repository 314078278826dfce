// Package metrics provides a small, backend-agnostic abstraction for recording
// operational metrics from the census pipeline.
//
// The package is intentionally minimal:
//
//   - It exposes a narrow interface (Backend) focused on counters and timing
//     data.
//   - It provides a global, pluggable backend that defaults to a no-op
//     implementation, so metrics are always safe to call even when no real
//     backend is configured.
//
// The primary use case is instrumentation of the pipeline stages (parse,
// aggregate, combine, report, export) without coupling the aggregation logic
// to a specific metrics system.
package metrics

import "time"

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

// nopBackend is used by default so metrics are optional.
type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

// RecordStep is a convenience for the common pattern:
// measure latency + success/failure per pipeline step.
func RecordStep(job, step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}

	lbls := Labels{
		"job":    job,
		"step":   step,
		"status": status,
	}

	backend.IncCounter("census_step_total", 1, lbls)
	backend.ObserveHistogram("census_step_duration_seconds", d.Seconds(), lbls)
}

// RecordRow increments a record-level counter for the given job and kind.
//
// Typical kinds mirror the run summary fields, e.g.:
//   - "processed"
//   - "parse_errors"
//   - "invalid_ages"
func RecordRow(job, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter("census_records_total", float64(delta), Labels{
		"job":  job,
		"kind": kind,
	})
}

// RecordChunks increments the chunk counter for the given job.
func RecordChunks(job string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter("census_chunks_total", float64(delta), Labels{
		"job": job,
	})
}
