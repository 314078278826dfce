// Package main wires the census pipeline end-to-end: chunked CSV parsing, a
// fixed worker pool of chunk aggregators, the order-independent combine, and
// the report, chart, and export outputs. This file keeps the CLI layer thin:
// it depends only on the internal package surfaces and never reaches into
// their internals.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zeebo/xxh3"

	"census/internal/census"
	"census/internal/chart"
	"census/internal/config"
	"census/internal/datasource/file"
	"census/internal/metrics"
	csvparser "census/internal/parser/csv"
	"census/internal/report"
	"census/internal/storage/sqlite"
)

const thisMany = 3

// counters holds cross-goroutine statistics for a run.
//
// All fields are updated atomically.
type counters struct {
	processed   atomic.Int64 // rows that entered a chunk aggregate
	parseErrors atomic.Int64 // lines the CSV reader could not parse
	chunks      atomic.Int64 // chunks aggregated
}

// runtimeConfig contains the resolved concurrency and buffering configuration
// for a run. Values are derived from the pipeline config with optional
// environment variable overrides (12-factor style).
type runtimeConfig struct {
	workers    int
	bufferSize int
}

// Function variables used to introduce test seams.
// In production these point to real implementations; tests can override them.
var (
	openSourceFn = openSource

	streamChunksFn = csvparser.StreamChunks

	aggregateFn = census.Aggregate

	writePyramidFn = chart.WritePyramid

	newExporterFn = sqlite.Open
)

// runPipeline executes a full CSV → chunk aggregate → combine → outputs run.
//
// Malformed lines and unparseable birth dates are fail-soft: the line or the
// age-dependent part of the record is dropped, counted, and summarized at the
// end. Everything else is fatal: the run stops on the first error and writes
// no report, chart, or export.
//
// Concurrency model:
//
//	Reader (CSV; 1 goroutine, sequential chunking)
//	     → N chunk aggregators (fixed pool, one Partial per chunk)
//	     → full barrier
//	     → Combine (single-threaded merge)
//	     → report + chart + optional export
//
// Back-pressure is enforced via the bounded chunk channel so that peak memory
// stays around O(workers × chunkSize). A fatal aggregation error cancels the
// context, which unblocks the reader.
func runPipeline(ctx context.Context, p config.Pipeline, out io.Writer) error {
	rt := newRuntimeConfig(p)

	log.Printf("runtime: workers=%d buffer=%d chunk_size=%d reference_year=%d",
		rt.workers, rt.bufferSize, p.Census.ChunkSize, p.Census.ReferenceYear)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var stats counters
	parseAgg := newErrAgg(thisMany)

	onParseErr := func(line int, err error) {
		if err == nil {
			return
		}
		if line > 0 {
			parseAgg.add(fmt.Sprintf("line=%d: %v", line, err))
		} else {
			parseAgg.add(err.Error())
		}
		stats.parseErrors.Add(1)
	}

	src, err := openSourceFn(ctx, p)
	if err != nil {
		return fmt.Errorf("source open: %w", err)
	}
	fp := newFingerprintReader(src)

	// Reader: sequential chunking into a bounded channel. StreamChunks closes
	// the source; the goroutine closes the channel so the pool sees the end of
	// input.
	chunkCh := make(chan *csvparser.Chunk, rt.bufferSize)
	parseErrCh := make(chan error, 1)
	parseStart := time.Now()
	go func() {
		defer close(chunkCh)
		parseErrCh <- streamChunksFn(ctx, fp, census.Columns, p.Parser.Options, p.Census.ChunkSize, chunkCh, onParseErr)
	}()

	// Pool: every chunk becomes one Partial; Aggregate returns only after all
	// workers are done.
	norm := census.NewNormalizer(p.Census.ReferenceYear, p.Census.DateLayouts)
	partials, aggErr := aggregateFn(ctx, rt.workers, chunkCh, norm)
	if aggErr != nil {
		cancel()
		<-parseErrCh
		metrics.RecordStep(p.Job, "aggregate", aggErr, time.Since(parseStart))
		return fmt.Errorf("aggregate: %w", aggErr)
	}
	if perr := <-parseErrCh; perr != nil {
		metrics.RecordStep(p.Job, "aggregate", perr, time.Since(parseStart))
		return fmt.Errorf("parse: %w", perr)
	}
	metrics.RecordStep(p.Job, "aggregate", nil, time.Since(parseStart))

	stats.chunks.Store(int64(len(partials)))
	for _, part := range partials {
		stats.processed.Add(part.Rows)
	}

	combineStart := time.Now()
	final := census.Combine(partials, p.Census.TopFlows)
	metrics.RecordStep(p.Job, "combine", nil, time.Since(combineStart))

	reportStart := time.Now()
	reportErr := report.Write(out, final, report.Options{ChartPath: p.Report.ChartPath})
	metrics.RecordStep(p.Job, "report", reportErr, time.Since(reportStart))
	if reportErr != nil {
		return fmt.Errorf("report: %w", reportErr)
	}

	chartStart := time.Now()
	chartErr := writePyramidFn(p.Report.ChartPath, final.Pyramid, p.Census.LeftGender, p.Census.RightGender)
	metrics.RecordStep(p.Job, "chart", chartErr, time.Since(chartStart))
	if chartErr != nil {
		return fmt.Errorf("chart: %w", chartErr)
	}

	if p.Export.Enabled() {
		exportStart := time.Now()
		exportErr := runExport(ctx, p, final)
		metrics.RecordStep(p.Job, "export", exportErr, time.Since(exportStart))
		if exportErr != nil {
			return fmt.Errorf("export: %w", exportErr)
		}
	}

	metrics.RecordRow(p.Job, "processed", stats.processed.Load())
	metrics.RecordRow(p.Job, "parse_errors", stats.parseErrors.Load())
	metrics.RecordRow(p.Job, "invalid_ages", final.InvalidAges)
	metrics.RecordChunks(p.Job, stats.chunks.Load())

	logParseSummary(parseAgg)
	log.Printf("summary: processed=%d parse_errors=%d chunks=%d invalid_ages=%d input_xxh3=%016x",
		stats.processed.Load(),
		stats.parseErrors.Load(),
		stats.chunks.Load(),
		final.InvalidAges,
		fp.Sum64(),
	)

	return nil
}

// runExport writes the final aggregate to the configured SQLite database.
func runExport(ctx context.Context, p config.Pipeline, final *census.Final) error {
	if p.Export.Kind != "sqlite" {
		return fmt.Errorf("unsupported export.kind=%s", p.Export.Kind)
	}
	exp, closeFn, err := newExporterFn(ctx, p.Export.DSN)
	if err != nil {
		return err
	}
	defer closeFn()
	return exp.Export(ctx, p.Job, final)
}

// newRuntimeConfig resolves the runtime configuration for a run using the
// pipeline config and environment-variable fallbacks. A non-positive worker
// count lets the pool size itself to the host.
func newRuntimeConfig(p config.Pipeline) runtimeConfig {
	return runtimeConfig{
		workers:    pickInt(p.Runtime.Workers, getenvInt("CENSUS_WORKERS", 0)),
		bufferSize: pickInt(p.Runtime.ChannelBuffer, getenvInt("CENSUS_CH_BUFFER", 4)),
	}
}

// openSource maps source configuration onto a concrete reader.
func openSource(ctx context.Context, p config.Pipeline) (io.ReadCloser, error) {
	switch p.Source.Kind {
	case "file":
		return file.NewLocal(p.Source.File.Path).Open(ctx)
	default:
		return nil, fmt.Errorf("unsupported source.kind=%s", p.Source.Kind)
	}
}

// fingerprintReader hashes everything read through it so the run summary can
// name the exact input it aggregated.
type fingerprintReader struct {
	src io.ReadCloser
	h   *xxh3.Hasher
}

func newFingerprintReader(src io.ReadCloser) *fingerprintReader {
	return &fingerprintReader{src: src, h: xxh3.New()}
}

func (r *fingerprintReader) Read(p []byte) (int, error) {
	n, err := r.src.Read(p)
	if n > 0 {
		_, _ = r.h.Write(p[:n])
	}
	return n, err
}

func (r *fingerprintReader) Close() error { return r.src.Close() }

func (r *fingerprintReader) Sum64() uint64 { return r.h.Sum64() }

// logParseSummary prints aggregated parse errors. Only the first N unique
// messages are shown.
func logParseSummary(parseAgg *errAgg) {
	if parseAgg.count == 0 {
		return
	}
	log.Printf("parse errors: %d (showing first %d)", parseAgg.count, len(parseAgg.first))
	for i, s := range parseAgg.first {
		log.Printf("  #%03d: %s", i+1, s)
	}
}

// getenvInt reads an int from environment, returning def when unset/invalid.
func getenvInt(k string, def int) int {
	if s := os.Getenv(k); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return def
}

// pickInt chooses the first positive value 'a', otherwise returns 'b'.
func pickInt(a, b int) int {
	if a > 0 {
		return a
	}
	return b
}

// errAgg aggregates errors
type errAgg struct {
	mu      sync.Mutex
	limit   int
	count   int
	first   []string
	buckets map[string]int
}

func newErrAgg(limit int) *errAgg {
	return &errAgg{limit: limit, buckets: make(map[string]int)}
}

func (a *errAgg) add(msg string) {
	a.mu.Lock()
	a.buckets[msg]++
	if a.count < a.limit {
		a.first = append(a.first, msg)
	}
	a.count++
	a.mu.Unlock()
}
