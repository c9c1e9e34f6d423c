// Package reporting delivers load results and test case results to the
// controller and to the local sinks.
package reporting

import (
	"errors"
	"io"
	"sync"

	"github.com/ethereum/go-ethereum/log"

	"github.com/opentestsolar/testtool-pytest/metrics"
	"github.com/opentestsolar/testtool-pytest/types"
)

// Reporter consumes the messages produced by one adapter invocation
type Reporter interface {
	// ReportLoadResult sends the outcome of a collect action
	ReportLoadResult(result *types.LoadResult) error
	// ReportCaseResult sends a running or terminal test case result
	ReportCaseResult(result *types.TestResult) error
	// Close flushes and releases the reporter
	Close() error
}

// PipeReporter writes framed messages to the channel shared with the
// controller
type PipeReporter struct {
	mu     sync.Mutex
	w      *FrameWriter
	closer io.Closer
	log    log.Logger
}

// NewPipeReporter creates a reporter writing to w. If w is an io.Closer it is
// closed by Close.
func NewPipeReporter(w io.Writer, logger log.Logger) *PipeReporter {
	r := &PipeReporter{
		w:   NewFrameWriter(w),
		log: logger,
	}
	if c, ok := w.(io.Closer); ok {
		r.closer = c
	}
	return r
}

func (r *PipeReporter) ReportLoadResult(result *types.LoadResult) error {
	return r.send("load result", result)
}

func (r *PipeReporter) ReportCaseResult(result *types.TestResult) error {
	return r.send("case result", result)
}

func (r *PipeReporter) send(op string, v any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, err := r.w.WriteFrame(v)
	if err != nil {
		metrics.RecordErrorDetails("report_channel", err)
		return &ChannelWriteError{Op: op, Err: err}
	}
	metrics.RecordFrame(n)
	r.log.Trace("Sent frame", "op", op, "bytes", n)
	return nil
}

func (r *PipeReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	if err != nil {
		return &ChannelWriteError{Op: "close", Err: err}
	}
	return nil
}

// MultiReporter fans every message out to a list of reporters. Delivery to
// later reporters continues after a failure, and all errors are returned
// joined.
type MultiReporter struct {
	reporters []Reporter
}

func NewMultiReporter(reporters ...Reporter) *MultiReporter {
	return &MultiReporter{reporters: reporters}
}

func (m *MultiReporter) ReportLoadResult(result *types.LoadResult) error {
	var errs []error
	for _, r := range m.reporters {
		if err := r.ReportLoadResult(result); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiReporter) ReportCaseResult(result *types.TestResult) error {
	var errs []error
	for _, r := range m.reporters {
		if err := r.ReportCaseResult(result); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiReporter) Close() error {
	var errs []error
	for _, r := range m.reporters {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MetricsReporter records every message in the prometheus metrics
type MetricsReporter struct {
	runID string
}

func NewMetricsReporter(runID string) *MetricsReporter {
	return &MetricsReporter{runID: runID}
}

func (r *MetricsReporter) ReportLoadResult(result *types.LoadResult) error {
	metrics.RecordLoadResult(r.runID, len(result.Tests), len(result.LoadErrors))
	return nil
}

func (r *MetricsReporter) ReportCaseResult(result *types.TestResult) error {
	metrics.RecordCaseResult(r.runID, result.ResultType, result.Duration())
	return nil
}

func (r *MetricsReporter) Close() error {
	return nil
}

// BestEffortReporter logs the errors of an auxiliary sink instead of
// returning them, so a local sink cannot abort the run
type BestEffortReporter struct {
	name string
	r    Reporter
	log  log.Logger
}

func NewBestEffortReporter(name string, r Reporter, logger log.Logger) *BestEffortReporter {
	return &BestEffortReporter{name: name, r: r, log: logger}
}

func (b *BestEffortReporter) ReportLoadResult(result *types.LoadResult) error {
	if err := b.r.ReportLoadResult(result); err != nil {
		metrics.RecordErrorDetails(b.name, err)
		b.log.Warn("Sink failed to report load result", "sink", b.name, "err", err)
	}
	return nil
}

func (b *BestEffortReporter) ReportCaseResult(result *types.TestResult) error {
	if err := b.r.ReportCaseResult(result); err != nil {
		metrics.RecordErrorDetails(b.name, err)
		b.log.Warn("Sink failed to report case result", "sink", b.name, "test", result.Test.Name, "err", err)
	}
	return nil
}

func (b *BestEffortReporter) Close() error {
	if err := b.r.Close(); err != nil {
		b.log.Warn("Sink failed to close", "sink", b.name, "err", err)
	}
	return nil
}
