package pytestx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"code.cloudfoundry.org/clock"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/opentestsolar/testtool-pytest/flags"
	"github.com/opentestsolar/testtool-pytest/logging"
	"github.com/opentestsolar/testtool-pytest/metrics"
	"github.com/opentestsolar/testtool-pytest/reporting"
	"github.com/opentestsolar/testtool-pytest/runner"
	"github.com/opentestsolar/testtool-pytest/selector"
	"github.com/opentestsolar/testtool-pytest/service"
)

// adapter implements the cliapp.Lifecycle interface.
var _ cliapp.Lifecycle = &adapter{}

// adapter performs one collect or run action and delivers its results.
type adapter struct {
	config  *Config
	version string
	runID   string
	log     log.Logger
	clock   clock.Clock
	out     io.Writer
	tracer  trace.Tracer

	collector *runner.Collector
	runner    *runner.Runner
	reporter  reporting.Reporter
	summary   *Summary
	service   *service.Service

	running atomic.Bool

	shutdownCallback func(error) // Callback to signal application shutdown
}

func New(ctx context.Context, config *Config, version string, shutdownCallback func(error)) (*adapter, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if config.Log == nil {
		config.Log = log.New()
		config.Log.Error("No logger provided, using default")
	}
	if shutdownCallback == nil {
		shutdownCallback = func(error) {}
	}

	runID := config.TaskID
	if runID == "" {
		runID = uuid.New().String()
	}
	logger := config.Log.New("run_id", runID)

	logger.Debug("Creating adapter with config",
		"action", config.Action,
		"projPath", config.ProjectPath,
		"selectors", len(config.Selectors),
		"python", config.Python,
		"escapeCompat", config.EscapeCompat)

	clk := clock.NewClock()
	summary := NewSummary(clk.Now())

	reporter, err := newReporter(config, runID, summary, logger)
	if err != nil {
		return nil, err
	}

	a := &adapter{
		config:           config,
		version:          version,
		runID:            runID,
		log:              logger,
		clock:            clk,
		out:              os.Stdout,
		tracer:           otel.Tracer("adapter"),
		reporter:         reporter,
		summary:          summary,
		shutdownCallback: shutdownCallback,
		service: service.New(service.Config{
			HealthzAddr: config.HealthzAddr,
			MetricsAddr: config.MetricsAddr,
			Log:         logger,
		}),
	}
	if err := a.initRunner(ctx); err != nil {
		_ = reporter.Close()
		return nil, err
	}
	return a, nil
}

func (a *adapter) initRunner(ctx context.Context) error {
	executor, err := runner.NewExecutor(runner.ExecutorConfig{
		Python:  a.config.Python,
		WorkDir: a.config.ProjectPath,
		Output:  os.Stdout,
		Log:     a.log,
	})
	if err != nil {
		return fmt.Errorf("failed to create executor: %w", err)
	}
	conv := newConverter(ctx, a.config, a.log)

	switch a.config.Action {
	case flags.ActionCollect:
		a.collector, err = runner.NewCollector(runner.CollectorConfig{
			ProjectPath:   a.config.ProjectPath,
			Executor:      executor,
			Converter:     conv,
			CommentFields: a.config.CommentFields,
			Log:           a.log,
		})
	case flags.ActionRun:
		a.runner, err = runner.NewRunner(runner.Config{
			ProjectPath:   a.config.ProjectPath,
			Executor:      executor,
			Reporter:      a.reporter,
			Converter:     conv,
			Clock:         a.clock,
			CommentFields: a.config.CommentFields,
			Options:       a.config.Run,
			Log:           a.log,
		})
	default:
		err = fmt.Errorf("unknown action %q", a.config.Action)
	}
	return err
}

// newReporter opens the result channel and combines it with the local sinks.
// The channel is the pipe when one is configured, the report directory
// otherwise; every other sink is best effort.
func newReporter(config *Config, runID string, summary *Summary, logger log.Logger) (reporting.Reporter, error) {
	var primary reporting.Reporter
	var sinks []reporting.Reporter

	pipe, err := openChannel(config)
	if err != nil {
		return nil, err
	}
	if pipe != nil {
		primary = reporting.NewPipeReporter(pipe, logger)
	}

	if config.FileReportPath != "" {
		fileReporter, err := reporting.NewFileReporter(config.FileReportPath)
		if err != nil {
			if pipe != nil {
				_ = pipe.Close()
			}
			return nil, err
		}
		if primary == nil {
			primary = fileReporter
		} else {
			sinks = append(sinks, reporting.NewBestEffortReporter("file", fileReporter, logger))
		}
	}

	if config.LogDir != "" {
		caseLogs, err := logging.NewCaseLogs(config.LogDir, runID, logger)
		if err != nil {
			logger.Warn("Case logs disabled", "dir", config.LogDir, "err", err)
		} else {
			logger.Info("Writing case logs", "dir", caseLogs.Dir())
			sinks = append(sinks, reporting.NewBestEffortReporter("case logs", caseLogs, logger))
		}
	}

	sinks = append(sinks, reporting.NewMetricsReporter(runID), summary)
	return reporting.NewMultiReporter(append([]reporting.Reporter{primary}, sinks...)...), nil
}

// openChannel opens the pipe shared with the controller, nil when only file
// reports are configured
func openChannel(config *Config) (*os.File, error) {
	if config.IPCFd >= 0 {
		f := os.NewFile(uintptr(config.IPCFd), "ipc")
		if f == nil {
			return nil, &reporting.ChannelWriteError{Op: "open", Err: fmt.Errorf("invalid fd %d", config.IPCFd)}
		}
		return f, nil
	}
	if config.IPCFile != "" {
		f, err := os.OpenFile(config.IPCFile, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
		if err != nil {
			return nil, &reporting.ChannelWriteError{Op: "open", Err: err}
		}
		return f, nil
	}
	return nil, nil
}

// newConverter decides how escaped parameter ids are decoded. In auto mode
// it follows the version of the interpreter.
func newConverter(ctx context.Context, config *Config, logger log.Logger) *selector.Converter {
	switch config.EscapeCompat {
	case flags.EscapeCompatSingle:
		return selector.NewConverter(false)
	case flags.EscapeCompatDouble:
		return selector.NewConverter(true)
	}

	version, err := runner.PythonVersion(ctx, config.Python)
	if err != nil {
		logger.Warn("Could not detect python version, decoding parameter ids once", "python", config.Python, "err", err)
		return selector.NewConverter(false)
	}
	double := runner.NeedsDoubleDecode(version)
	logger.Info("Detected python", "version", version, "doubleDecode", double)
	return selector.NewConverter(double)
}

// Start performs the configured action, then asks the application to exit.
// Start implements the cliapp.Lifecycle interface.
func (a *adapter) Start(ctx context.Context) error {
	ctx, span := a.tracer.Start(ctx, "adapter", trace.WithAttributes(
		attribute.String("action", a.config.Action.String()),
		attribute.String("run_id", a.runID),
	))
	defer span.End()

	a.running.Store(true)
	a.service.Start()
	a.log.Info("Starting testtool-pytest", "version", a.version, "action", a.config.Action, "selectors", len(a.config.Selectors))

	var err error
	switch a.config.Action {
	case flags.ActionCollect:
		err = a.collect(ctx)
	case flags.ActionRun:
		err = a.runner.Run(ctx, a.config.Selectors)
	}
	if closeErr := a.reporter.Close(); closeErr != nil {
		err = errors.Join(err, closeErr)
	}
	a.finish()

	if err != nil {
		span.RecordError(err)
		a.log.Error("Action failed", "action", a.config.Action, "err", err)
		// Stop is not called when Start fails
		a.running.Store(false)
		a.service.Shutdown()
		return classifyError(err)
	}

	a.log.Info("Action completed, exiting", "action", a.config.Action)
	go func() {
		a.shutdownCallback(nil)
	}()
	return nil
}

func (a *adapter) collect(ctx context.Context) error {
	result, err := a.collector.Collect(ctx, a.config.Selectors)
	if err != nil {
		return err
	}
	return a.reporter.ReportLoadResult(result)
}

// finish prints the summary and writes the metrics textfile
func (a *adapter) finish() {
	a.summary.Finish(a.clock.Now())
	a.summary.Render(a.out, a.runID)

	if path := a.config.MetricsTextfile; path != "" {
		if err := metrics.WriteTextfile(path); err != nil {
			a.log.Warn("Failed to write metrics textfile", "path", path, "err", err)
		}
	}
}

// classifyError keeps channel errors apart, every other failure is a runtime
// error
func classifyError(err error) error {
	if reporting.IsChannelWriteError(err) || IsRuntimeError(err) {
		return err
	}
	return NewRuntimeError(err)
}

// Stop shuts down the auxiliary servers.
// Stop implements the cliapp.Lifecycle interface.
func (a *adapter) Stop(ctx context.Context) error {
	if !a.running.Load() {
		a.log.Debug("Adapter already stopped, nothing to do")
		return nil
	}
	a.running.Store(false)
	a.service.Shutdown()
	a.log.Info("testtool-pytest stopped")
	return nil
}

// Stopped implements the cliapp.Lifecycle interface.
func (a *adapter) Stopped() bool {
	return !a.running.Load()
}
