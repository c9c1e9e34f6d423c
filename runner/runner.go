package runner

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"code.cloudfoundry.org/clock"
	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/opentestsolar/testtool-pytest/allure"
	"github.com/opentestsolar/testtool-pytest/reporting"
	"github.com/opentestsolar/testtool-pytest/selector"
)

// Close reasons for tests that were still running when pytest exited
const (
	reasonInterrupted = "test run was interrupted"
	reasonHostFailed  = "pytest failed before the test finished"
)

// Config holds configuration for creating a new runner
type Config struct {
	ProjectPath   string
	Executor      Executor
	Reporter      reporting.Reporter
	Converter     *selector.Converter
	Clock         clock.Clock
	CommentFields []string
	Options       RunOptions
	Log           log.Logger
}

// Runner executes selected tests and reports one result stream per test
type Runner struct {
	projPath      string
	executor      Executor
	reporter      reporting.Reporter
	conv          *selector.Converter
	clock         clock.Clock
	commentFields []string
	opts          RunOptions
	log           log.Logger
	tracer        trace.Tracer
}

// NewRunner creates a new runner instance
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.ProjectPath == "" {
		return nil, fmt.Errorf("project path is required")
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if cfg.Reporter == nil {
		return nil, fmt.Errorf("reporter is required")
	}
	if cfg.Converter == nil {
		cfg.Converter = selector.NewConverter(false)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewClock()
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}

	cfg.Log.Debug("NewRunner()", "projPath", cfg.ProjectPath, "allure", cfg.Options.EnableAllure,
		"coverage", cfg.Options.EnableCoverage, "timeout", cfg.Options.TimeoutSeconds)

	return &Runner{
		projPath:      cfg.ProjectPath,
		executor:      cfg.Executor,
		reporter:      cfg.Reporter,
		conv:          cfg.Converter,
		clock:         cfg.Clock,
		commentFields: cfg.CommentFields,
		opts:          cfg.Options,
		log:           cfg.Log,
		tracer:        otel.Tracer("test runner"),
	}, nil
}

// Run executes the tests named by selectors in one pytest process. Test
// outcomes never make Run fail; it returns an error only when results could
// not be delivered or pytest could not run.
func (r *Runner) Run(ctx context.Context, selectors []string) error {
	ctx, span := r.tracer.Start(ctx, "run")
	defer span.End()

	agg := NewAggregator(AggregatorConfig{
		Log:           r.log,
		Clock:         r.clock,
		Converter:     r.conv,
		Reporter:      r.reporter,
		CommentFields: r.commentFields,
		HoldResults:   r.opts.EnableAllure,
	})

	valid, invalid := FilterSelectors(r.projPath, selectors)
	targets, convErrors := convertSelectors(r.conv, r.projPath, valid)
	for _, le := range append(invalid, convErrors...) {
		if err := agg.ReportLoadFailure(le.Name, le.Message); err != nil {
			return err
		}
	}
	if len(targets) == 0 {
		r.log.Warn("No valid selectors to run", "selectors", len(selectors))
		return agg.Close("")
	}

	restoreIni, err := FixPytestIni(r.projPath, r.log)
	if err != nil {
		return err
	}
	defer func() {
		if err := restoreIni(); err != nil {
			r.log.Error("Failed to restore pytest.ini", "err", err)
		}
	}()

	allureDir := filepath.Join(r.projPath, AllureResultsDir)
	if r.opts.EnableAllure {
		if err := allure.PrepareDir(allureDir); err != nil {
			return err
		}
	}

	var coverageSources []string
	if r.opts.EnableCoverage {
		coverageSources, err = CoverageSources(r.projPath, r.opts.CoverageSources, valid)
		if err != nil {
			return err
		}
		if err := prepareCleanDir(filepath.Join(r.projPath, CoverageDir)); err != nil {
			return err
		}
		r.log.Info("Coverage enabled", "sources", coverageSources)
	}

	args := runArgs(r.projPath, r.opts, coverageSources, targets)
	loadFailed := make(map[string]bool)
	_, execErr := r.executor.Execute(ctx, args, func(ev *HookEvent) error {
		if ev.Event != EventCollectError {
			return agg.HandleEvent(ev)
		}
		name := collectErrorName(ev, r.projPath)
		if loadFailed[name] {
			return nil
		}
		loadFailed[name] = true
		return agg.ReportLoadFailure(name, ev.LongRepr)
	})

	reason := ""
	switch {
	case execErr == nil:
	case reporting.IsChannelWriteError(execErr):
		return execErr
	case errors.Is(execErr, context.Canceled), errors.Is(execErr, context.DeadlineExceeded):
		reason = reasonInterrupted
	default:
		reason = reasonHostFailed
	}
	if agg.Live() > 0 && reason == "" {
		reason = reasonHostFailed
	}

	if r.opts.EnableAllure {
		report, err := allure.Load(allureDir, r.log)
		if err != nil {
			r.log.Warn("No allure results to apply", "err", err)
		} else {
			agg.ApplyDetailedSteps(report)
		}
	}

	if err := agg.Close(reason); err != nil {
		return err
	}
	return execErr
}

// collectErrorName keys a collection error by its project relative file
func collectErrorName(ev *HookEvent, projPath string) string {
	name := ev.FSPath
	if name == "" {
		name = ev.NodeID
	}
	if name == "" {
		return defaultLoadErrorName
	}
	return relativeTo(projPath, name)
}
