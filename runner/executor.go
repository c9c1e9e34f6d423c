package runner

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/ethereum-optimism/optimism/devnet-sdk/telemetry"
	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/opentestsolar/testtool-pytest/metrics"
)

var _ Executor = (*pytestExecutor)(nil)

// EventHandler receives the hook events of one pytest process in order. A
// returned error stops the process.
type EventHandler func(ev *HookEvent) error

// Executor runs pytest with the hook plugin loaded and streams its events
type Executor interface {
	Execute(ctx context.Context, args []string, handler EventHandler) (*ExecResult, error)
}

// ExecResult describes a finished pytest process
type ExecResult struct {
	ExitCode int
	Duration time.Duration
	// Output is the tail of the combined stdout and stderr
	Output string
}

// HostError reports a pytest exit status that means pytest itself failed
// (internal or usage error) rather than any test
type HostError struct {
	ExitCode int
	Output   string
}

func (e *HostError) Error() string {
	return fmt.Sprintf("pytest exited with code %d: %s", e.ExitCode, e.Output)
}

// IsHostError checks if the error is or wraps a HostError
func IsHostError(err error) bool {
	var hostErr *HostError
	return err != nil && errors.As(err, &hostErr)
}

// ExecutorConfig holds the settings of a pytest executor
type ExecutorConfig struct {
	Python  string
	WorkDir string
	// Env is the base environment of the pytest process
	Env []string
	// Output receives pytest's stdout and stderr, may be nil
	Output io.Writer
	Log    log.Logger
}

type pytestExecutor struct {
	python  string
	workDir string
	env     []string
	output  io.Writer
	log     log.Logger
	tracer  trace.Tracer
}

// NewExecutor creates an executor running "<python> -m pytest"
func NewExecutor(cfg ExecutorConfig) (Executor, error) {
	if cfg.WorkDir == "" {
		return nil, fmt.Errorf("workDir cannot be empty")
	}
	if cfg.Python == "" {
		cfg.Python = DefaultPython
	}
	if cfg.Env == nil {
		cfg.Env = os.Environ()
	}
	if cfg.Output == nil {
		cfg.Output = io.Discard
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}

	return &pytestExecutor{
		python:  cfg.Python,
		workDir: cfg.WorkDir,
		env:     cfg.Env,
		output:  cfg.Output,
		log:     cfg.Log,
		tracer:  otel.Tracer("pytest executor"),
	}, nil
}

// Execute runs pytest with args and calls handler for each hook event. It
// returns once pytest exited and all events were handled.
func (e *pytestExecutor) Execute(ctx context.Context, args []string, handler EventHandler) (*ExecResult, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context cannot be nil")
	}
	if handler == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}

	ctx, span := e.tracer.Start(ctx, "pytest", trace.WithAttributes(attribute.StringSlice("args", args)))
	defer span.End()

	pluginDir, cleanup, err := installPlugin()
	if err != nil {
		return nil, err
	}
	defer cleanup()

	eventsR, eventsW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create event pipe: %w", err)
	}
	defer eventsR.Close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmdArgs := append([]string{"-m", "pytest", "-p", HookModule}, args...)
	cmd := exec.CommandContext(runCtx, e.python, cmdArgs...)
	cmd.Dir = e.workDir
	env := withPythonPath(e.env, pluginDir, e.workDir)
	env = append(env, HookFDEnv+"="+strconv.Itoa(hookFD))
	cmd.Env = telemetry.InstrumentEnvironment(ctx, env)
	cmd.ExtraFiles = []*os.File{eventsW}

	tail := newTailBuffer(outputTailBytes)
	cmd.Stdout = io.MultiWriter(e.output, tail)
	cmd.Stderr = cmd.Stdout
	cmd.Cancel = func() error {
		return terminateProcessTree(cmd.Process.Pid)
	}
	cmd.WaitDelay = cancelWaitDelay

	e.log.Info("Running pytest", "python", e.python, "args", args, "dir", e.workDir)
	start := time.Now()
	if err := cmd.Start(); err != nil {
		_ = eventsW.Close()
		return nil, fmt.Errorf("failed to start pytest: %w", err)
	}
	// the child holds its own copy; ours must go so the reader sees EOF
	_ = eventsW.Close()

	var waitErr error
	var g errgroup.Group
	g.Go(func() error {
		waitErr = cmd.Wait()
		return nil
	})
	g.Go(func() error {
		if err := e.readEvents(eventsR, handler); err != nil {
			cancel()
			return err
		}
		return nil
	})
	handlerErr := g.Wait()

	result := &ExecResult{
		ExitCode: exitCode(cmd, waitErr),
		Duration: time.Since(start),
		Output:   tail.String(),
	}
	e.log.Info("pytest finished", "exit_code", result.ExitCode, "duration", result.Duration, "output_truncated", tail.Truncated())

	if handlerErr != nil {
		return result, handlerErr
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}
	if waitErr != nil && result.ExitCode == unknownExitCodeResult {
		return result, fmt.Errorf("pytest did not finish: %w", waitErr)
	}

	switch result.ExitCode {
	case ExitOK, ExitTestsFailed, ExitNoTestsCollected:
	case ExitInternalError, ExitUsageError:
		metrics.RecordError("pytest_exit_" + strconv.Itoa(result.ExitCode))
		return result, &HostError{ExitCode: result.ExitCode, Output: result.Output}
	default:
		e.log.Warn("pytest exited with unexpected code", "exit_code", result.ExitCode)
	}
	return result, nil
}

// readEvents decodes JSON lines until EOF. Lines that are not valid events
// are logged and skipped.
func (e *pytestExecutor) readEvents(r io.Reader, handler EventHandler) error {
	br := bufio.NewReader(r)
	for {
		line, readErr := br.ReadBytes('\n')
		if line = bytes.TrimSpace(line); len(line) > 0 {
			ev, err := decodeHookEvent(line)
			if err != nil {
				e.log.Warn("Skipping malformed hook event", "error", err, "line", string(line))
			} else if err := handler(ev); err != nil {
				return err
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("failed to read hook events: %w", readErr)
		}
	}
}

func exitCode(cmd *exec.Cmd, waitErr error) int {
	if cmd.ProcessState != nil {
		if code := cmd.ProcessState.ExitCode(); code >= 0 {
			return code
		}
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) && exitErr.ExitCode() >= 0 {
		return exitErr.ExitCode()
	}
	return unknownExitCodeResult
}
