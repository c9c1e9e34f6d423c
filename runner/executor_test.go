package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePython writes a shell script standing in for the interpreter. It emits
// hook events on the hook fd the way the plugin does.
func fakePython(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not supported on windows")
	}
	path := filepath.Join(t.TempDir(), "python")
	script := "#!/bin/sh\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0755))
	return path
}

func newTestExecutor(t *testing.T, python string, env ...string) Executor {
	t.Helper()
	exec, err := NewExecutor(ExecutorConfig{
		Python:  python,
		WorkDir: t.TempDir(),
		Env:     append([]string{"PATH=" + os.Getenv("PATH")}, env...),
		Log:     log.New(),
	})
	require.NoError(t, err)
	return exec
}

type eventLog struct {
	events []*HookEvent
}

func (l *eventLog) handle(ev *HookEvent) error {
	l.events = append(l.events, ev)
	return nil
}

func TestNewExecutor_Validation(t *testing.T) {
	_, err := NewExecutor(ExecutorConfig{})
	assert.Error(t, err)
}

func TestExecutor_StreamsEvents(t *testing.T) {
	python := fakePython(t, `
echo '{"event":"logstart","nodeid":"test_a.py::test_x","location":["test_a.py",0,"test_x"]}' >&3
echo 'this is not json' >&3
printf '{"event":"logfinish","nodeid":"test_a.py::test_x"}' >&3
echo "args=$*"
echo "fd=$TESTSOLAR_HOOK_FD"
test -f "${PYTHONPATH%%:*}/testsolar_hook.py" && echo "plugin installed"
`)
	exec := newTestExecutor(t, python)

	var events eventLog
	result, err := exec.Execute(context.Background(), []string{"--collect-only", "test_a.py"}, events.handle)
	require.NoError(t, err)

	require.Len(t, events.events, 2)
	assert.Equal(t, EventLogStart, events.events[0].Event)
	assert.Equal(t, "test_a.py::test_x", events.events[0].NodeID)
	assert.Equal(t, EventLogFinish, events.events[1].Event)

	assert.Equal(t, ExitOK, result.ExitCode)
	assert.Contains(t, result.Output, "args=-m pytest -p testsolar_hook --collect-only test_a.py")
	assert.Contains(t, result.Output, "fd=3")
	assert.Contains(t, result.Output, "plugin installed")
}

func TestExecutor_ExitCodes(t *testing.T) {
	tests := []struct {
		name      string
		code      string
		wantCode  int
		hostError bool
	}{
		{name: "tests failed", code: "1", wantCode: ExitTestsFailed},
		{name: "interrupted", code: "2", wantCode: ExitInterrupted},
		{name: "internal error", code: "3", wantCode: ExitInternalError, hostError: true},
		{name: "usage error", code: "4", wantCode: ExitUsageError, hostError: true},
		{name: "no tests collected", code: "5", wantCode: ExitNoTestsCollected},
		{name: "unexpected", code: "9", wantCode: 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			python := fakePython(t, "echo 'ERROR: something'\nexit "+tt.code)
			exec := newTestExecutor(t, python)

			var events eventLog
			result, err := exec.Execute(context.Background(), nil, events.handle)
			require.NotNil(t, result)
			assert.Equal(t, tt.wantCode, result.ExitCode)
			if tt.hostError {
				require.Error(t, err)
				assert.True(t, IsHostError(err))
				assert.Contains(t, err.Error(), "ERROR: something")
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestExecutor_HandlerErrorStopsPytest(t *testing.T) {
	python := fakePython(t, `
echo '{"event":"logstart","nodeid":"test_a.py::test_x"}' >&3
exec sleep 30
`)
	exec := newTestExecutor(t, python)

	handlerErr := errors.New("channel closed")
	start := time.Now()
	_, err := exec.Execute(context.Background(), nil, func(ev *HookEvent) error {
		return handlerErr
	})
	assert.ErrorIs(t, err, handlerErr)
	assert.Less(t, time.Since(start), 20*time.Second)
}

func TestExecutor_ContextCancel(t *testing.T) {
	python := fakePython(t, "exec sleep 30")
	exec := newTestExecutor(t, python)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	var events eventLog
	_, err := exec.Execute(ctx, nil, events.handle)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExecutor_MissingInterpreter(t *testing.T) {
	exec := newTestExecutor(t, filepath.Join(t.TempDir(), "no-such-python"))

	var events eventLog
	_, err := exec.Execute(context.Background(), nil, events.handle)
	assert.ErrorContains(t, err, "failed to start pytest")
}

func TestExecutor_NilHandler(t *testing.T) {
	exec := newTestExecutor(t, "python3")
	_, err := exec.Execute(context.Background(), nil, nil)
	assert.Error(t, err)
}

func TestReadEvents(t *testing.T) {
	e := &pytestExecutor{log: log.New()}
	input := strings.Join([]string{
		`{"event":"collect_item","nodeid":"a.py::t","item":{"nodeid":"a.py::t","name":"t","function":true}}`,
		``,
		`{"event":`,
		`{"event":"sessionfinish","exitstatus":1}`,
	}, "\n")

	var events eventLog
	require.NoError(t, e.readEvents(strings.NewReader(input), events.handle))
	require.Len(t, events.events, 2)
	assert.Equal(t, "t", events.events[0].Item.Name)
	assert.True(t, events.events[0].Item.Function)
	assert.Equal(t, 1, events.events[1].ExitStatus)
}

func TestTailBuffer(t *testing.T) {
	b := newTailBuffer(8)
	_, _ = b.Write([]byte("hello "))
	assert.False(t, b.Truncated())
	_, _ = b.Write([]byte("world"))
	assert.Equal(t, "lo world", b.String())
	assert.True(t, b.Truncated())
}

func TestWithPythonPath(t *testing.T) {
	env := withPythonPath([]string{"HOME=/root", "PYTHONPATH=/existing"}, "/plugin", "/proj")
	assert.Equal(t, []string{"HOME=/root", "PYTHONPATH=/plugin:/proj:/existing"}, env)

	env = withPythonPath([]string{"HOME=/root"}, "/plugin")
	assert.Equal(t, []string{"HOME=/root", "PYTHONPATH=/plugin"}, env)
}

func TestInstallPlugin(t *testing.T) {
	dir, cleanup, err := installPlugin()
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, HookModule+".py"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "def pytest_runtest_logreport")

	cleanup()
	assert.NoDirExists(t, dir)
}
