package runner

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opentestsolar/testtool-pytest/attributes"
	"github.com/opentestsolar/testtool-pytest/types"
)

const normalCase = `import pytest


@pytest.mark.high
@pytest.mark.owner("foo")
@pytest.mark.extra_attributes({"env": ["AA", "BB"]})
def test_success():
    """
    a passing test
    """
    print("this is setup")
    assert 1 == 1


def test_failed():
    assert 1 == 2


@pytest.mark.skip(reason="not ready")
def test_skipped():
    pass


@pytest.mark.parametrize("value", ["a", "b"])
def test_param(value):
    assert value
`

// requirePytest skips the test unless a python with pytest is installed
func requirePytest(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping pytest integration test in short mode")
	}
	python, err := exec.LookPath(DefaultPython)
	if err != nil {
		t.Skip("python3 not found")
	}
	if err := exec.Command(python, "-c", "import pytest").Run(); err != nil {
		t.Skip("pytest is not installed")
	}
	return python
}

func pytestProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "test_normal_case.py"), []byte(normalCase), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "test_broken.py"), []byte("import not_a_module\n"), 0644))
	return dir
}

func TestPytestIntegration_Collect(t *testing.T) {
	python := requirePytest(t)
	proj := pytestProject(t)

	executor, err := NewExecutor(ExecutorConfig{Python: python, WorkDir: proj, Log: log.New()})
	require.NoError(t, err)
	c := newTestCollector(t, proj, executor)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	result, err := c.Collect(ctx, []string{"test_normal_case.py", "test_broken.py"})
	require.NoError(t, err)

	var names []string
	for _, tc := range result.Tests {
		names = append(names, tc.Name)
	}
	assert.Equal(t, []string{
		"test_normal_case.py?test_failed",
		"test_normal_case.py?test_param/[a]",
		"test_normal_case.py?test_param/[b]",
		"test_normal_case.py?test_skipped",
		"test_normal_case.py?test_success",
	}, names)

	success := result.Tests[4]
	assert.Equal(t, "a passing test", success.Attributes[attributes.KeyDescription])
	assert.Equal(t, "high", success.Attributes[attributes.KeyTag])
	assert.Equal(t, "foo", success.Attributes[attributes.KeyOwner])
	assert.Equal(t, `[{"env": ["AA", "BB"]}]`, success.Attributes[attributes.KeyExtraAttributes])

	require.Len(t, result.LoadErrors, 1)
	assert.Equal(t, "test_broken.py", result.LoadErrors[0].Name)
	assert.Contains(t, result.LoadErrors[0].Message, "not_a_module")
}

func TestPytestIntegration_Run(t *testing.T) {
	python := requirePytest(t)
	proj := pytestProject(t)

	executor, err := NewExecutor(ExecutorConfig{Python: python, WorkDir: proj, Log: log.New()})
	require.NoError(t, err)
	rep := &recordingReporter{}
	r := newTestRunner(t, proj, executor, rep, RunOptions{})

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	require.NoError(t, r.Run(ctx, []string{"test_normal_case.py", "test_broken.py"}))

	final := make(map[string]types.TestResult)
	for _, res := range rep.results {
		if res.ResultType.IsTerminal() {
			final[res.Test.Name] = res
		}
	}
	assert.Equal(t, types.ResultTypeSucceed, final["test_normal_case.py?test_success"].ResultType)
	assert.Equal(t, types.ResultTypeFailed, final["test_normal_case.py?test_failed"].ResultType)
	assert.Equal(t, types.ResultTypeIgnored, final["test_normal_case.py?test_skipped"].ResultType)
	assert.Contains(t, final["test_normal_case.py?test_skipped"].Message, "not ready")
	assert.Equal(t, types.ResultTypeSucceed, final["test_normal_case.py?test_param/[a]"].ResultType)
	assert.Equal(t, types.ResultTypeLoadFailed, final["test_broken.py"].ResultType)

	success := final["test_normal_case.py?test_success"]
	require.Len(t, success.Steps, 3)
	assert.Contains(t, success.Steps[1].Logs[0].Content, "this is setup")
	assert.Equal(t, "foo", success.Test.Attributes[attributes.KeyOwner])
}
