package runner

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opentestsolar/testtool-pytest/selector"
)

func TestFilterSelectors(t *testing.T) {
	proj := writeProject(t, "test_a.py", "sub/test_b.py")

	valid, invalid := FilterSelectors(proj, []string{
		"test_a.py?test_x",
		"sub/test_b.py",
		"sub",
		"gone/test_c.py?TestC/test_z",
	})
	assert.Equal(t, []string{"test_a.py?test_x", "sub/test_b.py", "sub"}, valid)
	require.Len(t, invalid, 1)
	assert.Equal(t, "gone/test_c.py?TestC/test_z", invalid[0].Name)
	assert.Equal(t, "gone/test_c.py does not exist, skipping it", invalid[0].Message)
}

func TestRelativeTo(t *testing.T) {
	assert.Equal(t, "sub/test_b.py", relativeTo("/proj", "/proj/sub/test_b.py"))
	assert.Equal(t, "sub/test_b.py", relativeTo("/proj", "sub/test_b.py"))
	assert.Equal(t, "../other/test_c.py", relativeTo("/proj", "/other/test_c.py"))
}

func TestConvertSelectors(t *testing.T) {
	conv := selector.NewConverter(false)
	targets, failed := convertSelectors(conv, "/proj/", []string{
		"test_a.py?TestA/test_x",
		"test_a.py?test_y[",
		"test_p.py?test_eval/[1+1-2]",
	})
	assert.Equal(t, []string{"/proj/test_a.py::TestA::test_x", "/proj/test_p.py::test_eval[1+1-2]"}, targets)
	require.Len(t, failed, 1)
	assert.Equal(t, "test_a.py?test_y[", failed[0].Name)
}

func TestTargetPath_KeepsParameterTokens(t *testing.T) {
	assert.Equal(t, "/proj/test_a.py::test_x[a/../b]", targetPath("/proj", "test_a.py::test_x[a/../b]"))
}

func TestCollectArgs(t *testing.T) {
	args := collectArgs("/proj", []string{"/proj/test_a.py"})
	assert.Equal(t, []string{
		"--rootdir=/proj",
		"--collect-only",
		"--continue-on-collection-errors",
		"-v",
		"/proj/test_a.py",
	}, args)
}

func TestRunArgs(t *testing.T) {
	targets := []string{"/proj/test_a.py::test_x"}

	t.Run("plain", func(t *testing.T) {
		args := runArgs("/proj", RunOptions{}, nil, targets)
		assert.Equal(t, []string{
			"--rootdir=/proj",
			"--continue-on-collection-errors",
			"-v",
			"/proj/test_a.py::test_x",
		}, args)
	})

	t.Run("all options", func(t *testing.T) {
		opts := RunOptions{
			ExtraArgs:      []string{"-x", "--tb=short"},
			TimeoutSeconds: 30,
			EnableAllure:   true,
			EnableCoverage: true,
		}
		args := runArgs("/proj", opts, []string{"app", "lib"}, targets)
		assert.Equal(t, []string{
			"--rootdir=/proj",
			"--continue-on-collection-errors",
			"-v",
			"--alluredir=" + filepath.Join("/proj", AllureResultsDir),
			"--cov=app",
			"--cov=lib",
			"--cov-context=test",
			"--cov-report=xml:" + filepath.Join("/proj", CoverageDir, CoverageFile),
			"-x",
			"--tb=short",
			"--timeout=30",
			"/proj/test_a.py::test_x",
		}, args)
	})
}
