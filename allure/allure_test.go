package allure

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opentestsolar/testtool-pytest/types"
)

const sampleResult = `{
  "name": "test_add",
  "status": "failed",
  "fullName": "tests.test_calc.TestCalc#test_add",
  "steps": [
    {
      "name": "prepare",
      "status": "passed",
      "start": 1700000000000,
      "stop": 1700000001500,
      "parameters": [{"name": "x", "value": "1"}],
      "steps": [
        {"name": "inner", "status": "passed", "start": 1700000000100, "stop": 1700000000200}
      ]
    },
    {
      "name": "check",
      "status": "failed",
      "start": 1700000002000,
      "stop": 1700000003000,
      "statusDetails": {"message": "AssertionError\n", "trace": "Traceback ..."}
    }
  ]
}`

func TestCaseKey(t *testing.T) {
	assert.Equal(t, "tests.test_calc.TestCalc.test_add", CaseKey("tests/test_calc.py?TestCalc/test_add"))
	assert.Equal(t, "test_a.test_x", CaseKey("test_a.py?test_x"))
}

func TestDottedIndex(t *testing.T) {
	assert.Equal(t, "1", dottedIndex(1))
	assert.Equal(t, "1.2", dottedIndex(12))
	assert.Equal(t, "2.1.3", dottedIndex(213))
}

func TestConvertSteps(t *testing.T) {
	steps := ConvertSteps([]Step{
		{
			Name: "prepare", Status: StatusPassed, Start: 1000, Stop: 2000,
			Parameters: []Parameter{{Name: "x", Value: "1"}},
			Steps: []Step{
				{Name: "a", Status: StatusSkipped, Start: 1100, Stop: 1200},
				{Name: "b", Status: StatusBroken, Start: 1200, Stop: 1300},
			},
		},
		{Name: "check", Status: StatusFailed, Start: 2000, Stop: 3000,
			StatusDetails: &StatusDetails{Message: "boom\n", Trace: "trace"}},
	}, 0)

	require.Len(t, steps, 4)
	assert.Equal(t, []string{"1: prepare", "1.1: a", "1.2: b", "2: check"},
		[]string{steps[0].Title, steps[1].Title, steps[2].Title, steps[3].Title})

	assert.Equal(t, types.ResultTypeSucceed, steps[0].ResultType)
	assert.Equal(t, types.ResultTypeIgnored, steps[1].ResultType)
	assert.Equal(t, types.ResultTypeFailed, steps[2].ResultType)
	assert.Equal(t, types.LogLevelError, steps[2].Logs[0].Level)
	assert.Equal(t, types.LogLevelInfo, steps[1].Logs[0].Level)

	assert.Equal(t, "key: x                        value: 1            \n", steps[0].Logs[0].Content)
	assert.Equal(t, "boom\ntrace", steps[3].Logs[0].Content)
	assert.Equal(t, time.UnixMilli(1000), steps[0].StartTime)
	assert.Equal(t, time.UnixMilli(2000), steps[0].EndTime)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "abc-result.json"), []byte(sampleResult), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "def-container.json"), []byte(`{}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad-result.json"), []byte(`{`), 0644))

	report, err := Load(dir, log.New())
	require.NoError(t, err)

	steps, ok := report.StepsFor("tests/test_calc.py?TestCalc/test_add")
	require.True(t, ok)
	require.Len(t, steps, 3)
	assert.Equal(t, "1.1: inner", steps[1].Title)
	assert.Equal(t, "2: check", steps[2].Title)

	_, ok = report.StepsFor("tests/test_calc.py?TestCalc/test_sub")
	assert.False(t, ok)
}

func TestLoad_MissingDir(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing"), log.New())
	assert.Error(t, err)
}

func TestPrepareDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "allure_results")
	require.NoError(t, PrepareDir(dir))
	assert.DirExists(t, dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "old-result.json"), []byte(sampleResult), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0755))
	require.NoError(t, PrepareDir(dir))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
