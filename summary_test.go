package pytestx

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opentestsolar/testtool-pytest/types"
)

var summaryStart = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func caseResult(name string, rt types.ResultType, message string, d time.Duration) *types.TestResult {
	return &types.TestResult{
		Test:       types.TestCase{Name: name},
		StartTime:  summaryStart,
		EndTime:    summaryStart.Add(d),
		ResultType: rt,
		Message:    message,
	}
}

func TestSummary_CountsTerminalResults(t *testing.T) {
	s := NewSummary(summaryStart)

	running := caseResult("t.py?test_a", types.ResultTypeRunning, "", 0)
	running.EndTime = time.Time{}
	require.NoError(t, s.ReportCaseResult(running))
	require.NoError(t, s.ReportCaseResult(caseResult("t.py?test_a", types.ResultTypeSucceed, "", time.Second)))
	require.NoError(t, s.ReportCaseResult(caseResult("t.py?test_b", types.ResultTypeFailed, "boom", time.Second)))
	require.NoError(t, s.ReportCaseResult(caseResult("t.py?test_c", types.ResultTypeFailed, "boom", time.Second)))
	require.NoError(t, s.Close())

	assert.Equal(t, 0, s.Count(types.ResultTypeRunning))
	assert.Equal(t, 1, s.Count(types.ResultTypeSucceed))
	assert.Equal(t, 2, s.Count(types.ResultTypeFailed))
	assert.Equal(t, 0, s.Count(types.ResultTypeIgnored))
}

func TestSummary_KeepsCopies(t *testing.T) {
	s := NewSummary(summaryStart)
	res := caseResult("t.py?test_a", types.ResultTypeFailed, "first", time.Second)
	require.NoError(t, s.ReportCaseResult(res))
	res.Message = "changed later"

	var out bytes.Buffer
	s.Render(&out, "run-1")
	assert.Contains(t, out.String(), "first")
	assert.NotContains(t, out.String(), "changed later")
}

func TestSummary_RenderRun(t *testing.T) {
	s := NewSummary(summaryStart)
	require.NoError(t, s.ReportCaseResult(caseResult("t.py?test_a", types.ResultTypeSucceed, "", 1500*time.Millisecond)))
	require.NoError(t, s.ReportCaseResult(caseResult("t.py?test_b", types.ResultTypeFailed, "assert 1 == 2\nmore detail", time.Second)))
	require.NoError(t, s.ReportCaseResult(caseResult("t.py?test_c", types.ResultTypeIgnored, "not ready", 0)))
	s.Finish(summaryStart.Add(3 * time.Second))

	var out bytes.Buffer
	s.Render(&out, "run-1")
	text := out.String()

	assert.Contains(t, text, "pytest run (run-1) 3.0s")
	assert.Contains(t, text, "t.py?test_a")
	assert.Contains(t, text, "1.5s")
	assert.Contains(t, text, "✓ pass")
	assert.Contains(t, text, "✗ fail")
	assert.Contains(t, text, "- skip")
	assert.Contains(t, text, "assert 1 == 2")
	assert.NotContains(t, text, "more detail")
	assert.Contains(t, text, "1 PASSED, 1 FAILED, 1 IGNORED")
}

func TestSummary_RenderCollection(t *testing.T) {
	s := NewSummary(summaryStart)
	require.NoError(t, s.ReportLoadResult(&types.LoadResult{
		Tests:      []types.TestCase{{Name: "t.py?test_a"}, {Name: "t.py?test_b"}},
		LoadErrors: []types.LoadError{{Name: "broken.py", Message: "ImportError: foo\ntraceback"}},
	}))

	var out bytes.Buffer
	s.Render(&out, "run-2")
	text := out.String()

	assert.Contains(t, text, "pytest collection (run-2)")
	assert.Contains(t, text, "t.py?test_b")
	assert.Contains(t, text, "broken.py")
	assert.Contains(t, text, "ImportError: foo")
	assert.NotContains(t, text, "traceback")
	assert.Contains(t, text, "2 TESTS, 1 LOAD ERRORS")
}

func TestGetResultString(t *testing.T) {
	assert.Equal(t, "✗ load", getResultString(types.ResultTypeLoadFailed))
	assert.Equal(t, "? unknown", getResultString(types.ResultTypeUnknown))
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "first", firstLine("\n  first\nsecond"))
	long := firstLine(strings.Repeat("é", 200))
	assert.Equal(t, maxSummaryMessage, len([]rune(long)))
	assert.True(t, strings.HasSuffix(long, "..."))
}
