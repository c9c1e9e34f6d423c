package pytestx

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/opentestsolar/testtool-pytest/reporting"
	"github.com/opentestsolar/testtool-pytest/types"
)

var _ reporting.Reporter = (*Summary)(nil)

// maxSummaryMessage caps the message column of the summary table
const maxSummaryMessage = 120

// Summary keeps what was reported during one invocation and renders it as a
// table once the action is done
type Summary struct {
	mu         sync.Mutex
	load       *types.LoadResult
	results    []types.TestResult
	counts     map[types.ResultType]int
	startedAt  time.Time
	finishedAt time.Time
}

func NewSummary(now time.Time) *Summary {
	return &Summary{
		counts:    make(map[types.ResultType]int),
		startedAt: now,
	}
}

func (s *Summary) ReportLoadResult(result *types.LoadResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	load := *result
	s.load = &load
	return nil
}

// ReportCaseResult keeps terminal results only
func (s *Summary) ReportCaseResult(result *types.TestResult) error {
	if !result.ResultType.IsTerminal() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, *result)
	s.counts[result.ResultType]++
	return nil
}

func (s *Summary) Close() error {
	return nil
}

// Finish records the end of the invocation
func (s *Summary) Finish(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finishedAt = now
}

// Count returns how many terminal results had the given verdict
func (s *Summary) Count(rt types.ResultType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[rt]
}

// Render writes the summary table to w
func (s *Summary) Render(w io.Writer, runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := table.NewWriter()
	t.SetOutputMirror(w)

	if s.load != nil {
		t.SetTitle(fmt.Sprintf("pytest collection (%s) %s", runID, formatDuration(s.duration())))
		t.AppendHeader(table.Row{"Type", "Name", "Message"})
		t.SetColumnConfigs([]table.ColumnConfig{
			{Name: "Type", AutoMerge: true},
			{Name: "Name", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
			{Name: "Message", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
		})
		for _, tc := range s.load.Tests {
			t.AppendRow(table.Row{"Test", tc.Name, ""})
		}
		for _, le := range s.load.LoadErrors {
			t.AppendRow(table.Row{"Load error", le.Name, firstLine(le.Message)})
		}
		t.AppendFooter(table.Row{"Total", fmt.Sprintf("%d tests, %d load errors", len(s.load.Tests), len(s.load.LoadErrors)), ""})
		t.Render()
		return
	}

	t.SetTitle(fmt.Sprintf("pytest run (%s) %s", runID, formatDuration(s.duration())))
	t.AppendHeader(table.Row{"Test", "Duration", "Result", "Message"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Test", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Message", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})
	for _, r := range s.results {
		t.AppendRow(table.Row{
			r.Test.Name,
			formatDuration(r.Duration()),
			getResultString(r.ResultType),
			firstLine(r.Message),
		})
	}
	t.AppendFooter(table.Row{
		"Total",
		len(s.results),
		fmt.Sprintf("%d passed, %d failed, %d ignored", s.counts[types.ResultTypeSucceed], s.counts[types.ResultTypeFailed], s.counts[types.ResultTypeIgnored]),
		fmt.Sprintf("%d load failed, %d unknown", s.counts[types.ResultTypeLoadFailed], s.counts[types.ResultTypeUnknown]),
	})
	t.Render()
}

func (s *Summary) duration() time.Duration {
	if s.finishedAt.IsZero() {
		return 0
	}
	return s.finishedAt.Sub(s.startedAt)
}

// getResultString returns a marked string representing the test result
func getResultString(rt types.ResultType) string {
	switch rt {
	case types.ResultTypeSucceed:
		return "✓ pass"
	case types.ResultTypeIgnored:
		return "- skip"
	case types.ResultTypeFailed:
		return "✗ fail"
	case types.ResultTypeLoadFailed:
		return "✗ load"
	default:
		return "? " + string(rt)
	}
}

// firstLine keeps the first line of a message, cut to maxSummaryMessage
func firstLine(msg string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(msg), "\n")
	if r := []rune(line); len(r) > maxSummaryMessage {
		return string(r[:maxSummaryMessage-3]) + "..."
	}
	return line
}

// Helper function to format duration to seconds with 1 decimal place
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
