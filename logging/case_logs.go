// Package logging writes human readable log files for the test cases of a
// run, next to the machine readable results.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/opentestsolar/testtool-pytest/reporting"
	"github.com/opentestsolar/testtool-pytest/types"
)

var _ reporting.Reporter = (*CaseLogs)(nil)

const (
	RunDirectoryPrefix = "testrun-"
	AllLogsFilename    = "all.log"
	LoadErrorsFilename = "load_errors.log"

	// maxFilenameLength keeps generated names below common filesystem limits
	maxFilenameLength = 200
)

// CaseLogs is a reporter writing one log file per finished test case into
// passed/, failed/ or ignored/ of a per-run directory, and every case into
// all.log
type CaseLogs struct {
	mu      sync.Mutex
	dir     string
	all     *AsyncFile
	written map[string]int
	log     log.Logger
}

// NewCaseLogs creates <baseDir>/testrun-<runID> and its sub directories
func NewCaseLogs(baseDir, runID string, logger log.Logger) (*CaseLogs, error) {
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}
	if baseDir == "" {
		return nil, fmt.Errorf("baseDir cannot be empty")
	}
	if logger == nil {
		logger = log.New()
		logger.Error("No logger provided, using default")
	}

	dir := filepath.Join(baseDir, RunDirectoryPrefix+runID)
	for _, sub := range []string{"passed", "failed", "ignored"} {
		path := filepath.Join(dir, sub)
		if err := os.MkdirAll(path, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", path, err)
		}
	}

	all, err := NewAsyncFile(filepath.Join(dir, AllLogsFilename), logger)
	if err != nil {
		return nil, err
	}

	return &CaseLogs{
		dir:     dir,
		all:     all,
		written: make(map[string]int),
		log:     logger,
	}, nil
}

// Dir returns the run directory
func (c *CaseLogs) Dir() string {
	return c.dir
}

// ReportLoadResult writes the load errors, if any, to load_errors.log
func (c *CaseLogs) ReportLoadResult(result *types.LoadResult) error {
	if len(result.LoadErrors) == 0 {
		return nil
	}

	var content strings.Builder
	for _, le := range result.LoadErrors {
		fmt.Fprintf(&content, "%s\n%s\n%s\n\n", le.Name, strings.Repeat("~", 80), strings.TrimRight(le.Message, "\n"))
	}

	path := filepath.Join(c.dir, LoadErrorsFilename)
	if err := os.WriteFile(path, []byte(content.String()), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// ReportCaseResult writes the log file of a finished case. Running results
// are ignored.
func (c *CaseLogs) ReportCaseResult(result *types.TestResult) error {
	if !result.ResultType.IsTerminal() {
		return nil
	}

	content := formatCase(result)

	c.mu.Lock()
	path := c.casePath(result)
	c.mu.Unlock()

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write case log %s: %w", path, err)
	}
	c.log.Trace("Wrote case log", "test", result.Test.Name, "path", path)

	return c.all.Write([]byte(content))
}

func (c *CaseLogs) Close() error {
	return c.all.Close()
}

// casePath picks a unique file for the case. Callers hold c.mu.
func (c *CaseLogs) casePath(result *types.TestResult) string {
	name := safeFilename(result.Test.Name)
	key := verdictDir(result.ResultType) + "/" + name
	n := c.written[key]
	c.written[key] = n + 1
	if n > 0 {
		name = fmt.Sprintf("%s-%d", name, n)
	}
	return filepath.Join(c.dir, verdictDir(result.ResultType), name+".log")
}

func verdictDir(rt types.ResultType) string {
	switch rt {
	case types.ResultTypeSucceed:
		return "passed"
	case types.ResultTypeIgnored:
		return "ignored"
	default:
		return "failed"
	}
}

func formatCase(result *types.TestResult) string {
	var content strings.Builder

	fmt.Fprintf(&content, "\n")
	fmt.Fprintf(&content, "┌─────────────────────────────────────────────────────────────────────┐\n")
	fmt.Fprintf(&content, "│ TEST: %-61s │\n", truncateString(result.Test.Name, 61))
	fmt.Fprintf(&content, "├─────────────────────────────────────────────────────────────────────┤\n")
	fmt.Fprintf(&content, "│ Result:   %-57s │\n", result.ResultType)
	fmt.Fprintf(&content, "│ Duration: %-57s │\n", formatDuration(result.Duration()))
	fmt.Fprintf(&content, "│ Started:  %-57s │\n", result.StartTime.Format(time.RFC3339))
	fmt.Fprintf(&content, "└─────────────────────────────────────────────────────────────────────┘\n\n")

	if result.Message != "" {
		fmt.Fprintf(&content, "MESSAGE:\n")
		fmt.Fprintf(&content, "~~~~~~~~\n")
		fmt.Fprintf(&content, "%s\n\n", indentText(result.Message, "  "))
	}

	for _, step := range result.Steps {
		fmt.Fprintf(&content, "STEP %s [%s] %s:\n", step.Title, step.ResultType, formatDuration(step.EndTime.Sub(step.StartTime)))
		if len(step.Logs) == 0 {
			fmt.Fprintf(&content, "  No output captured.\n\n")
			continue
		}
		for _, entry := range step.Logs {
			fmt.Fprintf(&content, "  %s %-5s\n", entry.Time.Format(time.RFC3339), entry.Level)
			fmt.Fprintf(&content, "%s\n", indentText(strings.TrimRight(entry.Content, "\n"), "    "))
		}
		fmt.Fprintf(&content, "\n")
	}

	return content.String()
}

// indentText adds indentation to each non-empty line of text
func indentText(text, indent string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = indent + line
		}
	}
	return strings.Join(lines, "\n")
}

// truncateString truncates a string to maxLen runes and adds an ellipsis if
// needed
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}

// safeFilename converts a test name to a file name by replacing characters
// that are problematic in paths
func safeFilename(s string) string {
	s = strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		" ", "_",
		"&", "_",
	).Replace(s)
	if len(s) > maxFilenameLength {
		s = strings.ToValidUTF8(s[:maxFilenameLength], "")
	}
	if s == "" {
		s = "unnamed"
	}
	return s
}

func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}
