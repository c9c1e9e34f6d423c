package types

import (
	"fmt"
	"time"
)

// ResultType is the verdict of a single test case
type ResultType string

const (
	ResultTypeRunning    ResultType = "running"
	ResultTypeSucceed    ResultType = "succeed"
	ResultTypeFailed     ResultType = "failed"
	ResultTypeIgnored    ResultType = "ignored"
	ResultTypeLoadFailed ResultType = "loadfailed"
	ResultTypeUnknown    ResultType = "unknown"
)

// IsTerminal reports whether the verdict ends a test's lifecycle
func (r ResultType) IsTerminal() bool {
	return r != ResultTypeRunning
}

// Overridable reports whether a later phase may still replace the verdict.
// Only a running or provisionally succeeded test can change its outcome.
func (r ResultType) Overridable() bool {
	return r == ResultTypeRunning || r == ResultTypeSucceed
}

// LogLevel is the severity of a step log entry
type LogLevel int

const (
	LogLevelTrace LogLevel = 0
	LogLevelDebug LogLevel = 1
	LogLevelInfo  LogLevel = 2
	LogLevelWarn  LogLevel = 3
	LogLevelError LogLevel = 4
)

func (l LogLevel) String() string {
	switch l {
	case LogLevelTrace:
		return "TRACE"
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

// Step titles used for the three runtest phases
const (
	StepTitleSetup    = "Setup"
	StepTitleRun      = "Run TestCase"
	StepTitleTeardown = "Teardown"
)

// MaxMessageLength caps TestResult.Message to keep frames small
const MaxMessageLength = 1000

// TestCase identifies a test by its selector-format name
type TestCase struct {
	Name       string            `json:"name"`
	Attributes map[string]string `json:"attributes"`
}

// Log is a single log entry attached to a step
type Log struct {
	Time    time.Time `json:"time"`
	Level   LogLevel  `json:"level"`
	Content string    `json:"content"`
}

// Step is one phase (or one externally reported step) of a test case
type Step struct {
	Title      string     `json:"title"`
	Logs       []Log      `json:"logs"`
	StartTime  time.Time  `json:"startTime"`
	EndTime    time.Time  `json:"endTime"`
	ResultType ResultType `json:"resultType"`
}

// TestResult is the record reported for a test case, first while running and
// then once with its terminal verdict
type TestResult struct {
	Test       TestCase   `json:"test"`
	StartTime  time.Time  `json:"startTime"`
	EndTime    time.Time  `json:"endTime,omitzero"`
	ResultType ResultType `json:"resultType"`
	Message    string     `json:"message"`
	Steps      []Step     `json:"steps"`
}

// HasFailedStep reports whether any recorded step failed
func (tr *TestResult) HasFailedStep() bool {
	for _, step := range tr.Steps {
		if step.ResultType == ResultTypeFailed {
			return true
		}
	}
	return false
}

// HasStep reports whether a step with the given title was recorded
func (tr *TestResult) HasStep(title string) bool {
	for _, step := range tr.Steps {
		if step.Title == title {
			return true
		}
	}
	return false
}

// Duration returns the wall time between start and end, zero while running
func (tr *TestResult) Duration() time.Duration {
	if tr.EndTime.IsZero() || tr.StartTime.IsZero() {
		return 0
	}
	d := tr.EndTime.Sub(tr.StartTime)
	if d < 0 {
		return 0
	}
	return d
}

// SetMessage stores msg truncated to MaxMessageLength characters
func (tr *TestResult) SetMessage(msg string) {
	tr.Message = TruncateMessage(msg)
}

// TruncateMessage cuts s to at most MaxMessageLength runes
func TruncateMessage(s string) string {
	n := 0
	for i := range s {
		if n == MaxMessageLength {
			return s[:i]
		}
		n++
	}
	return s
}

// LoadError records a discovery-time failure
type LoadError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// LoadResult is the outcome of a collect action
type LoadResult struct {
	Tests      []TestCase  `json:"tests"`
	LoadErrors []LoadError `json:"loadErrors"`
}
