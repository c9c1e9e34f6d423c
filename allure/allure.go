// Package allure reads the result files written by allure-pytest and turns
// their steps into test case steps.
package allure

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/opentestsolar/testtool-pytest/types"
)

const resultFileSuffix = "result.json"

// Allure step statuses
const (
	StatusPassed  = "passed"
	StatusFailed  = "failed"
	StatusBroken  = "broken"
	StatusSkipped = "skipped"
)

// Result is the part of an allure test result file that is used
type Result struct {
	FullName string `json:"fullName"`
	Steps    []Step `json:"steps"`
}

// Step is one allure step, possibly with nested steps
type Step struct {
	Name          string         `json:"name"`
	Status        string         `json:"status"`
	Start         int64          `json:"start"`
	Stop          int64          `json:"stop"`
	Parameters    []Parameter    `json:"parameters"`
	StatusDetails *StatusDetails `json:"statusDetails"`
	Steps         []Step         `json:"steps"`
}

type Parameter struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type StatusDetails struct {
	Message string `json:"message"`
	Trace   string `json:"trace"`
}

// Report indexes the steps of all results in an allure results dir by case
// key
type Report struct {
	steps map[string][]types.Step
}

// Load reads every *result.json file in dir. Unreadable files are logged
// and skipped.
func Load(dir string, logger log.Logger) (*Report, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read allure dir %s: %w", dir, err)
	}

	report := &Report{steps: make(map[string][]types.Step)}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), resultFileSuffix) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		result, err := readResult(path)
		if err != nil {
			logger.Warn("Skipping allure result", "path", path, "err", err)
			continue
		}
		if len(result.Steps) == 0 {
			continue
		}
		report.steps[strings.ReplaceAll(result.FullName, "#", ".")] = ConvertSteps(result.Steps, 0)
	}
	logger.Debug("Loaded allure results", "dir", dir, "cases", len(report.steps))
	return report, nil
}

func readResult(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// StepsFor returns the allure steps of the test with the given selector name
func (r *Report) StepsFor(name string) ([]types.Step, bool) {
	steps, ok := r.steps[CaseKey(name)]
	return steps, ok
}

// CaseKey turns a selector name into the dotted form allure uses for
// fullName, e.g. "tests/test_a.py?TestA/test_x" -> "tests.test_a.TestA.test_x"
func CaseKey(name string) string {
	name = strings.ReplaceAll(name, ".py?", "/")
	return strings.ReplaceAll(name, "/", ".")
}

// ConvertSteps flattens allure steps depth first. Step titles carry a dotted
// index; the children of step n are numbered from n*10.
func ConvertSteps(steps []Step, index int) []types.Step {
	var out []types.Step
	for _, step := range steps {
		index++
		start := time.UnixMilli(step.Start)

		out = append(out, types.Step{
			Title: fmt.Sprintf("%s: %s", dottedIndex(index), step.Name),
			Logs: []types.Log{{
				Time:    start,
				Level:   stepLevel(step.Status),
				Content: stepLog(step),
			}},
			StartTime:  start,
			EndTime:    time.UnixMilli(step.Stop),
			ResultType: stepResult(step.Status),
		})
		if len(step.Steps) > 0 {
			out = append(out, ConvertSteps(step.Steps, index*10)...)
		}
	}
	return out
}

// dottedIndex renders 12 as "1.2"
func dottedIndex(index int) string {
	digits := strconv.Itoa(index)
	return strings.Join(strings.Split(digits, ""), ".")
}

func stepLog(step Step) string {
	var b strings.Builder
	for _, p := range step.Parameters {
		fmt.Fprintf(&b, "%-30s%-20s\n", "key: "+p.Name, "value: "+p.Value)
	}
	if d := step.StatusDetails; d != nil {
		b.WriteString(d.Message)
		b.WriteString(d.Trace)
	}
	return b.String()
}

func stepResult(status string) types.ResultType {
	switch status {
	case StatusPassed:
		return types.ResultTypeSucceed
	case StatusSkipped:
		return types.ResultTypeIgnored
	default:
		return types.ResultTypeFailed
	}
}

func stepLevel(status string) types.LogLevel {
	if status == StatusFailed || status == StatusBroken {
		return types.LogLevelError
	}
	return types.LogLevelInfo
}

// PrepareDir makes dir an empty directory
func PrepareDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create allure dir %s: %w", dir, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read allure dir %s: %w", dir, err)
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			return fmt.Errorf("failed to clear allure dir %s: %w", dir, err)
		}
	}
	return nil
}
