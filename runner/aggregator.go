package runner

import (
	"strings"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/acarl005/stripansi"
	"github.com/ethereum/go-ethereum/log"

	"github.com/opentestsolar/testtool-pytest/attributes"
	"github.com/opentestsolar/testtool-pytest/metrics"
	"github.com/opentestsolar/testtool-pytest/reporting"
	"github.com/opentestsolar/testtool-pytest/selector"
	"github.com/opentestsolar/testtool-pytest/types"
)

// defaultSkipMessage is used when a test ends up ignored without a reason
const defaultSkipMessage = "skip"

// StepSource supplies detailed steps recorded by a step reporting plugin
type StepSource interface {
	StepsFor(name string) ([]types.Step, bool)
}

// AggregatorConfig holds the dependencies of an Aggregator
type AggregatorConfig struct {
	Log           log.Logger
	Clock         clock.Clock
	Converter     *selector.Converter
	Reporter      reporting.Reporter
	CommentFields []string
	// HoldResults keeps finished results until Close instead of reporting
	// them right away, so detailed steps can replace the phase steps first.
	HoldResults bool
}

// Aggregator folds the phase reports of each test into one TestResult. It
// reports a RUNNING result when a test starts and its terminal result when
// it finishes. It is driven from a single goroutine.
type Aggregator struct {
	log           log.Logger
	clock         clock.Clock
	conv          *selector.Converter
	reporter      reporting.Reporter
	commentFields []string
	hold          bool

	live map[string]*types.TestResult
	// names in the order their tests started
	started []string
	held    []*types.TestResult
}

// NewAggregator creates an aggregator with an empty live map
func NewAggregator(cfg AggregatorConfig) *Aggregator {
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewClock()
	}
	if cfg.Converter == nil {
		cfg.Converter = selector.NewConverter(false)
	}
	return &Aggregator{
		log:           cfg.Log,
		clock:         cfg.Clock,
		conv:          cfg.Converter,
		reporter:      cfg.Reporter,
		commentFields: cfg.CommentFields,
		hold:          cfg.HoldResults,
		live:          make(map[string]*types.TestResult),
	}
}

// HandleEvent dispatches a runtest hook event. Collection events are ignored.
func (a *Aggregator) HandleEvent(ev *HookEvent) error {
	switch ev.Event {
	case EventLogStart:
		return a.OnRunStart(ev.NodeID)
	case EventLogReport:
		return a.OnPhaseReport(ev.PhaseReport())
	case EventLogFinish:
		return a.OnRunFinish(ev.NodeID)
	}
	return nil
}

// caseName maps a node id to the test name used on the wire
func (a *Aggregator) caseName(nodeID string) string {
	if !strings.Contains(nodeID, "::") {
		return nodeID
	}
	return a.conv.ToSelectorFormat(nodeID)
}

// OnRunStart records a new RUNNING test and reports it
func (a *Aggregator) OnRunStart(nodeID string) error {
	name := a.caseName(nodeID)
	if _, ok := a.live[name]; ok {
		a.log.Warn("Test started twice, restarting its record", "test", name)
	}

	result := &types.TestResult{
		Test: types.TestCase{
			Name:       name,
			Attributes: map[string]string{},
		},
		StartTime:  a.clock.Now(),
		ResultType: types.ResultTypeRunning,
	}
	a.live[name] = result
	a.started = append(a.started, name)

	a.log.Debug("Test started", "test", name)
	return a.reporter.ReportCaseResult(result)
}

// OnPhaseReport appends the step of one runtest phase and updates the
// verdict. A failure is never overwritten by a later phase.
func (a *Aggregator) OnPhaseReport(report PhaseReport) error {
	name := a.caseName(report.NodeID)
	result, ok := a.live[name]
	if !ok {
		a.inconsistency(EventLogReport, name)
		return nil
	}

	now := a.clock.Now()
	start := now.Add(-time.Duration(report.Duration * float64(time.Second)))
	verdict := phaseResult(report)
	step := types.Step{
		Logs:       []types.Log{phaseLog(report, start)},
		StartTime:  start,
		EndTime:    now,
		ResultType: verdict,
	}

	switch report.When {
	case PhaseSetup:
		step.Title = types.StepTitleSetup
		result.Steps = append(result.Steps, step)
		result.ResultType = verdict
		if report.Item != nil {
			result.Test.Attributes = attributes.Parse(report.Item, a.commentFields)
		}
		switch {
		case report.Skipped():
			result.SetMessage(report.SkipReason)
		case report.Failed():
			result.SetMessage(report.LongRepr)
		}

	case PhaseCall:
		step.Title = types.StepTitleRun
		result.Steps = append(result.Steps, step)
		switch {
		case report.Failed():
			result.ResultType = types.ResultTypeFailed
			if result.Message == "" {
				result.SetMessage(report.LongRepr)
			}
		case report.Skipped():
			if result.ResultType != types.ResultTypeFailed {
				result.ResultType = types.ResultTypeIgnored
			}
			if result.Message == "" {
				result.SetMessage(report.SkipReason)
			}
		default:
			if result.ResultType != types.ResultTypeFailed && result.ResultType != types.ResultTypeIgnored {
				result.ResultType = types.ResultTypeSucceed
			}
		}
		a.log.Info("Test case finished", "test", name, "outcome", report.Outcome)

	case PhaseTeardown:
		if setupSkipped(result) {
			if report.Failed() {
				a.log.Warn("Teardown failed after skipped setup", "test", name, "longrepr", report.LongRepr)
			}
			return nil
		}
		step.Title = types.StepTitleTeardown
		result.Steps = append(result.Steps, step)
		if result.ResultType.Overridable() {
			result.ResultType = verdict
			if report.Failed() && result.Message == "" {
				result.SetMessage(report.LongRepr)
			}
		}

	default:
		a.log.Warn("Unknown runtest phase, dropping report", "test", name, "when", report.When)
	}
	return nil
}

// setupSkipped reports whether the test was skipped before its body ran,
// in which case no later step is recorded
func setupSkipped(result *types.TestResult) bool {
	return len(result.Steps) == 1 &&
		result.Steps[0].Title == types.StepTitleSetup &&
		result.Steps[0].ResultType == types.ResultTypeIgnored
}

// OnRunFinish closes the record of a test, reports its terminal result and
// drops it from the live map
func (a *Aggregator) OnRunFinish(nodeID string) error {
	name := a.caseName(nodeID)
	result, ok := a.live[name]
	if !ok {
		a.inconsistency(EventLogFinish, name)
		return nil
	}
	delete(a.live, name)

	result.EndTime = a.clock.Now()
	// setup and teardown only: the test body never ran
	if len(result.Steps) == 2 && !result.HasStep(types.StepTitleRun) && !result.HasFailedStep() {
		result.ResultType = types.ResultTypeIgnored
		if result.Message == "" {
			result.Message = defaultSkipMessage
		}
	}
	if result.ResultType == types.ResultTypeRunning {
		result.ResultType = types.ResultTypeUnknown
	}

	a.log.Debug("Test finished", "test", name, "result", result.ResultType)
	return a.finalize(result)
}

// ReportLoadFailure reports a test or selector that could not be loaded
func (a *Aggregator) ReportLoadFailure(name, message string) error {
	now := a.clock.Now()
	result := &types.TestResult{
		Test: types.TestCase{
			Name:       name,
			Attributes: map[string]string{},
		},
		StartTime:  now,
		EndTime:    now,
		ResultType: types.ResultTypeLoadFailed,
	}
	result.SetMessage(message)
	a.log.Warn("Reporting load failure", "test", name, "message", result.Message)
	return a.reporter.ReportCaseResult(result)
}

// ApplyDetailedSteps replaces the steps of held results that src knows about
func (a *Aggregator) ApplyDetailedSteps(src StepSource) {
	for _, result := range a.held {
		if steps, ok := src.StepsFor(result.Test.Name); ok {
			result.Steps = steps
		}
	}
}

// Live returns the number of started but unfinished tests
func (a *Aggregator) Live() int {
	return len(a.live)
}

// Close reports tests that never finished as UNKNOWN with reason as message,
// in the order they started, then the held results in completion order
func (a *Aggregator) Close(reason string) error {
	now := a.clock.Now()
	started := a.started
	a.started = nil
	for _, name := range started {
		result, ok := a.live[name]
		if !ok {
			continue
		}
		a.log.Warn("Test did not finish", "test", name)
		result.EndTime = now
		result.ResultType = types.ResultTypeUnknown
		result.SetMessage(reason)
		delete(a.live, name)
		if err := a.reporter.ReportCaseResult(result); err != nil {
			return err
		}
	}

	held := a.held
	a.held = nil
	for _, result := range held {
		if err := a.reporter.ReportCaseResult(result); err != nil {
			return err
		}
	}
	return nil
}

func (a *Aggregator) finalize(result *types.TestResult) error {
	if a.hold {
		a.held = append(a.held, result)
		return nil
	}
	return a.reporter.ReportCaseResult(result)
}

func (a *Aggregator) inconsistency(event, name string) {
	metrics.RecordLifecycleInconsistency(event)
	a.log.Warn("Dropping event for a test that is not running", "event", event, "test", name)
}

func phaseResult(report PhaseReport) types.ResultType {
	switch {
	case report.Failed():
		return types.ResultTypeFailed
	case report.Skipped():
		return types.ResultTypeIgnored
	default:
		return types.ResultTypeSucceed
	}
}

// phaseLog joins the captured output of a phase into one log entry. On
// failure the error representation follows after a blank line.
func phaseLog(report PhaseReport, at time.Time) types.Log {
	var parts []string
	for _, s := range []string{report.CapStdout, report.CapStderr, report.CapLog} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	content := strings.Join(parts, "\n")

	level := types.LogLevelInfo
	if report.Failed() {
		level = types.LogLevelError
		switch {
		case report.LongRepr == "":
		case content == "":
			content = report.LongRepr
		default:
			content += "\n\n" + report.LongRepr
		}
	}

	return types.Log{
		Time:    at,
		Level:   level,
		Content: stripansi.Strip(content),
	}
}
