package runner

import (
	"encoding/json"

	"github.com/opentestsolar/testtool-pytest/attributes"
)

// Hook event names written by the embedded pytest plugin
const (
	EventCollectItem   = "collect_item"
	EventCollectError  = "collect_error"
	EventLogStart      = "logstart"
	EventLogReport     = "logreport"
	EventLogFinish     = "logfinish"
	EventSessionFinish = "sessionfinish"
)

// Runtest phases
const (
	PhaseSetup    = "setup"
	PhaseCall     = "call"
	PhaseTeardown = "teardown"
)

// Phase outcomes
const (
	OutcomePassed  = "passed"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

// HookEvent is one JSON line written by the plugin. Only the fields of the
// given event are set.
type HookEvent struct {
	Event string `json:"event"`

	NodeID   string `json:"nodeid"`
	Location []any  `json:"location"`

	// collect_item, and logreport for the setup phase
	Item *ItemInfo `json:"item"`

	// collect_error
	FSPath string `json:"fspath"`

	// logreport
	When       string  `json:"when"`
	Outcome    string  `json:"outcome"`
	Duration   float64 `json:"duration"`
	LongRepr   string  `json:"longrepr"`
	SkipReason string  `json:"skip_reason"`
	CapStdout  string  `json:"capstdout"`
	CapStderr  string  `json:"capstderr"`
	CapLog     string  `json:"caplog"`

	// sessionfinish
	ExitStatus int `json:"exitstatus"`
}

// PhaseReport returns the logreport payload
func (e *HookEvent) PhaseReport() PhaseReport {
	return PhaseReport{
		NodeID:     e.NodeID,
		When:       e.When,
		Outcome:    e.Outcome,
		Duration:   e.Duration,
		LongRepr:   e.LongRepr,
		SkipReason: e.SkipReason,
		CapStdout:  e.CapStdout,
		CapStderr:  e.CapStderr,
		CapLog:     e.CapLog,
		Item:       e.Item,
	}
}

// PhaseReport is the outcome of one runtest phase of a test
type PhaseReport struct {
	NodeID     string
	When       string
	Outcome    string
	Duration   float64
	LongRepr   string
	SkipReason string
	CapStdout  string
	CapStderr  string
	CapLog     string
	Item       *ItemInfo
}

func (r PhaseReport) Failed() bool  { return r.Outcome == OutcomeFailed }
func (r PhaseReport) Skipped() bool { return r.Outcome == OutcomeSkipped }
func (r PhaseReport) Passed() bool  { return r.Outcome == OutcomePassed }

// ItemInfo describes a collected pytest item
type ItemInfo struct {
	NodeID   string              `json:"nodeid"`
	Path     string              `json:"path"`
	Name     string              `json:"name"`
	Classes  []string            `json:"classes"`
	Function bool                `json:"function"`
	Location []any               `json:"location"`
	Doc      string              `json:"doc"`
	Markers  []attributes.Marker `json:"markers"`
}

var _ attributes.Item = (*ItemInfo)(nil)

func (i *ItemInfo) Docstring() string {
	return i.Doc
}

func (i *ItemInfo) OwnMarkers() []attributes.Marker {
	return i.Markers
}

// LocationFile returns the file and domain parts of the pytest location
// tuple (file, line, domain)
func (i *ItemInfo) LocationFile() (file string, domain string, ok bool) {
	if len(i.Location) < 3 {
		return "", "", false
	}
	file, ok1 := i.Location[0].(string)
	domain, ok2 := i.Location[2].(string)
	return file, domain, ok1 && ok2
}

func decodeHookEvent(line []byte) (*HookEvent, error) {
	var ev HookEvent
	if err := json.Unmarshal(line, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}
