package flags

import (
	"fmt"
	"slices"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
)

const EnvVarPrefix = "TESTSOLAR_PYTEST"

// Feature toggles keep the env var names existing task definitions use
const (
	ExtraArgsEnvVar          = "TESTSOLAR_TTP_EXTRAARGS"
	TimeoutEnvVar            = "TESTSOLAR_TTP_TIMEOUT"
	EnableAllureEnvVar       = "TESTSOLAR_TTP_ENABLEALLURE"
	EnableCoverageEnvVar     = "TESTSOLAR_TTP_ENABLECOVERAGE"
	CoverageSourceListEnvVar = "TESTSOLAR_TTP_COVERAGESOURCELIST"
)

// ActionType selects what the adapter does
type ActionType string

const (
	ActionCollect ActionType = "collect"
	ActionRun     ActionType = "run"
)

func (a ActionType) String() string {
	return string(a)
}

func (a ActionType) IsValid() bool {
	return slices.Contains(ValidActionTypes(), a)
}

func ValidActionTypes() []ActionType {
	return []ActionType{ActionCollect, ActionRun}
}

// EscapeCompat selects how escaped parameter ids in node ids are decoded
type EscapeCompat string

const (
	EscapeCompatAuto   EscapeCompat = "auto"
	EscapeCompatSingle EscapeCompat = "single"
	EscapeCompatDouble EscapeCompat = "double"
)

func (e EscapeCompat) IsValid() bool {
	return e == EscapeCompatAuto || e == EscapeCompatSingle || e == EscapeCompatDouble
}

func validateAction(value string) error {
	if !ActionType(value).IsValid() {
		return fmt.Errorf("action must be one of %v, got %q", ValidActionTypes(), value)
	}
	return nil
}

func validateEscapeCompat(value string) error {
	if !EscapeCompat(value).IsValid() {
		return fmt.Errorf("escape-compat must be one of auto, single, double, got %q", value)
	}
	return nil
}

var (
	Action = &cli.StringFlag{
		Name:     "action",
		Required: true,
		EnvVars:  opservice.PrefixEnvVar(EnvVarPrefix, "ACTION"),
		Usage:    "What to do: 'collect' to discover tests, 'run' to execute them",
		Action: func(_ *cli.Context, v string) error {
			return validateAction(v)
		},
	}
	ProjPath = &cli.StringFlag{
		Name:    "proj-path",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PROJ_PATH"),
		Usage:   "Path to the project under test. Required unless given by --entry-file",
	}
	TestCases = &cli.StringFlag{
		Name:    "testcases",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TESTCASES"),
		Usage:   "Test selectors separated by whitespace, quoted with shell rules (eg. 'tests/test_a.py?test_x')",
	}
	IPCFd = &cli.IntFlag{
		Name:    "ipc-fd",
		Value:   -1,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "IPC_FD"),
		Usage:   "Inherited file descriptor of the result channel",
	}
	IPCFile = &cli.StringFlag{
		Name:    "ipc-file",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "IPC_FILE"),
		Usage:   "Path of the result channel (named pipe or file), used when --ipc-fd is not set",
	}
	FileReportPath = &cli.StringFlag{
		Name:    "file-report-path",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "FILE_REPORT_PATH"),
		Usage:   "Directory to also write every result to as a JSON file",
	}
	EntryFile = &cli.StringFlag{
		Name:    "entry-file",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "ENTRY_FILE"),
		Usage:   "Entry parameter file (YAML or JSON) with ProjectPath, TestSelectors and FileReportPath",
	}
	Python = &cli.StringFlag{
		Name:    "python",
		Value:   "python3",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PYTHON"),
		Usage:   "Python interpreter that has pytest installed",
	}
	CommentFields = &cli.StringSliceFlag{
		Name:    "comment-fields",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "COMMENT_FIELDS"),
		Usage:   "Docstring fields to turn into test attributes (eg. 'tags,env')",
	}
	EscapeCompatFlag = &cli.StringFlag{
		Name:    "escape-compat",
		Value:   string(EscapeCompatAuto),
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "ESCAPE_COMPAT"),
		Usage:   "Parameter id decoding: 'single', 'double' for ids of old pytest versions, or 'auto' to decide by Python version",
		Action: func(_ *cli.Context, v string) error {
			return validateEscapeCompat(v)
		},
	}
	MetricsTextfile = &cli.StringFlag{
		Name:    "metrics-textfile",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "METRICS_TEXTFILE"),
		Usage:   "Write metrics in Prometheus text format to this file on exit",
	}
	LogDir = &cli.StringFlag{
		Name:    "log-dir",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LOG_DIR"),
		Usage:   "Write per test case log files under this directory. Empty disables them",
	}
	HealthzAddr = &cli.StringFlag{
		Name:    "healthz-addr",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HEALTHZ_ADDR"),
		Usage:   "Serve /healthz on this address while running (eg. '0.0.0.0:8080'). Empty disables it",
	}
	MetricsAddr = &cli.StringFlag{
		Name:    "metrics-addr",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "METRICS_ADDR"),
		Usage:   "Serve /metrics on this address while running (eg. '0.0.0.0:7300'). Empty disables it",
	}
	ExtraArgs = &cli.StringFlag{
		Name:    "extra-args",
		Value:   "",
		EnvVars: []string{ExtraArgsEnvVar},
		Usage:   "Additional pytest arguments for run, quoted with shell rules",
	}
	Timeout = &cli.IntFlag{
		Name:    "timeout",
		Value:   0,
		EnvVars: []string{TimeoutEnvVar},
		Usage:   "Per test timeout in seconds passed to pytest-timeout. 0 disables it",
	}
	EnableAllure = &cli.StringFlag{
		Name:    "enable-allure",
		Value:   "",
		EnvVars: []string{EnableAllureEnvVar},
		Usage:   "Any non-empty value replaces phase steps with allure steps",
	}
	EnableCoverage = &cli.StringFlag{
		Name:    "enable-coverage",
		Value:   "",
		EnvVars: []string{EnableCoverageEnvVar},
		Usage:   "'1' or 'true' collects coverage with pytest-cov",
	}
	CoverageSourceList = &cli.StringFlag{
		Name:    "coverage-sources",
		Value:   "",
		EnvVars: []string{CoverageSourceListEnvVar},
		Usage:   "Packages to measure separated by ';'. Defaults to the project's top-level packages",
	}
)

var requiredFlags = []cli.Flag{
	Action,
}

var optionalFlags = []cli.Flag{
	ProjPath,
	TestCases,
	IPCFd,
	IPCFile,
	FileReportPath,
	EntryFile,
	Python,
	CommentFields,
	EscapeCompatFlag,
	MetricsTextfile,
	LogDir,
	HealthzAddr,
	MetricsAddr,
	ExtraArgs,
	Timeout,
	EnableAllure,
	EnableCoverage,
	CoverageSourceList,
}

// legacyEnvFlags use a fixed env var instead of the prefixed one
var legacyEnvFlags = map[string]string{
	ExtraArgs.Name:          ExtraArgsEnvVar,
	Timeout.Name:            TimeoutEnvVar,
	EnableAllure.Name:       EnableAllureEnvVar,
	EnableCoverage.Name:     EnableCoverageEnvVar,
	CoverageSourceList.Name: CoverageSourceListEnvVar,
}

var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)

	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	if !ctx.IsSet(ProjPath.Name) && !ctx.IsSet(EntryFile.Name) {
		return fmt.Errorf("one of --%s or --%s is required", ProjPath.Name, EntryFile.Name)
	}
	return nil
}
