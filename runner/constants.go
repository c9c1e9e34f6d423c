package runner

import "time"

// pytest invocation constants
const (
	// DefaultPython is the interpreter used when none is configured
	DefaultPython = "python3"

	// HookFDEnv names the env var telling the plugin which fd to write to
	HookFDEnv = "TESTSOLAR_HOOK_FD"

	// hookFD is the child's fd number of the first entry in ExtraFiles
	hookFD = 3

	RootDirFlag                    = "--rootdir"
	CollectOnlyFlag                = "--collect-only"
	ContinueOnCollectionErrorsFlag = "--continue-on-collection-errors"
	VerboseFlag                    = "-v"
	TimeoutFlag                    = "--timeout"
	AllureDirFlag                  = "--alluredir"
	CovFlag                        = "--cov"
	CovContextFlag                 = "--cov-context=test"
	CovReportFlag                  = "--cov-report"

	// AllureResultsDir is created under the project for allure-pytest output
	AllureResultsDir = "allure_results"

	// CoverageDir and CoverageFile locate the pytest-cov xml report
	CoverageDir  = "testsolar_coverage"
	CoverageFile = "coverage.xml"

	// cancelWaitDelay bounds how long a terminated pytest may take to exit
	cancelWaitDelay = 10 * time.Second

	// outputTailBytes of pytest output are kept for error messages
	outputTailBytes = 64 * 1024
)

// pytest exit codes, see _pytest.config.ExitCode
const (
	ExitOK                = 0
	ExitTestsFailed       = 1
	ExitInterrupted       = 2
	ExitInternalError     = 3
	ExitUsageError        = 4
	ExitNoTestsCollected  = 5
	unknownExitCodeResult = -1
)
