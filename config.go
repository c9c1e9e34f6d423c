package pytestx

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/shlex"
	"github.com/urfave/cli/v2"

	"github.com/opentestsolar/testtool-pytest/flags"
	"github.com/opentestsolar/testtool-pytest/runner"
	"github.com/opentestsolar/testtool-pytest/types"
)

// coverageSourceSeparator splits TESTSOLAR_TTP_COVERAGESOURCELIST
const coverageSourceSeparator = ";"

// Config holds the application configuration
type Config struct {
	Action          flags.ActionType
	ProjectPath     string
	Selectors       []string
	TaskID          string
	IPCFd           int    // Result channel fd, -1 when unset
	IPCFile         string // Result channel path, used when IPCFd is unset
	FileReportPath  string
	Python          string
	CommentFields   []string
	EscapeCompat    flags.EscapeCompat
	MetricsTextfile string
	LogDir          string
	HealthzAddr     string
	MetricsAddr     string
	Run             runner.RunOptions
	Log             log.Logger
}

// NewConfig creates a new Config from cli context. Values of the entry file
// fill in what the flags leave unset.
func NewConfig(ctx *cli.Context, log log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	entry := &types.EntryParam{}
	if path := ctx.String(flags.EntryFile.Name); path != "" {
		var err error
		if entry, err = types.LoadEntryParam(path); err != nil {
			return nil, err
		}
	}

	projPath := ctx.String(flags.ProjPath.Name)
	if projPath == "" {
		projPath = entry.ProjectPath
	}
	if projPath == "" {
		return nil, errors.New("project path is required")
	}
	absProjPath, err := filepath.Abs(projPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for project '%s': %w", projPath, err)
	}
	if info, err := os.Stat(absProjPath); err != nil {
		return nil, fmt.Errorf("project path %s does not exist: %w", absProjPath, err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("project path %s is not a directory", absProjPath)
	}

	selectors := entry.TestSelectors
	if ctx.IsSet(flags.TestCases.Name) {
		if selectors, err = shlex.Split(ctx.String(flags.TestCases.Name)); err != nil {
			return nil, fmt.Errorf("failed to split testcases: %w", err)
		}
	}

	fileReportPath := ctx.String(flags.FileReportPath.Name)
	if fileReportPath == "" {
		fileReportPath = entry.FileReportPath
	}

	// feature toggles may also come from the entry context
	toggle := func(f *cli.StringFlag, envVar string) string {
		if ctx.IsSet(f.Name) {
			return ctx.String(f.Name)
		}
		return entry.Context[envVar]
	}

	extraArgs, err := shlex.Split(toggle(flags.ExtraArgs, flags.ExtraArgsEnvVar))
	if err != nil {
		return nil, fmt.Errorf("failed to split extra args: %w", err)
	}

	timeout := ctx.Int(flags.Timeout.Name)
	if v, ok := entry.Context[flags.TimeoutEnvVar]; ok && !ctx.IsSet(flags.Timeout.Name) {
		if timeout, err = strconv.Atoi(strings.TrimSpace(v)); err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", flags.TimeoutEnvVar, v, err)
		}
	}
	if timeout < 0 {
		return nil, fmt.Errorf("timeout cannot be negative, got %d", timeout)
	}

	coverage := toggle(flags.EnableCoverage, flags.EnableCoverageEnvVar)
	var coverageSources []string
	if list := toggle(flags.CoverageSourceList, flags.CoverageSourceListEnvVar); list != "" {
		coverageSources = strings.Split(list, coverageSourceSeparator)
	}

	ipcFd := ctx.Int(flags.IPCFd.Name)
	ipcFile := ctx.String(flags.IPCFile.Name)
	if ipcFd < 0 && ipcFile == "" && fileReportPath == "" {
		return nil, fmt.Errorf("no result channel: set --%s, --%s or --%s",
			flags.IPCFd.Name, flags.IPCFile.Name, flags.FileReportPath.Name)
	}

	return &Config{
		Action:          flags.ActionType(ctx.String(flags.Action.Name)),
		ProjectPath:     absProjPath,
		Selectors:       selectors,
		TaskID:          entry.TaskID,
		IPCFd:           ipcFd,
		IPCFile:         ipcFile,
		FileReportPath:  fileReportPath,
		Python:          ctx.String(flags.Python.Name),
		CommentFields:   ctx.StringSlice(flags.CommentFields.Name),
		EscapeCompat:    flags.EscapeCompat(ctx.String(flags.EscapeCompatFlag.Name)),
		MetricsTextfile: ctx.String(flags.MetricsTextfile.Name),
		LogDir:          ctx.String(flags.LogDir.Name),
		HealthzAddr:     ctx.String(flags.HealthzAddr.Name),
		MetricsAddr:     ctx.String(flags.MetricsAddr.Name),
		Run: runner.RunOptions{
			ExtraArgs:       extraArgs,
			TimeoutSeconds:  timeout,
			EnableAllure:    toggle(flags.EnableAllure, flags.EnableAllureEnvVar) != "",
			EnableCoverage:  coverage == "1" || coverage == "true",
			CoverageSources: coverageSources,
		},
		Log: log,
	}, nil
}
