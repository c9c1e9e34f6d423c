package runner

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/opentestsolar/testtool-pytest/selector"
	"github.com/opentestsolar/testtool-pytest/types"
)

// RunOptions are the feature toggles of a run
type RunOptions struct {
	ExtraArgs       []string
	TimeoutSeconds  int
	EnableAllure    bool
	EnableCoverage  bool
	CoverageSources []string
}

// convertSelectors turns selectors into pytest targets under projPath. A
// selector that cannot be converted becomes a load error on its own.
func convertSelectors(conv *selector.Converter, projPath string, selectors []string) ([]string, []types.LoadError) {
	var targets []string
	var failed []types.LoadError
	for _, sel := range selectors {
		host, err := conv.ToHostFormat(sel)
		if err != nil {
			failed = append(failed, types.LoadError{Name: sel, Message: err.Error()})
			continue
		}
		targets = append(targets, targetPath(projPath, host))
	}
	return targets, failed
}

// targetPath prefixes a node id with the project dir. filepath.Join is not
// used since cleaning could rewrite a parameter token.
func targetPath(projPath, nodeID string) string {
	return strings.TrimRight(projPath, string(os.PathSeparator)) + string(os.PathSeparator) + nodeID
}

func collectArgs(projPath string, targets []string) []string {
	args := []string{
		RootDirFlag + "=" + projPath,
		CollectOnlyFlag,
		ContinueOnCollectionErrorsFlag,
		VerboseFlag,
	}
	return append(args, targets...)
}

func runArgs(projPath string, opts RunOptions, coverageSources []string, targets []string) []string {
	args := []string{
		RootDirFlag + "=" + projPath,
		ContinueOnCollectionErrorsFlag,
		VerboseFlag,
	}
	if opts.EnableAllure {
		args = append(args, AllureDirFlag+"="+filepath.Join(projPath, AllureResultsDir))
	}
	if opts.EnableCoverage {
		for _, src := range coverageSources {
			args = append(args, CovFlag+"="+src)
		}
		args = append(args,
			CovContextFlag,
			CovReportFlag+"=xml:"+filepath.Join(projPath, CoverageDir, CoverageFile),
		)
	}
	args = append(args, opts.ExtraArgs...)
	if opts.TimeoutSeconds > 0 {
		args = append(args, TimeoutFlag+"="+strconv.Itoa(opts.TimeoutSeconds))
	}
	return append(args, targets...)
}
