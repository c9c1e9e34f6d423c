package runner

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	"golang.org/x/mod/semver"
)

var pythonVersionRegex = regexp.MustCompile(`(\d+)\.(\d+)(?:\.(\d+))?`)

// doubleDecodeBelow is the first Python version whose pytest escapes
// parametrize ids only once
const doubleDecodeBelow = "v3.0.0"

// PythonVersion runs "<python> --version" and returns the version in semver
// form, e.g. "v3.11.4"
func PythonVersion(ctx context.Context, python string) (string, error) {
	out, err := exec.CommandContext(ctx, python, "--version").CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("failed to run %s --version: %w", python, err)
	}
	return parsePythonVersion(string(out))
}

func parsePythonVersion(out string) (string, error) {
	m := pythonVersionRegex.FindStringSubmatch(out)
	if m == nil {
		return "", fmt.Errorf("no version in %q", strings.TrimSpace(out))
	}
	patch := m[3]
	if patch == "" {
		patch = "0"
	}
	v := fmt.Sprintf("v%s.%s.%s", m[1], m[2], patch)
	if !semver.IsValid(v) {
		return "", fmt.Errorf("invalid version %q", v)
	}
	return v, nil
}

// NeedsDoubleDecode reports whether node ids from this Python version carry
// doubly escaped parameter ids
func NeedsDoubleDecode(version string) bool {
	return semver.IsValid(version) && semver.Compare(version, doubleDecodeBelow) < 0
}
