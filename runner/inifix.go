package runner

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/ini.v1"
)

const (
	pytestIniFile       = "pytest.ini"
	pytestIniBackupFile = "__pytest.ini.bak"
	pytestIniSection    = "pytest"
	addoptsKey          = "addopts"
)

var (
	iniSectionRegex = regexp.MustCompile(`^\s*\[([^\]]+)\]\s*$`)
	addoptsRegex    = regexp.MustCompile(`^addopts\s*[=:]`)
)

// FixPytestIni removes the addopts option from <workDir>/pytest.ini, since
// pytest cannot honour --rootdir when the ini file adds options. The returned
// func puts the file back and must always be called.
func FixPytestIni(workDir string, logger log.Logger) (func() error, error) {
	noop := func() error { return nil }

	path := filepath.Join(workDir, pytestIniFile)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return noop, nil
	}
	if err != nil {
		return noop, fmt.Errorf("failed to read %s: %w", path, err)
	}

	cfg, err := ini.LoadSources(ini.LoadOptions{
		AllowPythonMultilineValues: true,
	}, data)
	if err != nil {
		logger.Warn("Cannot parse pytest.ini, leaving it alone", "path", path, "err", err)
		return noop, nil
	}
	section, err := cfg.GetSection(pytestIniSection)
	if err != nil || !section.HasKey(addoptsKey) {
		return noop, nil
	}
	logger.Info("Removing addopts from pytest.ini for this run", "addopts", section.Key(addoptsKey).String())

	backup := filepath.Join(workDir, pytestIniBackupFile)
	if err := os.WriteFile(backup, data, 0644); err != nil {
		return noop, fmt.Errorf("failed to back up %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(removeAddopts(string(data))), 0644); err != nil {
		_ = os.Remove(backup)
		return noop, fmt.Errorf("failed to rewrite %s: %w", path, err)
	}

	return func() error {
		if err := os.Rename(backup, path); err != nil {
			return fmt.Errorf("failed to restore %s: %w", path, err)
		}
		return nil
	}, nil
}

// removeAddopts drops the addopts option and its continuation lines from the
// [pytest] section. The rest of the file is kept byte for byte.
func removeAddopts(content string) string {
	lines := strings.SplitAfter(content, "\n")
	out := make([]string, 0, len(lines))

	section := ""
	skipping := false
	for _, line := range lines {
		trimmed := strings.TrimRight(line, "\r\n")
		if skipping {
			if trimmed != "" && (trimmed[0] == ' ' || trimmed[0] == '\t') {
				continue
			}
			skipping = false
		}
		if m := iniSectionRegex.FindStringSubmatch(trimmed); m != nil {
			section = strings.TrimSpace(m[1])
		} else if section == pytestIniSection && addoptsRegex.MatchString(trimmed) {
			skipping = true
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "")
}
