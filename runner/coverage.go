package runner

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// CoverageSources returns the packages measured by pytest-cov. An explicit
// override wins. Otherwise every top-level package of the project is used,
// except hidden dirs and the top dirs of the selected tests.
func CoverageSources(projPath string, override []string, selectors []string) ([]string, error) {
	var sources []string
	for _, s := range override {
		if s = strings.TrimSpace(s); s != "" {
			sources = append(sources, s)
		}
	}
	if len(sources) > 0 {
		return sources, nil
	}

	testDirs := make(map[string]bool, len(selectors))
	for _, sel := range selectors {
		top, _, _ := strings.Cut(sel, "/")
		testDirs[strings.TrimSpace(top)] = true
	}

	entries, err := os.ReadDir(projPath)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", projPath, err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() || strings.HasPrefix(name, ".") || testDirs[name] {
			continue
		}
		if _, err := os.Stat(filepath.Join(projPath, name, "__init__.py")); err != nil {
			continue
		}
		sources = append(sources, name)
	}
	sort.Strings(sources)
	return sources, nil
}

// prepareCleanDir creates dir, removing anything already in it
func prepareCleanDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to clear %s: %w", dir, err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return nil
}
