package runner

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/opentestsolar/testtool-pytest/selector"
	"github.com/opentestsolar/testtool-pytest/types"
)

// FilterSelectors splits selectors into those whose file exists under
// projPath and load errors for the others
func FilterSelectors(projPath string, selectors []string) ([]string, []types.LoadError) {
	var valid []string
	var invalid []types.LoadError
	for _, sel := range selectors {
		path := selector.FilePath(sel)
		if _, err := os.Stat(filepath.Join(projPath, path)); err != nil {
			invalid = append(invalid, types.LoadError{
				Name:    sel,
				Message: fmt.Sprintf("%s does not exist, skipping it", path),
			})
			continue
		}
		valid = append(valid, sel)
	}
	return valid, invalid
}

// relativeTo makes path relative to projPath when it is absolute, with
// forward slashes
func relativeTo(projPath, path string) string {
	if filepath.IsAbs(path) {
		if rel, err := filepath.Rel(projPath, path); err == nil {
			path = rel
		}
	}
	return filepath.ToSlash(path)
}
