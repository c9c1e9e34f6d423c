package runner

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// HookModule is the module name pytest loads with -p
const HookModule = "testsolar_hook"

//go:embed plugin/testsolar_hook.py
var hookSource []byte

// installPlugin writes the hook module to a fresh temp dir and returns the
// dir with a cleanup func
func installPlugin() (string, func(), error) {
	dir, err := os.MkdirTemp("", "testsolar-pytest-plugin-*")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create plugin dir: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	if err := os.WriteFile(filepath.Join(dir, HookModule+".py"), hookSource, 0644); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to write plugin module: %w", err)
	}
	return dir, cleanup, nil
}

// withPythonPath returns env with dirs prepended to PYTHONPATH
func withPythonPath(env []string, dirs ...string) []string {
	const key = "PYTHONPATH="

	existing := ""
	out := make([]string, 0, len(env)+1)
	for _, kv := range env {
		if v, ok := strings.CutPrefix(kv, key); ok {
			existing = v
			continue
		}
		out = append(out, kv)
	}

	parts := append([]string{}, dirs...)
	if existing != "" {
		parts = append(parts, existing)
	}
	return append(out, key+strings.Join(parts, string(os.PathListSeparator)))
}
