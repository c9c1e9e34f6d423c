package reporting

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/opentestsolar/testtool-pytest/types"
)

// LoadResultFile is the file name used for the load result in file mode
const LoadResultFile = "result.json"

// FileReporter writes every message as its own JSON file under a directory.
// Case results get random file names, so a directory can be shared by
// several runs.
type FileReporter struct {
	mu  sync.Mutex
	dir string
}

// NewFileReporter creates dir if needed
func NewFileReporter(dir string) (*FileReporter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create report directory %s: %w", dir, err)
	}
	return &FileReporter{dir: dir}, nil
}

func (r *FileReporter) ReportLoadResult(result *types.LoadResult) error {
	return r.write(LoadResultFile, result)
}

func (r *FileReporter) ReportCaseResult(result *types.TestResult) error {
	return r.write(uuid.NewString()+".json", result)
}

func (r *FileReporter) write(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	path := filepath.Join(r.dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report file %s: %w", path, err)
	}
	return nil
}

func (r *FileReporter) Close() error {
	return nil
}
