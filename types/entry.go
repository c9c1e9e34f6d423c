package types

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// EntryParam is the task description a controller may hand over as a file
// instead of individual flags. JSON files are accepted since JSON is YAML.
type EntryParam struct {
	TaskID         string            `yaml:"TaskId"`
	ProjectPath    string            `yaml:"ProjectPath"`
	TestSelectors  []string          `yaml:"TestSelectors"`
	FileReportPath string            `yaml:"FileReportPath"`
	Collectors     []string          `yaml:"Collectors"`
	Context        map[string]string `yaml:"Context"`
}

// LoadEntryParam reads an entry parameter file
func LoadEntryParam(path string) (*EntryParam, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read entry file %s: %w", path, err)
	}

	var entry EntryParam
	if err := yaml.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to parse entry file %s: %w", path, err)
	}
	return &entry, nil
}
