package runner

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/opentestsolar/testtool-pytest/attributes"
	"github.com/opentestsolar/testtool-pytest/selector"
	"github.com/opentestsolar/testtool-pytest/types"
)

// defaultLoadErrorName keys collection errors pytest could not attribute to
// a file, such as a broken conftest at the root dir
const defaultLoadErrorName = "load error"

// CollectorConfig holds configuration for creating a Collector
type CollectorConfig struct {
	ProjectPath   string
	Executor      Executor
	Converter     *selector.Converter
	CommentFields []string
	Log           log.Logger
}

// Collector discovers the tests named by a list of selectors
type Collector struct {
	projPath      string
	executor      Executor
	conv          *selector.Converter
	commentFields []string
	log           log.Logger
	tracer        trace.Tracer
}

// NewCollector creates a new collector
func NewCollector(cfg CollectorConfig) (*Collector, error) {
	if cfg.ProjectPath == "" {
		return nil, fmt.Errorf("project path is required")
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if cfg.Converter == nil {
		cfg.Converter = selector.NewConverter(false)
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	return &Collector{
		projPath:      cfg.ProjectPath,
		executor:      cfg.Executor,
		conv:          cfg.Converter,
		commentFields: cfg.CommentFields,
		log:           cfg.Log,
		tracer:        otel.Tracer("collector"),
	}, nil
}

// collection accumulates the collect events of one pytest process
type collection struct {
	projPath string
	items    []*ItemInfo
	errors   map[string]string
	order    []string
}

func (c *collection) handle(ev *HookEvent) error {
	switch ev.Event {
	case EventCollectItem:
		if ev.Item != nil {
			c.items = append(c.items, ev.Item)
		}
	case EventCollectError:
		key := collectErrorName(ev, c.projPath)
		// the first report of a file carries the import error
		if _, ok := c.errors[key]; ok {
			return nil
		}
		c.errors[key] = ev.LongRepr
		c.order = append(c.order, key)
	}
	return nil
}

// Collect runs pytest in collect-only mode against the selectors. Invalid
// selectors and files that fail to import are reported as load errors; only
// a failure to run pytest at all is returned as an error.
func (c *Collector) Collect(ctx context.Context, selectors []string) (*types.LoadResult, error) {
	ctx, span := c.tracer.Start(ctx, "collect")
	defer span.End()

	valid, loadErrors := FilterSelectors(c.projPath, selectors)
	targets, convErrors := convertSelectors(c.conv, c.projPath, valid)
	loadErrors = append(loadErrors, convErrors...)

	result := &types.LoadResult{
		Tests:      []types.TestCase{},
		LoadErrors: loadErrors,
	}
	if len(targets) == 0 && len(selectors) > 0 {
		c.log.Warn("No valid selectors to collect", "selectors", len(selectors))
		sortLoadResult(result)
		return result, nil
	}

	c.log.Info("Collecting tests", "targets", targets)
	col := &collection{projPath: c.projPath, errors: make(map[string]string)}
	execResult, err := c.executor.Execute(ctx, collectArgs(c.projPath, targets), col.handle)
	if err != nil {
		if !IsHostError(err) {
			return nil, err
		}
		// pytest refused to start collecting, so every selector failed
		c.log.Error("pytest failed during collection", "err", err)
		failed := make(map[string]bool, len(convErrors))
		for _, le := range convErrors {
			failed[le.Name] = true
		}
		for _, sel := range valid {
			if !failed[sel] {
				result.LoadErrors = append(result.LoadErrors, types.LoadError{Name: sel, Message: err.Error()})
			}
		}
		if len(selectors) == 0 {
			result.LoadErrors = append(result.LoadErrors, types.LoadError{Name: defaultLoadErrorName, Message: err.Error()})
		}
	} else if execResult.ExitCode != ExitOK {
		c.log.Warn("pytest collection exited with non-zero code", "exit_code", execResult.ExitCode)
	}

	seen := make(map[string]bool, len(col.items))
	for _, item := range col.items {
		name := c.testName(item)
		if seen[name] {
			continue
		}
		seen[name] = true
		result.Tests = append(result.Tests, types.TestCase{
			Name:       name,
			Attributes: attributes.Parse(item, c.commentFields),
		})
	}
	for _, key := range col.order {
		result.LoadErrors = append(result.LoadErrors, types.LoadError{
			Name:    key,
			Message: col.errors[key],
		})
	}

	sortLoadResult(result)
	c.log.Info("Collected tests", "tests", len(result.Tests), "load_errors", len(result.LoadErrors))
	return result, nil
}

// testName derives the selector name of a collected item. Python function
// items are named from their file, classes and name; other items from their
// node id or, failing that, their location.
func (c *Collector) testName(item *ItemInfo) string {
	if item.Function && item.Path != "" {
		parts := append(append([]string{}, item.Classes...), item.Name)
		return c.relPath(item.Path) + "?" + c.conv.DecodeCaseName(strings.Join(parts, "/"))
	}
	if strings.Contains(item.NodeID, "::") {
		return c.conv.ToSelectorFormat(item.NodeID)
	}
	if file, domain, ok := item.LocationFile(); ok {
		return filepath.ToSlash(file) + "?" + strings.ReplaceAll(domain, ".", "/")
	}
	return item.NodeID
}

func (c *Collector) relPath(path string) string {
	return relativeTo(c.projPath, path)
}

func sortLoadResult(result *types.LoadResult) {
	sort.SliceStable(result.Tests, func(i, j int) bool {
		return result.Tests[i].Name < result.Tests[j].Name
	})
	sort.SliceStable(result.LoadErrors, func(i, j int) bool {
		return result.LoadErrors[i].Name < result.LoadErrors[j].Name
	})
}
