package metrics

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/opentestsolar/testtool-pytest/types"
)

const (
	MetricsNamespace = "testtool_pytest"
)

var (
	Debug                bool = true
	validResults              = []types.ResultType{types.ResultTypeRunning, types.ResultTypeSucceed, types.ResultTypeFailed, types.ResultTypeIgnored, types.ResultTypeLoadFailed, types.ResultTypeUnknown}
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	// Registry holds every metric of the adapter. It is kept apart from the
	// default registry so a textfile export only carries adapter metrics.
	Registry = prometheus.NewRegistry()
	factory  = promauto.With(Registry)

	errorsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	caseResultsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "case_results_total",
		Help:      "Count of reported test case results by result type",
	}, []string{
		"run_id",
		"result",
	})

	collectedTestsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "collected_tests_total",
		Help:      "Number of tests found by collection",
	}, []string{
		"run_id",
	})

	loadErrorsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "load_errors_total",
		Help:      "Number of load errors found by collection",
	}, []string{
		"run_id",
	})

	framesSentTotal = factory.NewCounter(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "frames_sent_total",
		Help:      "Number of framed messages written to the report channel",
	})

	frameBytesTotal = factory.NewCounter(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "frame_bytes_total",
		Help:      "Bytes written to the report channel, length prefixes included",
	})

	lifecycleInconsistenciesTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "lifecycle_inconsistencies_total",
		Help:      "Phase reports or finishes dropped because the test was not running",
	}, []string{
		"event",
	})

	testDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Name:      "test_duration_seconds",
		Help:      "Duration of finished test cases",
		Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 300, 900},
	}, []string{
		"result",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

// RecordCaseResult counts one reported result. Terminal results with a known
// duration also feed the duration histogram.
func RecordCaseResult(runID string, result types.ResultType, duration time.Duration) {
	if !isValidResult(result) {
		log.Error("RecordCaseResult - invalid result", "result", result)
		return
	}
	if Debug {
		log.Debug("metric inc",
			"m", "case_results_total",
			"run_id", runID,
			"result", result)
	}
	caseResultsTotal.WithLabelValues(runID, string(result)).Inc()
	if result.IsTerminal() && duration > 0 {
		testDuration.WithLabelValues(string(result)).Observe(duration.Seconds())
	}
}

func RecordLoadResult(runID string, tests int, loadErrors int) {
	collectedTestsTotal.WithLabelValues(runID).Add(float64(tests))
	loadErrorsTotal.WithLabelValues(runID).Add(float64(loadErrors))
}

func RecordFrame(size int) {
	framesSentTotal.Inc()
	frameBytesTotal.Add(float64(size))
}

func RecordLifecycleInconsistency(event string) {
	lifecycleInconsistenciesTotal.WithLabelValues(event).Inc()
}

// WriteTextfile writes the registry in the node exporter textfile format
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, Registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}

func isValidResult(result types.ResultType) bool {
	return slices.Contains(validResults, result)
}
