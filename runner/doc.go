// Package runner drives pytest for the collect and run actions.
//
// The main components are:
//   - Executor: starts pytest with the embedded hook plugin and streams the
//     plugin's JSON line events back from an extra file descriptor
//   - Collector: turns the collect events of a collect-only run into a LoadResult
//   - Aggregator: folds the setup, call and teardown reports of each test into
//     one TestResult and reports it when the test starts and when it finishes
//   - Runner: prepares a run (selector filtering, pytest.ini, allure and
//     coverage dirs) and feeds the events of one pytest process to an Aggregator
//
// Test outcomes are data, never errors. Errors returned by this package mean
// pytest could not run or results could not be delivered.
package runner
