// Package exitcodes defines the exit codes of testtool-pytest.
package exitcodes

// Test outcomes never change the exit code: a run with failing tests still
// exits with Success once every result was delivered.
//
// * Success (0): the action finished and all results were delivered
// * RuntimeErr (2): bad configuration, or pytest could not run
// * ChannelErr (3): the result channel could not be written
const (
	Success    = 0
	RuntimeErr = 2
	ChannelErr = 3
)
