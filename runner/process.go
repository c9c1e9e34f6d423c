package runner

import (
	"github.com/shirou/gopsutil/v3/process"
)

// terminateProcessTree sends SIGTERM to pid and all of its descendants,
// children first, so that pytest-xdist workers and subprocesses spawned by
// tests do not outlive a cancelled run.
func terminateProcessTree(pid int) error {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return err
	}
	terminateDescendants(proc)
	return proc.Terminate()
}

func terminateDescendants(proc *process.Process) {
	children, err := proc.Children()
	if err != nil {
		// no children, or the process already exited
		return
	}
	for _, child := range children {
		terminateDescendants(child)
		_ = child.Terminate()
	}
}
