//go:build !windows

package verify

import (
	"os/exec"
	"syscall"
)

// terminateOnCancel runs the command in its own process group and makes context cancellation send
// SIGTERM to the whole group, so test runners spawned by the command stop too.
func terminateOnCancel(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
	}
}
