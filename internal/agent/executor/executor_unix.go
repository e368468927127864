//go:build !windows

package executor

import (
	"os/exec"
	"syscall"
)

// setKillGroup starts the shell in its own process group and kills the
// whole group on timeout, so forked children die with the shell instead
// of running on past the deadline.
func setKillGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
