//go:build unix

package runner

import (
	"os/exec"
	"syscall"
)

// setProcessGroup puts cmd in its own process group so a cancelled build
// takes make's children down too.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
