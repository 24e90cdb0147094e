//go:build !unix

package runner

import "os/exec"

// Only the direct child is killed on cancel.
func setProcessGroup(cmd *exec.Cmd) {}
