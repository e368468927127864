//go:build windows

package executor

import "os/exec"

// setKillGroup keeps the default cancel behavior. Killing the shell is
// enough on Windows; the wait delay unblocks Run if a child holds the
// output pipes open.
func setKillGroup(_ *exec.Cmd) {}
