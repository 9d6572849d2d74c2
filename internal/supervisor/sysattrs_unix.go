//go:build !windows

package supervisor

import "syscall"

// stageAttrs puts the intermediate stage in a new session so it has no
// controlling terminal.
func stageAttrs() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}

func setStageUmask() { syscall.Umask(0o022) }
