//go:build !windows

package supervisor

import (
	"bytes"
	"os"
	"strconv"
	"syscall"
)

// pidAlive probes pid with signal 0. Any error, including EPERM, counts as
// not alive, and so does a zombie.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	if err := syscall.Kill(pid, 0); err != nil {
		return false
	}
	return !isZombie(pid)
}

func isZombie(pid int) bool {
	b, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/status")
	if err != nil {
		return false
	}
	return bytes.Contains(b, []byte("State:\tZ"))
}

func sendTerminate(pid int) error { return syscall.Kill(pid, syscall.SIGTERM) }

func sendKill(pid int) error { return syscall.Kill(pid, syscall.SIGKILL) }
