//go:build unix

package notes

import (
	"errors"
	"syscall"
)

// isProcessRunning sends signal 0, which checks for the process without
// touching it.
func isProcessRunning(pid int) bool {
	err := syscall.Kill(pid, syscall.Signal(0))
	if err == nil {
		return true
	}
	// EPERM: the process exists but belongs to someone else
	return errors.Is(err, syscall.EPERM)
}
