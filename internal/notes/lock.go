package notes

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	lockTimeout   = 5 * time.Second
	lockRetryWait = 500 * time.Millisecond
)

// lockPath is the inter-process lock guarding rebuilds of the index at dir
func lockPath(dir string) string {
	return dir + ".lock"
}

// fileLock is a PID file. A lock whose process is gone is stale and gets
// cleaned on the next acquire.
type fileLock struct {
	path    string
	timeout time.Duration
	logger  *zap.Logger
}

func newFileLock(dir string, logger *zap.Logger) *fileLock {
	return &fileLock{path: lockPath(dir), timeout: lockTimeout, logger: logger}
}

// cleanStale removes the lock file if the owning process is dead
func (l *fileLock) cleanStale() error {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read lock file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		l.logger.Warn("removing corrupted index lock", zap.String("path", l.path))
		return os.Remove(l.path)
	}
	if isProcessRunning(pid) {
		return fmt.Errorf("lock held by running process %d", pid)
	}

	l.logger.Info("removing stale index lock", zap.Int("pid", pid))
	return os.Remove(l.path)
}

// acquire waits up to the lock timeout for the lock
func (l *fileLock) acquire() error {
	ours := os.Getpid()
	if data, err := os.ReadFile(l.path); err == nil {
		if pid, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil && pid == ours {
			return nil
		}
	}

	start := time.Now()
	for {
		if err := l.cleanStale(); err != nil {
			elapsed := time.Since(start)
			if elapsed >= l.timeout {
				return fmt.Errorf("timeout waiting for index lock after %v: %w", elapsed.Round(time.Millisecond), err)
			}
			l.logger.Debug("index locked by another process, waiting", zap.Duration("elapsed", elapsed))
			time.Sleep(lockRetryWait)
			continue
		}

		f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			// lost the race to another process
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to create lock file: %w", err)
		}
		_, werr := f.WriteString(strconv.Itoa(ours))
		if cerr := f.Close(); werr == nil {
			werr = cerr
		}
		if werr != nil {
			os.Remove(l.path)
			return fmt.Errorf("failed to write lock file: %w", werr)
		}
		return nil
	}
}

// release removes the lock if this process owns it
func (l *fileLock) release() error {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read lock file: %w", err)
	}

	if pid, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil && pid != os.Getpid() {
		l.logger.Warn("index lock belongs to another process, not removing", zap.Int("pid", pid))
		return nil
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}
