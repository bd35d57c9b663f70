package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// LockFilename is the instance lock inside the index parent directory.
const LockFilename = "docfetcher.lock"

// ErrLocked indicates another process holds the instance lock.
var ErrLocked = errors.New("index directory is in use by another process")

// InstanceLock keeps two processes from writing the same indexes. It uses
// flock(2), so the lock is released when the process exits.
type InstanceLock struct {
	path string
	file *os.File
}

// NewInstanceLock creates a lock for the index parent directory.
func NewInstanceLock(dir string) *InstanceLock {
	return &InstanceLock{path: filepath.Join(dir, LockFilename)}
}

// TryAcquire takes the lock without blocking. It returns ErrLocked if
// another process holds it.
func (l *InstanceLock) TryAcquire() error {
	if l.file != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = file.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) {
			return ErrLocked
		}
		return fmt.Errorf("flock failed: %w", err)
	}

	l.file = file
	return nil
}

// Release drops the lock. Releasing an unheld lock is a no-op.
func (l *InstanceLock) Release() error {
	if l.file == nil {
		return nil
	}
	err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil
	if err != nil {
		return fmt.Errorf("flock unlock failed: %w", err)
	}
	return closeErr
}
