// Package lockfile provides cross-process file locks for single-instance
// operations, like the retention sweeper's run lock.
//
// Locks are advisory flock(2)-style locks: they are released automatically
// when the holding process exits, so a crashed holder never wedges the next
// run.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrLockBusy is returned when the lock is already held by another process.
var ErrLockBusy = errors.New("lock already held by another process")

// Lock is a held file lock. Release it when the guarded work is done.
type Lock struct {
	path string
	f    *os.File
}

// Acquire takes an exclusive non-blocking lock on path, creating the file and
// its parent directory as needed. The holder's pid is written into the file
// so a busy error can name the owner.
func Acquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644) // #nosec G304 - controlled path
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	if err := flockExclusive(f); err != nil {
		if errors.Is(err, ErrLockBusy) {
			owner := readOwner(f)
			_ = f.Close()
			if owner != "" {
				return nil, fmt.Errorf("%w (pid %s)", ErrLockBusy, owner)
			}
			return nil, ErrLockBusy
		}
		_ = f.Close()
		return nil, fmt.Errorf("failed to lock %s: %w", path, err)
	}

	_ = f.Truncate(0)
	_, _ = f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
	return &Lock{path: path, f: f}, nil
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	return l.path
}

// Release unlocks and closes the lock file. The file itself is left in place;
// the flock, not the file's existence, is what guards the critical section.
func (l *Lock) Release() error {
	if l.f == nil {
		return nil
	}
	unlockErr := flockUnlock(l.f)
	closeErr := l.f.Close()
	l.f = nil
	if unlockErr != nil {
		return fmt.Errorf("failed to unlock: %w", unlockErr)
	}
	return closeErr
}

// readOwner returns the pid recorded in the lock file, if any.
func readOwner(f *os.File) string {
	buf := make([]byte, 32)
	n, err := f.ReadAt(buf, 0)
	if n == 0 && err != nil {
		return ""
	}
	return strings.TrimSpace(string(buf[:n]))
}
