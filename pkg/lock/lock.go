// Package lock enforces single-instance execution per data directory.
//
// The daemon holds an exclusive advisory lock on a file inside the data
// directory for its entire run. A second daemon pointed at the same
// directory fails fast at startup instead of corrupting shared state.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gofrs/flock"
)

// LockFileName is the fixed name of the lock file inside the data directory.
const LockFileName = "driftfs.lock"

// ErrAlreadyRunning is returned by Acquire when another process already
// holds the lock on the same data directory.
var ErrAlreadyRunning = errors.New("another driftfs daemon is already running against this data directory")

// Lock is a held single-instance lock. It stays valid until Release is
// called; releasing it is the final teardown action of the daemon so that
// no second instance can start while mounts or stores are still live.
type Lock struct {
	path string
	fl   *flock.Flock
}

// Acquire takes a non-blocking exclusive lock on the lock file under
// dataDir, creating the file if needed. It returns ErrAlreadyRunning when
// the lock is held by another process, or a wrapped IO error for any other
// filesystem failure. On success the holder's PID is recorded in the file
// for diagnostics; the PID is informational only, the flock is the source
// of truth.
func Acquire(dataDir string) (*Lock, error) {
	path := filepath.Join(dataDir, LockFileName)

	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", path, err)
	}
	if !ok {
		return nil, ErrAlreadyRunning
	}

	// Best effort: a stale write here never invalidates the flock itself.
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644); err != nil {
		_ = fl.Unlock()
		return nil, fmt.Errorf("failed to write pid to %s: %w", path, err)
	}

	return &Lock{path: path, fl: fl}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Release drops the lock. It is safe to call more than once; subsequent
// calls are no-ops.
func (l *Lock) Release() error {
	if l.fl == nil {
		return nil
	}
	err := l.fl.Unlock()
	l.fl = nil
	if err != nil {
		return fmt.Errorf("failed to release %s: %w", l.path, err)
	}
	return nil
}
