// Package lockfile provides advisory file locks used to serialize binary
// cache provisioning across processes. Locks are tied to an open file
// descriptor and released automatically if the owning process dies.
package lockfile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/ashpool37/dapbridge/pkg/osutil"
)

// Lockfile is a file that can be locked and unlocked.
// Lockfile is NOT goroutine-safe; callers serialize in-process access
// themselves (the locator holds a per-slot mutex before touching the file).
type Lockfile struct {
	path   string
	file   *os.File
	locked bool
}

const DefaultLockRetryInterval = 20 * time.Millisecond

var ErrNeedAbsPath = errors.New("lockfiles must be created using an absolute path")

// New creates a Lockfile instance for the given absolute path. The file is
// not created or locked yet.
func New(path string) (*Lockfile, error) {
	if len(path) == 0 || !filepath.IsAbs(path) {
		return nil, ErrNeedAbsPath
	}
	return &Lockfile{path: path}, nil
}

func (l *Lockfile) Path() string {
	return l.path
}

func (l *Lockfile) Locked() bool {
	return l.locked
}

// Lock acquires the lock, polling until it succeeds or the context is done.
func (l *Lockfile) Lock(ctx context.Context, retryInterval time.Duration) error {
	if l.locked {
		return nil
	}
	if retryInterval <= 0 {
		retryInterval = DefaultLockRetryInterval
	}

	ticker := time.NewTicker(retryInterval)
	defer ticker.Stop()

	for {
		acquired, err := l.tryLockOnce()
		if err != nil {
			return err
		}
		if acquired {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (l *Lockfile) tryLockOnce() (bool, error) {
	if l.file == nil {
		file, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, osutil.PermissionOnlyOwnerReadWrite)
		if err != nil {
			return false, err
		}
		l.file = file
	}

	lockErr := doLock(l.file)
	if lockErr == nil {
		l.locked = true
		return true, nil
	}
	if isAlreadyLockedError(lockErr) {
		return false, nil
	}
	return false, lockErr
}

func (l *Lockfile) Unlock() error {
	if l.file == nil || !l.locked {
		return nil
	}
	// Clear the flag regardless of the unlock result so the lockfile is not
	// considered held after a failed unlock.
	l.locked = false
	return doUnlock(l.file)
}

func (l *Lockfile) Close() error {
	unlockErr := l.Unlock()
	if l.file != nil {
		closeErr := l.file.Close()
		l.file = nil
		return errors.Join(unlockErr, closeErr)
	}
	return unlockErr
}
