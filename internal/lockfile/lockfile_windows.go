//go:build windows

package lockfile

import (
	"math"
	"os"

	"golang.org/x/sys/windows"
)

func doLock(f *os.File) error {
	// Exclusive lock over the maximum possible byte range. Windows releases
	// the lock when the handle is closed, but asynchronously, so explicit and
	// timely unlocking is still preferred.
	var overlapped windows.Overlapped
	return windows.LockFileEx(
		windows.Handle(f.Fd()),
		windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY,
		0,              // reserved, must be zero
		math.MaxUint32, // number of bytes to lock, low-order DWORD
		math.MaxUint32, // number of bytes to lock, high-order DWORD
		&overlapped,
	)
}

func doUnlock(f *os.File) error {
	var overlapped windows.Overlapped
	return windows.UnlockFileEx(
		windows.Handle(f.Fd()),
		0,              // reserved, must be zero
		math.MaxUint32, // number of bytes to unlock, low-order DWORD
		math.MaxUint32, // number of bytes to unlock, high-order DWORD
		&overlapped,
	)
}

func isAlreadyLockedError(err error) bool {
	return err == windows.ERROR_LOCK_VIOLATION
}
