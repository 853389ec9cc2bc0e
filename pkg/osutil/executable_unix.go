//go:build !windows

package osutil

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// IsExecutable reports whether path refers to a regular file the current
// process is allowed to execute.
func IsExecutable(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	if !info.Mode().IsRegular() {
		return false, fmt.Errorf("%s is not a regular file", path)
	}

	if err := unix.Access(path, unix.X_OK); err != nil {
		return false, nil
	}
	return true, nil
}

// MarkExecutable sets the executable bits on the file at path, preserving the
// read/write bits already present.
func MarkExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	return os.Chmod(path, info.Mode().Perm()|0111)
}
