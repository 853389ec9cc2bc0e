//go:build windows

package osutil

import (
	"fmt"
	"os"
	"strings"
)

// IsExecutable reports whether path refers to a regular file Windows would
// execute. There are no execute permission bits on Windows; the check is
// extension based, matching what CreateProcess accepts.
func IsExecutable(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	if !info.Mode().IsRegular() {
		return false, fmt.Errorf("%s is not a regular file", path)
	}

	lower := strings.ToLower(path)
	for _, ext := range []string{".exe", ".cmd", ".bat", ".com"} {
		if strings.HasSuffix(lower, ext) {
			return true, nil
		}
	}
	return false, nil
}

// MarkExecutable is a no-op on Windows; executability is extension based.
func MarkExecutable(path string) error {
	_, err := os.Stat(path)
	return err
}
