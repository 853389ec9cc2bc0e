package osutil

import (
	"fmt"
	"runtime"
)

const (
	ExeFileExtension = ".exe"
)

func IsWindows() bool {
	return runtime.GOOS == "windows"
}

// EnsureExeExtension appends the Windows executable extension to the passed
// path if the current OS requires it and the path does not already carry it.
func EnsureExeExtension(path string) string {
	if !IsWindows() {
		return path
	}
	if len(path) >= len(ExeFileExtension) && path[len(path)-len(ExeFileExtension):] == ExeFileExtension {
		return path
	}
	return path + ExeFileExtension
}

// PlatformKey returns the "<os>-<arch>" identifier for the current machine,
// e.g. "linux-amd64" or "darwin-arm64". Release artifact matrices are keyed by it.
func PlatformKey() string {
	return fmt.Sprintf("%s-%s", runtime.GOOS, runtime.GOARCH)
}
