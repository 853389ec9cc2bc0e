// Package process abstracts starting, supervising and stopping OS processes.
// The Executor interface is the seam components use so tests can substitute a
// fake executor and observe lifecycle events without spawning real processes.
package process

import (
	"context"
	"os/exec"
	"time"
)

// Pid identifies an OS process.
type Pid int32

const (
	// A valid exit code of a process is a non-negative number. UnknownExitCode
	// indicates the exit code has not been (or could not be) obtained.
	UnknownExitCode int32 = -1

	// UnknownPid is used when a process was never started or failed to start.
	UnknownPid Pid = -1
)

// Executor starts and stops processes.
type Executor interface {
	// StartProcess starts the process described by the command instance.
	// The process lifetime is tied to the passed context: when the context is
	// cancelled the process is terminated.
	//
	// Returns the PID and the process start time. The start time is part of
	// the process identity; PIDs get recycled by the OS, so (pid, startTime)
	// together name one process instance. The exit handler is invoked exactly
	// once, when the process exits.
	StartProcess(ctx context.Context, cmd *exec.Cmd, exitHandler ExitHandler) (Pid, time.Time, error)

	// StopProcess terminates the process with the given identity.
	// It is a no-op if the process has already exited or if the PID has been
	// recycled by a different process.
	StopProcess(pid Pid, startTime time.Time) error
}

// ExitHandler receives the process exit notification.
// If err is nil the exit code was captured and exitCode is valid; otherwise
// there was a problem tracking the process and exitCode must be ignored.
type ExitHandler interface {
	OnProcessExited(pid Pid, exitCode int32, err error)
}

// ExitHandlerFunc makes it easy to supply a function as an exit handler.
type ExitHandlerFunc func(Pid, int32, error)

func (f ExitHandlerFunc) OnProcessExited(pid Pid, exitCode int32, err error) {
	f(pid, exitCode, err)
}

// ExitInfo is the exit notification delivered by ChannelExitHandler.
type ExitInfo struct {
	Pid      Pid
	ExitCode int32
	Err      error
}

// NewChannelExitHandler returns an exit handler that delivers the exit
// notification to the passed channel. The channel should be buffered
// (capacity 1) so the notification never blocks the executor.
func NewChannelExitHandler(ch chan<- ExitInfo) ExitHandler {
	return ExitHandlerFunc(func(pid Pid, exitCode int32, err error) {
		ch <- ExitInfo{Pid: pid, ExitCode: exitCode, Err: err}
	})
}
