package process

import (
	"context"
	"errors"
	"math"
	"os/exec"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/tklauser/ps"
)

type waitResult struct {
	exitCode int32
	err      error
}

type supervisedProcess struct {
	cmd       *exec.Cmd
	startTime time.Time
	resultCh  chan waitResult // closed after the result is published
	result    waitResult
}

// OSExecutor is the production Executor. Each started process gets a
// supervising goroutine that waits for exit and a second goroutine that kills
// the process when the owning context is cancelled.
type OSExecutor struct {
	running map[Pid]*supervisedProcess
	mu      sync.Mutex
	log     logr.Logger
}

func NewOSExecutor(log logr.Logger) *OSExecutor {
	return &OSExecutor{
		running: make(map[Pid]*supervisedProcess),
		log:     log.WithName("os-executor"),
	}
}

func (e *OSExecutor) StartProcess(ctx context.Context, cmd *exec.Cmd, exitHandler ExitHandler) (Pid, time.Time, error) {
	if err := cmd.Start(); err != nil {
		return UnknownPid, time.Time{}, err
	}

	osPid := cmd.Process.Pid
	if osPid < 0 || osPid > math.MaxInt32 {
		_ = cmd.Process.Kill()
		return UnknownPid, time.Time{}, errors.New("process ID out of range")
	}
	pid := Pid(osPid)

	startTime := time.Now()
	if psProcess, err := ps.FindProcess(osPid); err != nil {
		e.log.V(1).Info("could not read process creation time", "pid", osPid, "error", err)
	} else {
		// The OS-recorded creation timestamp is the authoritative identity value.
		startTime = psProcess.CreationTime()
	}

	sp := &supervisedProcess{
		cmd:       cmd,
		startTime: startTime,
		resultCh:  make(chan waitResult, 1),
	}

	e.mu.Lock()
	e.running[pid] = sp
	e.mu.Unlock()

	// Waiter: the single cmd.Wait call for this process.
	go func() {
		waitErr := cmd.Wait()
		exitCode, execErr := exitResult(waitErr, cmd)

		e.mu.Lock()
		sp.result = waitResult{exitCode: exitCode, err: execErr}
		delete(e.running, pid)
		e.mu.Unlock()

		sp.resultCh <- sp.result
		close(sp.resultCh)
	}()

	// Supervisor: delivers the exit notification and enforces kill-on-cancel.
	go func() {
		var ctxErr error

		select {
		case wr, ok := <-sp.resultCh:
			if !ok {
				wr = sp.result
			}
			e.notify(exitHandler, pid, wr, nil)
			return
		case <-ctx.Done():
			ctxErr = ctx.Err()
		}

		stopErr := e.StopProcess(pid, startTime)
		if stopErr != nil {
			e.log.V(1).Info("could not stop process on context cancellation", "pid", pid, "error", stopErr)
		}

		wr, ok := <-sp.resultCh
		if !ok {
			wr = sp.result
		}
		e.notify(exitHandler, pid, wr, errors.Join(stopErr, ctxErr))
	}()

	return pid, startTime, nil
}

func (e *OSExecutor) notify(handler ExitHandler, pid Pid, wr waitResult, supervisionErr error) {
	if handler == nil {
		return
	}
	handler.OnProcessExited(pid, wr.exitCode, errors.Join(wr.err, supervisionErr))
}

func (e *OSExecutor) StopProcess(pid Pid, startTime time.Time) error {
	e.mu.Lock()
	sp, tracked := e.running[pid]
	e.mu.Unlock()

	if tracked {
		return killProcess(sp.cmd)
	}

	// Not one of ours (or already reaped). Verify identity before signalling
	// anything, so a recycled PID is never killed by mistake.
	running, err := IsRunning(pid, startTime)
	if err != nil {
		return err
	}
	if !running {
		return nil
	}
	return killByPid(pid)
}

// exitResult extracts the exit code and execution error from a cmd.Wait result.
func exitResult(waitErr error, cmd *exec.Cmd) (int32, error) {
	var ee *exec.ExitError
	switch {
	case waitErr == nil:
		return int32(cmd.ProcessState.ExitCode()), nil
	case errors.As(waitErr, &ee):
		return int32(ee.ExitCode()), nil
	default:
		return UnknownExitCode, waitErr
	}
}

var _ Executor = (*OSExecutor)(nil)
