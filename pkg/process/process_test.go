//go:build !windows

package process

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashpool37/dapbridge/pkg/logger"
)

func TestStartProcessReportsExit(t *testing.T) {
	executor := NewOSExecutor(logger.Discard())
	exitCh := make(chan ExitInfo, 1)

	cmd := exec.Command("true")
	pid, startTime, err := executor.StartProcess(context.Background(), cmd, NewChannelExitHandler(exitCh))
	require.NoError(t, err)
	assert.NotEqual(t, UnknownPid, pid)
	assert.False(t, startTime.IsZero())

	select {
	case info := <-exitCh:
		assert.Equal(t, pid, info.Pid)
		assert.Equal(t, int32(0), info.ExitCode)
		assert.NoError(t, info.Err)
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for exit notification")
	}
}

func TestStartProcessCapturesNonZeroExitCode(t *testing.T) {
	executor := NewOSExecutor(logger.Discard())
	exitCh := make(chan ExitInfo, 1)

	cmd := exec.Command("sh", "-c", "exit 3")
	_, _, err := executor.StartProcess(context.Background(), cmd, NewChannelExitHandler(exitCh))
	require.NoError(t, err)

	select {
	case info := <-exitCh:
		assert.Equal(t, int32(3), info.ExitCode)
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for exit notification")
	}
}

func TestContextCancellationKillsProcess(t *testing.T) {
	executor := NewOSExecutor(logger.Discard())
	exitCh := make(chan ExitInfo, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.Command("sleep", "300")
	pid, startTime, err := executor.StartProcess(ctx, cmd, NewChannelExitHandler(exitCh))
	require.NoError(t, err)

	cancel()

	select {
	case <-exitCh:
	case <-time.After(10 * time.Second):
		t.Fatal("process did not exit after context cancellation")
	}

	running, err := IsRunning(pid, startTime)
	require.NoError(t, err)
	assert.False(t, running, "process should be dead after context cancellation")
}

func TestStopProcess(t *testing.T) {
	executor := NewOSExecutor(logger.Discard())
	exitCh := make(chan ExitInfo, 1)

	cmd := exec.Command("sleep", "300")
	pid, startTime, err := executor.StartProcess(context.Background(), cmd, NewChannelExitHandler(exitCh))
	require.NoError(t, err)

	require.NoError(t, executor.StopProcess(pid, startTime))

	select {
	case <-exitCh:
	case <-time.After(10 * time.Second):
		t.Fatal("process did not exit after StopProcess")
	}
}

func TestStopProcessIsNoopForExitedProcess(t *testing.T) {
	executor := NewOSExecutor(logger.Discard())
	exitCh := make(chan ExitInfo, 1)

	cmd := exec.Command("true")
	pid, startTime, err := executor.StartProcess(context.Background(), cmd, NewChannelExitHandler(exitCh))
	require.NoError(t, err)
	<-exitCh

	assert.NoError(t, executor.StopProcess(pid, startTime))
}

func TestStartProcessFailsForMissingExecutable(t *testing.T) {
	executor := NewOSExecutor(logger.Discard())

	cmd := exec.Command("/nonexistent/definitely-not-a-binary")
	pid, _, err := executor.StartProcess(context.Background(), cmd, nil)
	require.Error(t, err)
	assert.Equal(t, UnknownPid, pid)
}
