//go:build !windows

package session

import (
	"context"
	"fmt"
	"io"
	"net"
	"os/exec"
	"sync"
	"testing"
	"time"

	godap "github.com/google/go-dap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashpool37/dapbridge/internal/adapter"
	"github.com/ashpool37/dapbridge/internal/dap"
	"github.com/ashpool37/dapbridge/pkg/logger"
	"github.com/ashpool37/dapbridge/pkg/process"
)

// recordingExecutor remembers the identity of the last started process so
// tests can verify it is gone after a failed or closed launch.
type recordingExecutor struct {
	inner process.Executor

	mu        sync.Mutex
	pid       process.Pid
	startTime time.Time
}

func newRecordingExecutor() *recordingExecutor {
	return &recordingExecutor{inner: process.NewOSExecutor(logger.Discard())}
}

func (r *recordingExecutor) StartProcess(ctx context.Context, cmd *exec.Cmd, handler process.ExitHandler) (process.Pid, time.Time, error) {
	pid, startTime, err := r.inner.StartProcess(ctx, cmd, handler)
	r.mu.Lock()
	r.pid, r.startTime = pid, startTime
	r.mu.Unlock()
	return pid, startTime, err
}

func (r *recordingExecutor) StopProcess(pid process.Pid, startTime time.Time) error {
	return r.inner.StopProcess(pid, startTime)
}

func (r *recordingExecutor) lastProcess() (process.Pid, time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pid, r.startTime
}

func requireDead(t *testing.T, executor *recordingExecutor) {
	t.Helper()
	pid, startTime := executor.lastProcess()
	require.NotEqual(t, process.UnknownPid, pid)
	running, err := process.IsRunning(pid, startTime)
	require.NoError(t, err)
	assert.False(t, running, "adapter process must not outlive the launch")
}

func stdioAdapter(t *testing.T, binary string) *fakeAdapter {
	t.Helper()
	path, err := exec.LookPath(binary)
	require.NoError(t, err)
	return &fakeAdapter{
		desc: adapter.Descriptor{
			ID:        "fake",
			Name:      "Fake Debugger",
			Requests:  []adapter.RequestKind{adapter.RequestLaunch},
			Readiness: adapter.Readiness{Mode: adapter.CommsStdio},
		},
		bin:  adapter.ResolvedBinary{Path: path, Version: "1.2.3"},
		body: adapter.LaunchRequestBody(`{"program":"/tmp/app"}`),
	}
}

func newTestLauncher(t *testing.T, fake *fakeAdapter) (*Launcher, *recordingExecutor) {
	t.Helper()
	registry := adapter.NewRegistry()
	require.NoError(t, registry.Register(fake))
	executor := newRecordingExecutor()
	return NewLauncher(registry, executor, logger.Discard()), executor
}

func TestLaunchStdioSessionBecomesReady(t *testing.T) {
	fake := stdioAdapter(t, "cat")
	launcher, executor := newTestLauncher(t, fake)
	launcher.handshake = func(_ context.Context, _ dap.Transport, adapterID string) (*godap.Capabilities, error) {
		assert.Equal(t, "fake", adapterID)
		return &godap.Capabilities{SupportsConfigurationDoneRequest: true}, nil
	}

	rec := &stateRecorder{}
	sess, err := launcher.Launch(context.Background(), LaunchRequest{
		AdapterID:     "fake",
		OnStateChange: rec.observe,
	})
	require.NoError(t, err)

	assert.Equal(t, []State{StateResolving, StateTranslating, StateSpawning, StateAwaitingReady, StateReady}, rec.recorded())
	assert.Equal(t, adapter.ID("fake"), sess.AdapterID())
	assert.NotEqual(t, process.UnknownPid, sess.Pid())
	assert.Equal(t, "1.2.3", sess.BinaryVersion())
	assert.JSONEq(t, `{"program":"/tmp/app"}`, string(sess.LaunchBody()))
	require.NotNil(t, sess.Capabilities())
	assert.True(t, sess.Capabilities().SupportsConfigurationDoneRequest)
	assert.True(t, sess.Running())

	require.NoError(t, sess.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = sess.WaitExit(ctx)
	require.NoError(t, err)
	assert.False(t, sess.Running())
	requireDead(t, executor)
}

func TestLaunchCancelDuringAwaitingReady(t *testing.T) {
	fake := stdioAdapter(t, "cat")
	launcher, executor := newTestLauncher(t, fake)
	launcher.handshake = func(ctx context.Context, _ dap.Transport, _ string) (*godap.Capabilities, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	_, err := launcher.Launch(ctx, LaunchRequest{AdapterID: "fake"})
	require.Error(t, err)

	var failure *Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, FailureCanceled, failure.Kind)
	assert.Equal(t, StateAwaitingReady, failure.State)
	requireDead(t, executor)
}

func TestLaunchReadyTimeout(t *testing.T) {
	fake := stdioAdapter(t, "cat")
	fake.desc.Readiness.Timeout = 100 * time.Millisecond
	launcher, executor := newTestLauncher(t, fake)
	launcher.handshake = func(ctx context.Context, _ dap.Transport, _ string) (*godap.Capabilities, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	_, err := launcher.Launch(context.Background(), LaunchRequest{AdapterID: "fake"})
	require.Error(t, err)
	assert.ErrorIs(t, err, adapter.ErrReadyTimeout)

	var failure *Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, FailureReadyTimeout, failure.Kind)
	requireDead(t, executor)
}

func TestLaunchAdapterExitsBeforeReady(t *testing.T) {
	fake := stdioAdapter(t, "true")
	launcher, executor := newTestLauncher(t, fake)
	launcher.handshake = func(ctx context.Context, _ dap.Transport, _ string) (*godap.Capabilities, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	_, err := launcher.Launch(context.Background(), LaunchRequest{AdapterID: "fake"})
	require.Error(t, err)
	assert.ErrorIs(t, err, adapter.ErrSpawn)

	var failure *Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, FailureSpawn, failure.Kind)
	assert.Equal(t, StateAwaitingReady, failure.State)
	requireDead(t, executor)
}

func TestLaunchSpawnFailure(t *testing.T) {
	fake := &fakeAdapter{
		desc: adapter.Descriptor{ID: "fake", Readiness: adapter.Readiness{Mode: adapter.CommsStdio}},
		bin:  adapter.ResolvedBinary{Path: "/does/not/exist/fake-dbg"},
	}
	registry := adapter.NewRegistry()
	require.NoError(t, registry.Register(fake))
	launcher := NewLauncher(registry, newRecordingExecutor(), logger.Discard())

	rec := &stateRecorder{}
	_, err := launcher.Launch(context.Background(), LaunchRequest{
		AdapterID:     "fake",
		OnStateChange: rec.observe,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, adapter.ErrSpawn)
	assert.Equal(t, []State{StateResolving, StateTranslating, StateSpawning, StateFailed}, rec.recorded())
}

func TestDialWithRetry(t *testing.T) {
	t.Run("connects once the socket is listening", func(t *testing.T) {
		port, err := allocatePort()
		require.NoError(t, err)
		address := fmt.Sprintf("127.0.0.1:%d", port)

		go func() {
			time.Sleep(120 * time.Millisecond)
			lis, err := net.Listen("tcp", address)
			if err != nil {
				return
			}
			defer lis.Close()
			conn, err := lis.Accept()
			if err == nil {
				_ = conn.Close()
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		transport, err := dialWithRetry(ctx, address)
		require.NoError(t, err)
		require.NoError(t, transport.Close())
	})

	t.Run("gives up when the context expires", func(t *testing.T) {
		port, err := allocatePort()
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()

		_, err = dialWithRetry(ctx, fmt.Sprintf("127.0.0.1:%d", port))
		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestAwaitStdoutMarker(t *testing.T) {
	t.Run("marker found", func(t *testing.T) {
		r, w := io.Pipe()
		go func() {
			_, _ = io.WriteString(w, "starting up\n")
			_, _ = io.WriteString(w, "Debug server listening at 127.0.0.1:9229\n")
			_, _ = io.WriteString(w, "more output\n")
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err := awaitStdoutMarker(ctx, r, "Debug server listening", logger.Discard())
		require.NoError(t, err)
		_ = w.Close()
	})

	t.Run("context expires before marker", func(t *testing.T) {
		r, w := io.Pipe()
		defer w.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		err := awaitStdoutMarker(ctx, r, "never printed", logger.Discard())
		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestAcceptWithContext(t *testing.T) {
	t.Run("accepts the callback connection", func(t *testing.T) {
		lis, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		defer lis.Close()

		go func() {
			conn, err := net.Dial("tcp", lis.Addr().String())
			if err == nil {
				_ = conn.Close()
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		conn, err := acceptWithContext(ctx, lis)
		require.NoError(t, err)
		_ = conn.Close()
	})

	t.Run("honors cancellation", func(t *testing.T) {
		lis, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		defer lis.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		_, err = acceptWithContext(ctx, lis)
		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
