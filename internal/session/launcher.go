package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"time"

	"github.com/go-logr/logr"
	godap "github.com/google/go-dap"

	"github.com/ashpool37/dapbridge/internal/adapter"
	"github.com/ashpool37/dapbridge/internal/dap"
	"github.com/ashpool37/dapbridge/pkg/process"
)

// LaunchRequest describes one debug session to start.
type LaunchRequest struct {
	AdapterID adapter.ID
	Task      adapter.TaskDefinition

	// Version constrains which adapter binary to use. The zero value means
	// latest.
	Version adapter.VersionSpec

	// Resolve carries binary resolution inputs (override path, cache root,
	// network policy).
	Resolve adapter.ResolveOptions

	// OnStateChange, when set, observes every state transition of this
	// launch, in order, from the launching goroutine.
	OnStateChange func(State)
}

// Launcher starts debug sessions. One Launcher serves any number of
// concurrent Launch calls.
type Launcher struct {
	registry *adapter.Registry
	executor process.Executor
	log      logr.Logger

	// handshake is the final readiness probe on an established transport.
	// A field so tests can substitute a fake adapter conversation.
	handshake func(ctx context.Context, transport dap.Transport, adapterID string) (*godap.Capabilities, error)
}

func NewLauncher(registry *adapter.Registry, executor process.Executor, log logr.Logger) *Launcher {
	return &Launcher{
		registry:  registry,
		executor:  executor,
		log:       log.WithName("launcher"),
		handshake: dap.InitializeHandshake,
	}
}

// Launch runs the full launch pipeline for the request. On success the
// returned Session is Ready: its process is running and its transport has
// completed the initialize round-trip. On failure the returned error is a
// *Failure and the adapter process, if one was spawned, has already been
// stopped.
//
// Cancelling the context aborts the launch; it does not affect a Session
// that was already returned.
func (l *Launcher) Launch(ctx context.Context, req LaunchRequest) (*Session, error) {
	report := func(s State) {
		if req.OnStateChange != nil {
			req.OnStateChange(s)
		}
	}
	fail := func(state State, err error) (*Session, error) {
		report(StateFailed)
		l.log.V(1).Info("launch failed", "adapter", req.AdapterID, "state", state, "error", err)
		return nil, &Failure{Kind: classify(err), State: state, Err: err}
	}

	report(StateResolving)
	impl, err := l.registry.Resolve(req.AdapterID)
	if err != nil {
		return fail(StateResolving, err)
	}
	desc := impl.Descriptor()

	// Validation runs before any expensive work so a bad task definition can
	// never cost a download or leave a process behind.
	if err := impl.Validate(req.Task); err != nil {
		return fail(StateResolving, err)
	}

	bin, err := impl.ResolveBinary(ctx, req.Version, req.Resolve)
	if err != nil {
		return fail(StateResolving, err)
	}

	report(StateTranslating)
	body, err := impl.Translate(req.Task)
	if err != nil {
		return fail(StateTranslating, err)
	}

	report(StateSpawning)
	mode := desc.Readiness.Mode
	if mode == "" {
		mode = adapter.CommsStdio
	}

	args := append([]string(nil), bin.Args...)
	var listener net.Listener
	var port int
	switch mode {
	case adapter.CommsTCPConnect:
		port, err = allocatePort()
		if err != nil {
			return fail(StateSpawning, fmt.Errorf("%w: %w", adapter.ErrSpawn, err))
		}
		args = substitutePort(args, port)
	case adapter.CommsTCPCallback:
		listener, err = net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return fail(StateSpawning, fmt.Errorf("%w: %w", adapter.ErrSpawn, err))
		}
		defer listener.Close()
		port = listener.Addr().(*net.TCPAddr).Port
		args = substitutePort(args, port)
	}

	sp, err := l.spawn(bin, args, mode == adapter.CommsStdio)
	if err != nil {
		return fail(StateSpawning, err)
	}

	log := l.log.WithValues("adapter", desc.ID, "pid", sp.pid)
	log.Info("adapter process started", "path", bin.Path, "version", bin.Version, "mode", mode)
	go logStream(log, "stderr", sp.stderr)
	if mode != adapter.CommsStdio && desc.Readiness.StdoutMarker == "" {
		go logStream(log, "stdout", sp.stdout)
	}

	report(StateAwaitingReady)
	timeout := desc.Readiness.EffectiveTimeout()
	readyCtx, cancelReady := context.WithTimeout(ctx, timeout)
	defer cancelReady()

	type readyResult struct {
		transport dap.Transport
		caps      *godap.Capabilities
		err       error
	}
	resultCh := make(chan readyResult, 1)
	go func() {
		t, caps, err := l.awaitReady(readyCtx, mode, desc, sp, port, listener, log)
		resultCh <- readyResult{transport: t, caps: caps, err: err}
	}()

	var result readyResult
	select {
	case result = <-resultCh:
	case exit := <-sp.exitCh:
		// Put the notification back so teardown's exit wait still completes.
		sp.exitCh <- exit
		cancelReady()
		result = <-resultCh
		if result.transport != nil {
			_ = result.transport.Close()
		}
		l.teardown(sp, nil)
		return fail(StateAwaitingReady, fmt.Errorf("%w: adapter process exited before becoming ready (exit code %d)", adapter.ErrSpawn, exit.ExitCode))
	}

	if result.err != nil {
		l.teardown(sp, result.transport)
		err := result.err
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("%w: not ready after %s: %w", adapter.ErrReadyTimeout, timeout, err)
		}
		return fail(StateAwaitingReady, err)
	}

	report(StateReady)
	log.Info("session ready")
	return newSession(desc.ID, sp, result.transport, result.caps, body, bin.Version, log), nil
}

// awaitReady establishes the DAP transport for the communication mode and
// performs the initialize round-trip on it. Returns the transport only on
// success; on failure any partially established transport is closed here.
func (l *Launcher) awaitReady(ctx context.Context, mode adapter.CommsMode, desc adapter.Descriptor, sp *spawnedProcess, port int, listener net.Listener, log logr.Logger) (dap.Transport, *godap.Capabilities, error) {
	var transport dap.Transport
	switch mode {
	case adapter.CommsStdio:
		transport = dap.NewStdioTransport(sp.stdout, sp.stdin)

	case adapter.CommsTCPConnect:
		if marker := desc.Readiness.StdoutMarker; marker != "" {
			if err := awaitStdoutMarker(ctx, sp.stdout, marker, log); err != nil {
				return nil, nil, err
			}
		}
		t, err := dialWithRetry(ctx, fmt.Sprintf("127.0.0.1:%d", port))
		if err != nil {
			return nil, nil, err
		}
		transport = t

	case adapter.CommsTCPCallback:
		conn, err := acceptWithContext(ctx, listener)
		if err != nil {
			return nil, nil, err
		}
		transport = dap.NewTCPTransport(conn)

	default:
		return nil, nil, fmt.Errorf("%w: unsupported communication mode %q", adapter.ErrSpawn, mode)
	}

	caps, err := l.handshake(ctx, transport, string(desc.ID))
	if err != nil {
		// Closing the transport unblocks the handshake's pending read.
		_ = transport.Close()
		return nil, nil, err
	}
	return transport, caps, nil
}

// spawnedProcess is a started adapter process before it is handed to a
// Session: identity, exit notification channel, the cancel that kills it, and
// the parent ends of its pipes.
type spawnedProcess struct {
	pid       process.Pid
	startTime time.Time
	exitCh    chan process.ExitInfo
	stop      context.CancelFunc

	stdin  io.WriteCloser // nil unless the process speaks DAP on stdio
	stdout io.ReadCloser
	stderr io.ReadCloser
}

// spawn starts the adapter process with its lifetime bound to a fresh
// context, so a launch context cancellation and a Session.Close both funnel
// through the same stop function. Pipes are created manually instead of via
// exec.Cmd helpers because the executor owns the Wait call.
func (l *Launcher) spawn(bin adapter.ResolvedBinary, args []string, wantStdin bool) (*spawnedProcess, error) {
	cmd := exec.Command(bin.Path, args...)
	cmd.Dir = bin.WorkingDir
	cmd.Env = mergedEnv(bin.Env)

	var parentEnds, childEnds []io.Closer
	closeAll := func(closers []io.Closer) {
		for _, c := range closers {
			_ = c.Close()
		}
	}

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", adapter.ErrSpawn, err)
	}
	cmd.Stdout = stdoutW
	parentEnds, childEnds = append(parentEnds, stdoutR), append(childEnds, stdoutW)

	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		closeAll(parentEnds)
		closeAll(childEnds)
		return nil, fmt.Errorf("%w: %w", adapter.ErrSpawn, err)
	}
	cmd.Stderr = stderrW
	parentEnds, childEnds = append(parentEnds, stderrR), append(childEnds, stderrW)

	var stdinW io.WriteCloser
	if wantStdin {
		stdinR, w, err := os.Pipe()
		if err != nil {
			closeAll(parentEnds)
			closeAll(childEnds)
			return nil, fmt.Errorf("%w: %w", adapter.ErrSpawn, err)
		}
		cmd.Stdin = stdinR
		stdinW = w
		parentEnds, childEnds = append(parentEnds, w), append(childEnds, stdinR)
	}

	procCtx, stop := context.WithCancel(context.Background())
	exitCh := make(chan process.ExitInfo, 1)
	pid, startTime, err := l.executor.StartProcess(procCtx, cmd, process.NewChannelExitHandler(exitCh))
	closeAll(childEnds)
	if err != nil {
		stop()
		closeAll(parentEnds)
		return nil, fmt.Errorf("%w: %w", adapter.ErrSpawn, err)
	}

	return &spawnedProcess{
		pid:       pid,
		startTime: startTime,
		exitCh:    exitCh,
		stop:      stop,
		stdin:     stdinW,
		stdout:    stdoutR,
		stderr:    stderrR,
	}, nil
}

// teardown stops a spawned process after a failed launch and waits for its
// exit, so a Failure is never observable while the process still runs.
func (l *Launcher) teardown(sp *spawnedProcess, transport dap.Transport) {
	if transport != nil {
		_ = transport.Close()
	} else if sp.stdin != nil {
		_ = sp.stdin.Close()
	}
	sp.stop()
	<-sp.exitCh
}

func mergedEnv(overrides map[string]string) []string {
	env := os.Environ()
	for k, v := range overrides {
		env = append(env, k+"="+v)
	}
	return env
}
