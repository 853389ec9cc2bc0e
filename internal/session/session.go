// Package session orchestrates one debug session launch: adapter lookup,
// task validation, binary resolution, configuration translation, process
// spawn and readiness detection. A successful launch yields a Session handle
// owning a live DAP transport and the adapter process; a failed launch yields
// a Failure naming the phase that went wrong, with the adapter process
// guaranteed to be stopped before the failure is observable.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	godap "github.com/google/go-dap"
	"github.com/google/uuid"

	"github.com/ashpool37/dapbridge/internal/adapter"
	"github.com/ashpool37/dapbridge/internal/dap"
	"github.com/ashpool37/dapbridge/pkg/process"
)

// State is the observable phase of one launch. Transitions are strictly
// forward: Idle → Resolving → Translating → Spawning → AwaitingReady →
// (Ready | Failed), with Failed reachable from every intermediate state.
type State string

const (
	StateIdle          State = "idle"
	StateResolving     State = "resolving"
	StateTranslating   State = "translating"
	StateSpawning      State = "spawning"
	StateAwaitingReady State = "awaiting-ready"
	StateReady         State = "ready"
	StateFailed        State = "failed"
)

// FailureKind classifies why a launch failed.
type FailureKind string

const (
	FailureUnknownAdapter       FailureKind = "unknown-adapter"
	FailureInvalidConfiguration FailureKind = "invalid-configuration"
	FailureInvalidOverride      FailureKind = "invalid-override"
	FailureUnsupportedPlatform  FailureKind = "unsupported-platform"
	FailureBinaryUnavailable    FailureKind = "binary-unavailable"
	FailureSpawn                FailureKind = "spawn"
	FailureReadyTimeout         FailureKind = "ready-timeout"
	FailureCanceled             FailureKind = "canceled"
	FailureInternal             FailureKind = "internal"
)

// Failure is the error type returned by Launcher.Launch. It records the state
// the launch was in when it failed and unwraps to the underlying error, so
// errors.Is against the adapter package sentinels keeps working.
type Failure struct {
	Kind  FailureKind
	State State
	Err   error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("launch failed in state %s (%s): %v", f.State, f.Kind, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

func classify(err error) FailureKind {
	switch {
	case errors.Is(err, adapter.ErrUnknownAdapter):
		return FailureUnknownAdapter
	case errors.Is(err, adapter.ErrInvalidConfiguration):
		return FailureInvalidConfiguration
	case errors.Is(err, adapter.ErrInvalidOverride):
		return FailureInvalidOverride
	case errors.Is(err, adapter.ErrUnsupportedPlatform):
		return FailureUnsupportedPlatform
	case errors.Is(err, adapter.ErrBinaryUnavailable):
		return FailureBinaryUnavailable
	case errors.Is(err, adapter.ErrSpawn):
		return FailureSpawn
	case errors.Is(err, adapter.ErrReadyTimeout):
		return FailureReadyTimeout
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return FailureCanceled
	default:
		return FailureInternal
	}
}

// Session is a ready debug session: a running adapter process plus the DAP
// transport connected to it. The holder owns the session and must Close it;
// Close stops the adapter process.
type Session struct {
	id        uuid.UUID
	adapterID adapter.ID
	transport dap.Transport
	caps      *godap.Capabilities
	body      adapter.LaunchRequestBody
	version   string

	pid       process.Pid
	startTime time.Time
	stop      context.CancelFunc

	exitDone chan struct{}
	exitInfo process.ExitInfo

	log       logr.Logger
	closeOnce sync.Once
	closeErr  error
}

func newSession(adapterID adapter.ID, sp *spawnedProcess, transport dap.Transport, caps *godap.Capabilities, body adapter.LaunchRequestBody, version string, log logr.Logger) *Session {
	s := &Session{
		id:        uuid.New(),
		adapterID: adapterID,
		transport: transport,
		caps:      caps,
		body:      body,
		version:   version,
		pid:       sp.pid,
		startTime: sp.startTime,
		stop:      sp.stop,
		exitDone:  make(chan struct{}),
		log:       log,
	}
	go func() {
		info := <-sp.exitCh
		s.exitInfo = info
		close(s.exitDone)
		s.log.V(1).Info("adapter process exited", "pid", info.Pid, "exitCode", info.ExitCode, "error", info.Err)
	}()
	return s
}

func (s *Session) ID() uuid.UUID { return s.id }

func (s *Session) AdapterID() adapter.ID { return s.adapterID }

func (s *Session) Pid() process.Pid { return s.pid }

func (s *Session) StartTime() time.Time { return s.startTime }

func (s *Session) Transport() dap.Transport { return s.transport }

// Capabilities are the adapter capabilities captured during the initialize
// round-trip.
func (s *Session) Capabilities() *godap.Capabilities { return s.caps }

// LaunchBody is the translated launch (or attach) request body for this
// session's task. The caller sends it as the arguments of the DAP launch or
// attach request once the client-side configuration phase is done.
func (s *Session) LaunchBody() adapter.LaunchRequestBody { return s.body }

// BinaryVersion is the adapter binary version the session runs on, or ""
// when unknown (user-supplied override binaries).
func (s *Session) BinaryVersion() string { return s.version }

// Running reports whether the adapter process is still alive.
func (s *Session) Running() bool {
	select {
	case <-s.exitDone:
		return false
	default:
	}
	running, err := process.IsRunning(s.pid, s.startTime)
	return err == nil && running
}

// WaitExit blocks until the adapter process exits or the context is done.
func (s *Session) WaitExit(ctx context.Context) (process.ExitInfo, error) {
	select {
	case <-ctx.Done():
		return process.ExitInfo{}, ctx.Err()
	case <-s.exitDone:
		return s.exitInfo, nil
	}
}

// Close tears the session down: the transport is closed and the adapter
// process is stopped. Close does not return until the process exit has been
// observed, so no session ever leaves an orphan behind.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.transport.Close()
		s.stop()
		<-s.exitDone
	})
	return s.closeErr
}
