// Package adapter defines the abstraction over one supported debugger kind:
// its identity, how its binary is located, how a generic task description is
// translated into its launch arguments, and how readiness of its process is
// detected. Concrete implementations live in internal/adapters; the registry
// in this package is how the rest of the system finds them.
package adapter

import (
	"encoding/json"
	"time"
)

// ID is the stable identifier of a debugger kind. It doubles as the DAP
// adapterID advertised during the initialize handshake.
type ID string

// RequestKind is the DAP request used to start debugging.
type RequestKind string

const (
	RequestLaunch RequestKind = "launch"
	RequestAttach RequestKind = "attach"
)

// CommsMode describes how a launched adapter process exchanges DAP messages.
type CommsMode string

const (
	// CommsStdio: the adapter speaks DAP on its stdin/stdout.
	CommsStdio CommsMode = "stdio"

	// CommsTCPConnect: we allocate a port, substitute it into the adapter's
	// arguments, the adapter listens, we connect.
	CommsTCPConnect CommsMode = "tcp-connect"

	// CommsTCPCallback: we listen, the adapter dials us back.
	CommsTCPCallback CommsMode = "tcp-callback"
)

// PortPlaceholder in ResolvedBinary args is replaced with the allocated port
// for the TCP communication modes.
const PortPlaceholder = "{{port}}"

// DefaultReadyTimeout bounds readiness detection when a descriptor does not
// declare its own timeout.
const DefaultReadyTimeout = 10 * time.Second

// Readiness declares how the session launcher decides a spawned adapter
// process is able to accept DAP requests.
type Readiness struct {
	// Mode selects the communication channel and with it the base readiness
	// signal: a successful initialize round-trip for stdio, an accepted TCP
	// connection for the TCP modes.
	Mode CommsMode

	// StdoutMarker, when non-empty, must appear on the process stdout before
	// the launcher proceeds to connect. Used by adapters that print a
	// "listening" line once their server socket is up.
	StdoutMarker string

	// Timeout bounds the whole readiness phase. Zero means DefaultReadyTimeout.
	Timeout time.Duration
}

// EffectiveTimeout returns the declared readiness timeout or the default.
func (r Readiness) EffectiveTimeout() time.Duration {
	if r.Timeout > 0 {
		return r.Timeout
	}
	return DefaultReadyTimeout
}

// Descriptor is the immutable identity of one supported debugger kind,
// created once at registration time and read-only thereafter.
type Descriptor struct {
	// ID is unique within a registry.
	ID ID

	// Name is the human readable adapter name.
	Name string

	// Languages lists the language ecosystems the adapter serves.
	Languages []string

	// Requests are the request kinds the adapter supports.
	Requests []RequestKind

	// Readiness declares the process readiness heuristic.
	Readiness Readiness
}

// SupportsRequest reports whether the descriptor advertises the request kind.
func (d Descriptor) SupportsRequest(kind RequestKind) bool {
	for _, r := range d.Requests {
		if r == kind {
			return true
		}
	}
	return false
}

// VersionSpecKind discriminates VersionSpec.
type VersionSpecKind string

const (
	// VersionLatest resolves to the newest version the remote index offers.
	VersionLatest VersionSpecKind = "latest"

	// VersionPinned names an exact version string.
	VersionPinned VersionSpecKind = "pinned"

	// VersionInstalled uses whatever is already present on the machine and
	// never touches the network.
	VersionInstalled VersionSpecKind = "installed"
)

// VersionSpec is the caller's constraint on which adapter binary version to
// use for one session. It is never persisted by this library.
type VersionSpec struct {
	Kind    VersionSpecKind
	Version string // set only for VersionPinned
}

func Latest() VersionSpec               { return VersionSpec{Kind: VersionLatest} }
func Pinned(version string) VersionSpec { return VersionSpec{Kind: VersionPinned, Version: version} }
func Installed() VersionSpec            { return VersionSpec{Kind: VersionInstalled} }

// String returns the cache-slot-friendly form of the spec.
func (v VersionSpec) String() string {
	if v.Kind == VersionPinned {
		return v.Version
	}
	return string(v.Kind)
}

// TaskDefinition is the generic, caller-owned description of what to debug.
// The library only reads it; translators copy what they need so nothing
// produced downstream refers back to this value.
type TaskDefinition struct {
	// Request selects launch or attach. Empty means launch.
	Request RequestKind

	// Program is the executable or script to debug (launch requests).
	Program string

	// Args are passed to the debuggee.
	Args []string

	// Cwd is the debuggee working directory. Translators default it to the
	// directory containing Program when absent.
	Cwd string

	// Env are extra environment variables for the debuggee.
	Env map[string]string

	// StopOnEntry pauses the debuggee on the first instruction.
	StopOnEntry bool

	// AttachPid is the target process for attach requests.
	AttachPid int

	// Host and Port name a remote attach target.
	Host string
	Port int

	// Extra carries adapter-specific fields the generic model has no slot
	// for. Translators merge them into the launch body last, so callers can
	// override any generated field.
	Extra map[string]any
}

// EffectiveRequest returns the request kind, defaulting to launch.
func (t TaskDefinition) EffectiveRequest() RequestKind {
	if t.Request == "" {
		return RequestLaunch
	}
	return t.Request
}

// ResolvedBinary is a runnable adapter executable plus everything needed to
// start it. Produced fresh per session by binary resolution.
type ResolvedBinary struct {
	// Path is the absolute path of the executable.
	Path string

	// Args are the invocation arguments (not including Path itself). May
	// contain PortPlaceholder for the TCP communication modes.
	Args []string

	// WorkingDir is the working directory for the adapter process. Empty
	// means inherit.
	WorkingDir string

	// Env are environment overrides applied on top of the ambient
	// environment.
	Env map[string]string

	// Version is the concrete version the spec resolved to, or "" when
	// unknown (e.g. a user override path).
	Version string
}

// LaunchRequestBody is the adapter-specific, fully serialized body of the DAP
// launch or attach request. Being a flat byte slice keeps it self-sufficient:
// it holds no reference to the TaskDefinition it was derived from.
type LaunchRequestBody = json.RawMessage
