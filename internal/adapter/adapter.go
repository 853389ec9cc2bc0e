package adapter

import "context"

// ResolveOptions carries the caller- and settings-supplied inputs to binary
// resolution. All fields are optional.
type ResolveOptions struct {
	// OverridePath, when set, bypasses cache and provisioning entirely. The
	// path must exist and be executable or resolution fails with
	// ErrInvalidOverride.
	OverridePath string

	// CacheRoot overrides the default on-disk binary cache location.
	CacheRoot string

	// AllowNetwork permits downloading adapter binaries that are not cached.
	// When false, resolution stops after the local probes.
	AllowNetwork bool
}

// Adapter is the capability set implemented once per supported debugger kind:
// binary location, configuration translation, and readiness metadata
// (carried by the Descriptor).
type Adapter interface {
	// Descriptor returns the adapter's immutable identity.
	Descriptor() Descriptor

	// ResolveBinary finds or provisions a runnable adapter binary satisfying
	// the version spec. Failures are classified as ErrInvalidOverride,
	// ErrUnsupportedPlatform or ErrBinaryUnavailable.
	ResolveBinary(ctx context.Context, spec VersionSpec, opts ResolveOptions) (ResolvedBinary, error)

	// Validate checks the task definition before any launch work happens.
	// Returns nil or a *ValidationError naming every offending field.
	Validate(task TaskDefinition) error

	// Translate maps the generic task definition into the adapter-specific
	// launch (or attach) request body. Pure: no I/O, no side effects,
	// deterministic for identical inputs. Callers are expected to Validate
	// first; Translate on an invalid task returns the validation error.
	Translate(task TaskDefinition) (LaunchRequestBody, error)
}
