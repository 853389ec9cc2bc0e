package adapter

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownAdapter is returned by registry lookups for unregistered IDs.
	ErrUnknownAdapter = errors.New("unknown debug adapter")

	// ErrDuplicateAdapter is returned when registering an ID twice.
	ErrDuplicateAdapter = errors.New("debug adapter already registered")

	// ErrInvalidOverride is returned when a user-supplied adapter binary
	// override does not exist or is not executable.
	ErrInvalidOverride = errors.New("adapter binary override is invalid")

	// ErrUnsupportedPlatform is returned when no adapter binary exists for
	// the current OS/architecture. Detected before any network activity.
	ErrUnsupportedPlatform = errors.New("debug adapter does not support this platform")

	// ErrBinaryUnavailable is returned when every binary resolution strategy
	// failed. It wraps the last underlying cause.
	ErrBinaryUnavailable = errors.New("debug adapter binary unavailable")

	// ErrInvalidConfiguration is returned when a task definition fails
	// adapter validation. It is always wrapped by a ValidationError carrying
	// the offending fields.
	ErrInvalidConfiguration = errors.New("invalid debug configuration")

	// ErrSpawn is returned when the adapter process could not be started.
	ErrSpawn = errors.New("failed to spawn debug adapter process")

	// ErrReadyTimeout is returned when a spawned adapter did not become ready
	// within its readiness timeout.
	ErrReadyTimeout = errors.New("debug adapter readiness timeout")
)

// FieldError names one invalid or missing task definition field.
type FieldError struct {
	Field   string
	Message string
}

func (fe FieldError) String() string {
	return fmt.Sprintf("%s: %s", fe.Field, fe.Message)
}

// ValidationError aggregates the field errors found while validating a task
// definition against one adapter. It unwraps to ErrInvalidConfiguration so
// callers can classify it without knowing the concrete type.
type ValidationError struct {
	Adapter ID
	Fields  []FieldError
}

func (ve *ValidationError) Error() string {
	parts := make([]string, len(ve.Fields))
	for i, fe := range ve.Fields {
		parts[i] = fe.String()
	}
	return fmt.Sprintf("invalid debug configuration for adapter %q: %s", ve.Adapter, strings.Join(parts, "; "))
}

func (ve *ValidationError) Unwrap() error {
	return ErrInvalidConfiguration
}

// HasField reports whether the error names the given field.
func (ve *ValidationError) HasField(field string) bool {
	for _, fe := range ve.Fields {
		if fe.Field == field {
			return true
		}
	}
	return false
}

// NewValidationError builds a ValidationError, returning nil when there are
// no field errors.
func NewValidationError(adapterID ID, fields []FieldError) error {
	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Adapter: adapterID, Fields: fields}
}
