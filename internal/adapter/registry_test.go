package adapter

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubAdapter is the minimal Adapter used by registry tests.
type stubAdapter struct {
	id ID
}

func (s *stubAdapter) Descriptor() Descriptor {
	return Descriptor{
		ID:       s.id,
		Name:     string(s.id),
		Requests: []RequestKind{RequestLaunch},
		Readiness: Readiness{
			Mode: CommsStdio,
		},
	}
}

func (s *stubAdapter) ResolveBinary(_ context.Context, _ VersionSpec, _ ResolveOptions) (ResolvedBinary, error) {
	return ResolvedBinary{Path: "/bin/true"}, nil
}

func (s *stubAdapter) Validate(_ TaskDefinition) error {
	return nil
}

func (s *stubAdapter) Translate(_ TaskDefinition) (LaunchRequestBody, error) {
	return json.RawMessage(`{}`), nil
}

func TestRegistryResolveReturnsRegisteredAdapter(t *testing.T) {
	registry := NewRegistry()

	a := &stubAdapter{id: "stub-a"}
	b := &stubAdapter{id: "stub-b"}
	require.NoError(t, registry.Register(a))
	require.NoError(t, registry.Register(b))

	for _, want := range []*stubAdapter{a, b} {
		got, err := registry.Resolve(want.id)
		require.NoError(t, err)
		assert.Same(t, want, got)
	}
}

func TestRegistryResolveUnknownAdapter(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(&stubAdapter{id: "stub"}))

	_, err := registry.Resolve("no-such-adapter")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownAdapter)
	assert.Contains(t, err.Error(), "no-such-adapter")
}

func TestRegistryRejectsDuplicateID(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(&stubAdapter{id: "stub"}))

	err := registry.Register(&stubAdapter{id: "stub"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateAdapter)

	// The original registration is untouched.
	got, err := registry.Resolve("stub")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestRegistryRejectsEmptyID(t *testing.T) {
	registry := NewRegistry()
	assert.Error(t, registry.Register(&stubAdapter{id: ""}))
}

func TestRegistryDescriptorsSorted(t *testing.T) {
	registry := NewRegistry()
	for _, id := range []ID{"zeta", "alpha", "mid"} {
		require.NoError(t, registry.Register(&stubAdapter{id: id}))
	}

	descriptors := registry.Descriptors()
	require.Len(t, descriptors, 3)
	assert.Equal(t, ID("alpha"), descriptors[0].ID)
	assert.Equal(t, ID("mid"), descriptors[1].ID)
	assert.Equal(t, ID("zeta"), descriptors[2].ID)
}

func TestRegistryConcurrentRegistration(t *testing.T) {
	registry := NewRegistry()

	const goroutines = 16
	errs := make([]error, goroutines)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = registry.Register(&stubAdapter{id: "contested"})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrDuplicateAdapter)
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one registration must win")
}

func TestValidationErrorReportsFields(t *testing.T) {
	err := NewValidationError("stub", []FieldError{
		{Field: "program", Message: "is required"},
		{Field: "port", Message: "must be positive"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.True(t, ve.HasField("program"))
	assert.True(t, ve.HasField("port"))
	assert.False(t, ve.HasField("cwd"))
	assert.Contains(t, ve.Error(), "program: is required")
}

func TestNewValidationErrorNilForNoFields(t *testing.T) {
	assert.NoError(t, NewValidationError("stub", nil))
}

func TestDescriptorSupportsRequest(t *testing.T) {
	d := Descriptor{Requests: []RequestKind{RequestLaunch, RequestAttach}}
	assert.True(t, d.SupportsRequest(RequestLaunch))
	assert.True(t, d.SupportsRequest(RequestAttach))

	launchOnly := Descriptor{Requests: []RequestKind{RequestLaunch}}
	assert.False(t, launchOnly.SupportsRequest(RequestAttach))
}

func TestVersionSpecString(t *testing.T) {
	tests := []struct {
		spec VersionSpec
		want string
	}{
		{Latest(), "latest"},
		{Installed(), "installed"},
		{Pinned("v1.2.3"), "v1.2.3"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.spec.String())
		})
	}
}
