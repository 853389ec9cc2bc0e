package commands

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashpool37/dapbridge/internal/adapter"
)

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root, err := NewRootCmd()
	require.NoError(t, err)

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err = root.Execute()
	return out.String(), err
}

func TestAdaptersCommandListsCatalog(t *testing.T) {
	out, err := executeCommand(t, "adapters")
	require.NoError(t, err)
	assert.Contains(t, out, "delve")
	assert.Contains(t, out, "debugpy")
	assert.Contains(t, out, "tcp-connect")
}

func TestVersionCommand(t *testing.T) {
	out, err := executeCommand(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, `"version"`)
}

func TestResolveUnknownAdapter(t *testing.T) {
	_, err := executeCommand(t, "resolve", "no-such-debugger")
	require.Error(t, err)
	assert.ErrorIs(t, err, adapter.ErrUnknownAdapter)
}

func TestLaunchRequiresAdapterArgument(t *testing.T) {
	_, err := executeCommand(t, "launch")
	require.Error(t, err)
}
