package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashpool37/dapbridge/internal/adapter"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	settings, err := Load(filepath.Join(t.TempDir(), "config.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), settings)
}

func TestLoadParsesSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
cache_root = "/var/cache/dapbridge"

[network]
offline = true

[adapters.delve]
binary_path = "/usr/local/bin/dlv"
version = "installed"

[adapters.debugpy]
version = "1.8.1"
`), 0o644))

	settings, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/cache/dapbridge", settings.CacheRoot)
	assert.True(t, settings.Network.Offline)
	assert.Equal(t, "/usr/local/bin/dlv", settings.Adapters["delve"].BinaryPath)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("cache_root = [broken"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestSaveRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	settings := Settings{
		CacheRoot: "/tmp/cache",
		Network:   NetworkSettings{Offline: true},
		Adapters: map[string]AdapterSettings{
			"codelldb": {Version: "1.11.0"},
		},
	}
	require.NoError(t, Save(path, settings))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, settings, loaded)
}

func TestResolveOptions(t *testing.T) {
	settings := Settings{
		CacheRoot: "/var/cache/dapbridge",
		Network:   NetworkSettings{Offline: true},
		Adapters: map[string]AdapterSettings{
			"delve": {BinaryPath: "/usr/local/bin/dlv"},
		},
	}

	opts := settings.ResolveOptions("delve")
	assert.Equal(t, "/usr/local/bin/dlv", opts.OverridePath)
	assert.Equal(t, "/var/cache/dapbridge", opts.CacheRoot)
	assert.False(t, opts.AllowNetwork)

	opts = settings.ResolveOptions("debugpy")
	assert.Empty(t, opts.OverridePath)
}

func TestVersionSpec(t *testing.T) {
	settings := Settings{
		Adapters: map[string]AdapterSettings{
			"delve":    {Version: "installed"},
			"debugpy":  {Version: "1.8.1"},
			"codelldb": {Version: "latest"},
		},
	}

	assert.Equal(t, adapter.Installed(), settings.VersionSpec("delve"))
	assert.Equal(t, adapter.Pinned("1.8.1"), settings.VersionSpec("debugpy"))
	assert.Equal(t, adapter.Latest(), settings.VersionSpec("codelldb"))
	assert.Equal(t, adapter.Latest(), settings.VersionSpec("unconfigured"))
}
