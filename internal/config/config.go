// Package config loads the dapbridge settings file. Settings are optional:
// a missing file yields the defaults, and every field has a sensible zero
// behavior.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/ashpool37/dapbridge/internal/adapter"
	"github.com/ashpool37/dapbridge/pkg/osutil"
)

// Settings is the on-disk configuration schema (TOML).
type Settings struct {
	// CacheRoot overrides where provisioned adapter binaries are stored.
	// Empty means the per-user default under os.UserCacheDir.
	CacheRoot string `toml:"cache_root,omitempty"`

	Network NetworkSettings `toml:"network,omitempty"`

	// Adapters holds per-adapter overrides keyed by adapter ID.
	Adapters map[string]AdapterSettings `toml:"adapters,omitempty"`
}

type NetworkSettings struct {
	// Offline disables all binary provisioning downloads. Cached and
	// installed binaries keep working.
	Offline bool `toml:"offline,omitempty"`
}

// AdapterSettings overrides binary resolution for one adapter.
type AdapterSettings struct {
	// BinaryPath short-circuits resolution to this executable.
	BinaryPath string `toml:"binary_path,omitempty"`

	// Version pins the adapter binary version. The special values "latest"
	// (or empty) and "installed" select those strategies instead of a pin.
	Version string `toml:"version,omitempty"`
}

// DefaultPath is the settings file location: <user config dir>/dapbridge/config.toml.
func DefaultPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine user config directory: %w", err)
	}
	return filepath.Join(base, "dapbridge", "config.toml"), nil
}

// Default returns the settings used when no file exists.
func Default() Settings {
	return Settings{}
}

// Load reads the settings file at path (the default path when empty). A
// missing file is not an error; it yields Default().
func Load(path string) (Settings, error) {
	if path == "" {
		defaultPath, err := DefaultPath()
		if err != nil {
			return Settings{}, err
		}
		path = defaultPath
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read settings file %s: %w", path, err)
	}

	var settings Settings
	if err := toml.Unmarshal(data, &settings); err != nil {
		return Settings{}, fmt.Errorf("failed to parse settings file %s: %w", path, err)
	}
	return settings, nil
}

// Save writes the settings to path (the default path when empty), creating
// the parent directory as needed.
func Save(path string, settings Settings) error {
	if path == "" {
		defaultPath, err := DefaultPath()
		if err != nil {
			return err
		}
		path = defaultPath
	}

	blob, err := toml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), osutil.PermissionOwnerAllOthersReadExecute); err != nil {
		return err
	}
	return os.WriteFile(path, blob, osutil.PermissionOwnerReadWriteOthersRead)
}

// ResolveOptions maps the settings to binary resolution options for one
// adapter.
func (s Settings) ResolveOptions(id adapter.ID) adapter.ResolveOptions {
	opts := adapter.ResolveOptions{
		CacheRoot:    s.CacheRoot,
		AllowNetwork: !s.Network.Offline,
	}
	if override, ok := s.Adapters[string(id)]; ok {
		opts.OverridePath = override.BinaryPath
	}
	return opts
}

// VersionSpec maps the settings to a version spec for one adapter.
func (s Settings) VersionSpec(id adapter.ID) adapter.VersionSpec {
	override, ok := s.Adapters[string(id)]
	if !ok {
		return adapter.Latest()
	}
	switch override.Version {
	case "", "latest":
		return adapter.Latest()
	case "installed":
		return adapter.Installed()
	default:
		return adapter.Pinned(override.Version)
	}
}
