package locator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/ashpool37/dapbridge/internal/adapter"
	"github.com/ashpool37/dapbridge/pkg/osutil"
)

// markerFileName records successful provisioning of a cache slot. A slot
// without the marker (or whose recorded executable is gone) is not valid and
// will be re-provisioned.
const markerFileName = ".dapbridge-ok"

// slotMarker is the JSON content of the marker file, written atomically as
// the last step of provisioning.
type slotMarker struct {
	AdapterID  adapter.ID `json:"adapterId"`
	Version    string     `json:"version"`
	Platform   string     `json:"platform"`
	Executable string     `json:"executable"` // relative to the slot directory
	FinishedAt time.Time  `json:"finishedAt"`
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

// cache owns the on-disk binary cache layout:
//
//	<root>/<adapter-id>/<version>/            one slot per resolved version
//	<root>/<adapter-id>/<version>/.dapbridge-ok
//	<root>/<adapter-id>/.staging-<nonce>/     in-progress provisioning
//	<root>/<adapter-id>/.provision.lock       cross-process provisioning lock
type cache struct {
	root string
}

func (c cache) adapterDir(id adapter.ID) string {
	return filepath.Join(c.root, string(id))
}

func (c cache) slotDir(id adapter.ID, version string) string {
	return filepath.Join(c.adapterDir(id), version)
}

func (c cache) stagingDir(id adapter.ID) string {
	return filepath.Join(c.adapterDir(id), ".staging-"+uuid.NewString())
}

func (c cache) lockPath(id adapter.ID) string {
	return filepath.Join(c.adapterDir(id), ".provision.lock")
}

// readMarker loads and validates the marker of a slot. The second return is
// false when the slot has no marker at all (never provisioned or swept).
func (c cache) readMarker(id adapter.ID, version string) (slotMarker, bool, error) {
	data, err := os.ReadFile(filepath.Join(c.slotDir(id, version), markerFileName))
	if os.IsNotExist(err) {
		return slotMarker{}, false, nil
	}
	if err != nil {
		return slotMarker{}, true, err
	}

	var marker slotMarker
	if err := json.Unmarshal(data, &marker); err != nil {
		return slotMarker{}, true, fmt.Errorf("cache marker is corrupt: %w", err)
	}
	return marker, true, nil
}

// lookup probes a slot and returns the entry file path when the slot is
// valid. A marker that is present but unreadable, or whose recorded entry
// file is missing (or not executable, when one is required), makes the slot
// invalid — recoverable corruption, the caller re-provisions.
func (c cache) lookup(id adapter.ID, version string, requireExecutable bool) (string, bool) {
	marker, present, err := c.readMarker(id, version)
	if !present || err != nil {
		return "", false
	}

	entryPath := filepath.Join(c.slotDir(id, version), filepath.FromSlash(marker.Executable))
	if requireExecutable {
		ok, err := osutil.IsExecutable(entryPath)
		if err != nil || !ok {
			return "", false
		}
		return entryPath, true
	}

	if _, err := os.Stat(entryPath); err != nil {
		return "", false
	}
	return entryPath, true
}

// discard removes a slot so it can be provisioned from scratch.
func (c cache) discard(id adapter.ID, version string) error {
	return os.RemoveAll(c.slotDir(id, version))
}

// newestValid returns the newest valid cached version for the adapter,
// ordered the same way the release index orders versions.
func (c cache) newestValid(id adapter.ID, requireExecutable bool) (string, bool) {
	entries, err := os.ReadDir(c.adapterDir(id))
	if err != nil {
		return "", false
	}

	var versions []string
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name()[0] == '.' {
			continue
		}
		if _, ok := c.lookup(id, entry.Name(), requireExecutable); ok {
			versions = append(versions, entry.Name())
		}
	}
	if len(versions) == 0 {
		return "", false
	}
	sortVersions(versions)
	return versions[len(versions)-1], true
}

// commit atomically publishes a fully provisioned staging directory as the
// slot for (id, version). The marker is written inside the staging directory
// first, so the rename is the single point where the slot becomes visible.
func (c cache) commit(id adapter.ID, version, stagingDir string, marker slotMarker) error {
	markerData, err := json.MarshalIndent(marker, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode cache marker: %w", err)
	}
	if err := os.WriteFile(filepath.Join(stagingDir, markerFileName), markerData, osutil.PermissionOwnerReadWriteOthersRead); err != nil {
		return fmt.Errorf("failed to write cache marker: %w", err)
	}

	dest := c.slotDir(id, version)
	if err := os.Rename(stagingDir, dest); err != nil {
		if _, ok := c.lookup(id, version, false); ok {
			// Another process committed the same slot first; theirs is valid,
			// ours is redundant.
			_ = os.RemoveAll(stagingDir)
			return nil
		}
		return fmt.Errorf("failed to publish cache slot: %w", err)
	}
	return nil
}
