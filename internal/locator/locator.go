// Package locator turns a (adapter, version spec) pair into a runnable
// binary. Resolution is a strict priority pipeline: explicit user override,
// then the shared on-disk cache, then network provisioning. Provisioning of
// one cache slot is mutually exclusive across goroutines (keyed in-flight
// table) and across processes (advisory lockfile); the staged-unpack plus
// atomic-rename commit means a cancelled or failed download can never poison
// a later lookup.
package locator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-logr/logr"
	"golang.org/x/mod/semver"

	"github.com/ashpool37/dapbridge/internal/adapter"
	"github.com/ashpool37/dapbridge/internal/artifact"
	"github.com/ashpool37/dapbridge/internal/lockfile"
	"github.com/ashpool37/dapbridge/pkg/osutil"
)

// InstallPlaceholder in Config.Args expands to the cache slot directory.
const InstallPlaceholder = "{{install}}"

// EntryPlaceholder in Config.Args expands to the slot's entry file
// (Config.EntryRelPath resolved against the slot directory).
const EntryPlaceholder = "{{entry}}"

// Config describes how one adapter's binaries are found and provisioned.
type Config struct {
	AdapterID adapter.ID

	// IndexURL is the release index endpoint. Empty means the adapter cannot
	// be provisioned from the network (installed-toolchain-only adapters).
	IndexURL string

	// EntryRelPath is the file inside a provisioned slot that anchors the
	// installation: the adapter executable itself, or the script passed to
	// Interpreter. Its presence is what makes a cache slot valid.
	EntryRelPath string

	// Interpreter, when set, is the PATH-resolved runtime (node, python3)
	// that runs the entry file; the provisioned artifact is then not itself
	// an executable.
	Interpreter string

	// Args is the invocation argument list for provisioned installs. May
	// contain InstallPlaceholder, EntryPlaceholder and adapter.PortPlaceholder.
	Args []string

	// BinaryName names the installed file for FormatBinary artifacts.
	BinaryName string

	// InstalledNames are probed on PATH, in order, for VersionInstalled
	// resolution and as the fallback when there is no release source.
	InstalledNames []string

	// InstalledArgs is the invocation argument list for PATH-resolved and
	// override binaries.
	InstalledArgs []string

	// SupportedPlatforms limits provisioning to the listed platform keys
	// ("linux-amd64"). Nil means no static restriction; the release index
	// still has the final word.
	SupportedPlatforms []string

	// Env are environment overrides the adapter process always needs. Values
	// may contain InstallPlaceholder and EntryPlaceholder.
	Env map[string]string
}

// Locator resolves binaries for one adapter kind.
type Locator struct {
	cfg        Config
	client     *http.Client
	platform   string
	provisions *provisionTable
	log        logr.Logger
}

// New creates a Locator. client may be nil (http.DefaultClient is used).
func New(cfg Config, client *http.Client, log logr.Logger) *Locator {
	if client == nil {
		client = http.DefaultClient
	}
	return &Locator{
		cfg:        cfg,
		client:     client,
		platform:   osutil.PlatformKey(),
		provisions: &provisionTable{},
		log:        log.WithName("locator").WithValues("adapter", cfg.AdapterID),
	}
}

// DefaultCacheRoot is the binary cache location used when the caller does not
// supply one: <user cache dir>/dapbridge/adapters.
func DefaultCacheRoot() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine user cache directory: %w", err)
	}
	return filepath.Join(base, "dapbridge", "adapters"), nil
}

// Resolve produces a runnable binary for the version spec, following the
// override → cache → provision pipeline.
func (l *Locator) Resolve(ctx context.Context, spec adapter.VersionSpec, opts adapter.ResolveOptions) (adapter.ResolvedBinary, error) {
	if opts.OverridePath != "" {
		return l.resolveOverride(opts.OverridePath)
	}

	if spec.Kind == adapter.VersionInstalled {
		return l.resolveInstalled()
	}

	cacheRoot := opts.CacheRoot
	if cacheRoot == "" {
		root, err := DefaultCacheRoot()
		if err != nil {
			return adapter.ResolvedBinary{}, fmt.Errorf("%w: %w", adapter.ErrBinaryUnavailable, err)
		}
		cacheRoot = root
	}
	c := cache{root: cacheRoot}

	if l.cfg.IndexURL == "" {
		// No release source. The toolchain on the machine is all there is.
		bin, err := l.resolveInstalled()
		if err != nil && spec.Kind == adapter.VersionPinned {
			return adapter.ResolvedBinary{}, fmt.Errorf("%w: adapter has no release source, cannot satisfy pinned version %s", adapter.ErrBinaryUnavailable, spec.Version)
		}
		return bin, err
	}

	version, ix, err := l.pickVersion(ctx, c, spec, opts)
	if err != nil {
		return adapter.ResolvedBinary{}, err
	}

	if entry, ok := c.lookup(l.cfg.AdapterID, version, l.requireExecutableEntry()); ok {
		l.log.V(1).Info("cache hit", "version", version, "entry", entry)
		return l.compose(c.slotDir(l.cfg.AdapterID, version), version)
	}

	if !opts.AllowNetwork {
		return adapter.ResolvedBinary{}, fmt.Errorf("%w: version %s is not cached and network provisioning is disabled", adapter.ErrBinaryUnavailable, version)
	}

	key := string(l.cfg.AdapterID) + "/" + version
	return l.provisions.do(ctx, key, func() (adapter.ResolvedBinary, error) {
		return l.provision(ctx, c, ix, version)
	})
}

// pickVersion turns the spec into a concrete version string, fetching the
// release index when "latest" must be resolved remotely. The returned index
// is non-nil only if it was fetched.
func (l *Locator) pickVersion(ctx context.Context, c cache, spec adapter.VersionSpec, opts adapter.ResolveOptions) (string, *artifact.Index, error) {
	switch spec.Kind {
	case adapter.VersionPinned:
		return spec.Version, nil, nil

	case adapter.VersionLatest, "":
		if !opts.AllowNetwork {
			if version, ok := c.newestValid(l.cfg.AdapterID, l.requireExecutableEntry()); ok {
				return version, nil, nil
			}
			return "", nil, fmt.Errorf("%w: no cached version and network provisioning is disabled", adapter.ErrBinaryUnavailable)
		}

		if err := l.checkPlatform(); err != nil {
			return "", nil, err
		}

		ix, err := l.fetchIndex(ctx)
		if err != nil {
			// The network may be down but an older provisioned copy is still
			// perfectly runnable.
			if version, ok := c.newestValid(l.cfg.AdapterID, l.requireExecutableEntry()); ok {
				l.log.V(1).Info("release index unavailable, using newest cached version", "version", version, "error", err)
				return version, nil, nil
			}
			return "", nil, fmt.Errorf("%w: %w", adapter.ErrBinaryUnavailable, err)
		}

		version, err := ix.Latest(l.platform)
		if err != nil {
			return "", nil, fmt.Errorf("%w: %w", adapter.ErrUnsupportedPlatform, err)
		}
		return version, ix, nil

	default:
		return "", nil, fmt.Errorf("%w: unsupported version spec %q", adapter.ErrBinaryUnavailable, spec.Kind)
	}
}

func (l *Locator) resolveOverride(path string) (adapter.ResolvedBinary, error) {
	ok, err := osutil.IsExecutable(path)
	if err != nil {
		return adapter.ResolvedBinary{}, fmt.Errorf("%w: %s: %w", adapter.ErrInvalidOverride, path, err)
	}
	if !ok {
		return adapter.ResolvedBinary{}, fmt.Errorf("%w: %s is not executable", adapter.ErrInvalidOverride, path)
	}

	l.log.V(1).Info("using adapter binary override", "path", path)
	return adapter.ResolvedBinary{
		Path: path,
		Args: append([]string(nil), l.cfg.InstalledArgs...),
		Env:  copyEnv(l.cfg.Env),
	}, nil
}

func (l *Locator) resolveInstalled() (adapter.ResolvedBinary, error) {
	var lastErr error
	for _, name := range l.cfg.InstalledNames {
		path, err := exec.LookPath(name)
		if err != nil {
			lastErr = err
			continue
		}
		l.log.V(1).Info("using installed adapter binary", "path", path)
		return adapter.ResolvedBinary{
			Path: path,
			Args: append([]string(nil), l.cfg.InstalledArgs...),
			Env:  copyEnv(l.cfg.Env),
		}, nil
	}

	if lastErr == nil {
		lastErr = errors.New("adapter declares no installable binary names")
	}
	return adapter.ResolvedBinary{}, fmt.Errorf("%w: no installed copy found: %w", adapter.ErrBinaryUnavailable, lastErr)
}

// checkPlatform enforces the static platform matrix before any network
// activity, as required for a precise UnsupportedPlatform failure.
func (l *Locator) checkPlatform() error {
	if len(l.cfg.SupportedPlatforms) == 0 {
		return nil
	}
	for _, p := range l.cfg.SupportedPlatforms {
		if p == l.platform {
			return nil
		}
	}
	return fmt.Errorf("%w: %s runs on %s only, this machine is %s",
		adapter.ErrUnsupportedPlatform, l.cfg.AdapterID, strings.Join(l.cfg.SupportedPlatforms, ", "), l.platform)
}

func (l *Locator) fetchIndex(ctx context.Context) (*artifact.Index, error) {
	return artifact.FetchIndex(ctx, l.client, l.cfg.IndexURL)
}

// provision downloads, verifies, unpacks and atomically publishes one cache
// slot. Runs inside the keyed in-flight table; the lockfile extends the
// mutual exclusion across processes.
func (l *Locator) provision(ctx context.Context, c cache, ix *artifact.Index, version string) (adapter.ResolvedBinary, error) {
	// A concurrent resolver may have finished while we were queued.
	if _, ok := c.lookup(l.cfg.AdapterID, version, l.requireExecutableEntry()); ok {
		return l.compose(c.slotDir(l.cfg.AdapterID, version), version)
	}

	if err := l.checkPlatform(); err != nil {
		return adapter.ResolvedBinary{}, err
	}

	if err := os.MkdirAll(c.adapterDir(l.cfg.AdapterID), osutil.PermissionOnlyOwnerAll); err != nil {
		return adapter.ResolvedBinary{}, fmt.Errorf("%w: cannot create cache directory: %w", adapter.ErrBinaryUnavailable, err)
	}

	lock, err := lockfile.New(c.lockPath(l.cfg.AdapterID))
	if err != nil {
		return adapter.ResolvedBinary{}, fmt.Errorf("%w: %w", adapter.ErrBinaryUnavailable, err)
	}
	if err := lock.Lock(ctx, 0); err != nil {
		return adapter.ResolvedBinary{}, fmt.Errorf("%w: could not acquire provisioning lock: %w", adapter.ErrBinaryUnavailable, err)
	}
	defer lock.Close()

	// Another process may have provisioned the slot while we waited.
	if _, ok := c.lookup(l.cfg.AdapterID, version, l.requireExecutableEntry()); ok {
		return l.compose(c.slotDir(l.cfg.AdapterID, version), version)
	}

	// Sweep a half-valid slot (marker present, content gone or unusable).
	if _, present, _ := c.readMarker(l.cfg.AdapterID, version); present {
		l.log.Info("discarding corrupt cache slot", "version", version)
		if err := c.discard(l.cfg.AdapterID, version); err != nil {
			return adapter.ResolvedBinary{}, fmt.Errorf("%w: cannot discard corrupt cache slot: %w", adapter.ErrBinaryUnavailable, err)
		}
	}

	if ix == nil {
		ix, err = l.fetchIndex(ctx)
		if err != nil {
			return adapter.ResolvedBinary{}, fmt.Errorf("%w: %w", adapter.ErrBinaryUnavailable, err)
		}
	}

	release, err := ix.Release(version, l.platform)
	if err != nil {
		return adapter.ResolvedBinary{}, fmt.Errorf("%w: %w", adapter.ErrUnsupportedPlatform, err)
	}

	staging := c.stagingDir(l.cfg.AdapterID)
	if err := os.MkdirAll(staging, osutil.PermissionOnlyOwnerAll); err != nil {
		return adapter.ResolvedBinary{}, fmt.Errorf("%w: cannot create staging directory: %w", adapter.ErrBinaryUnavailable, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.RemoveAll(staging)
		}
	}()

	l.log.Info("provisioning adapter binary", "version", version, "url", release.URL)

	archivePath := filepath.Join(staging, ".artifact")
	if err := artifact.Download(ctx, l.client, release, archivePath, l.log); err != nil {
		return adapter.ResolvedBinary{}, fmt.Errorf("%w: download failed: %w", adapter.ErrBinaryUnavailable, err)
	}

	if err := artifact.Unpack(archivePath, release.Format, staging, l.cfg.BinaryName); err != nil {
		return adapter.ResolvedBinary{}, fmt.Errorf("%w: unpack failed: %w", adapter.ErrBinaryUnavailable, err)
	}
	_ = os.Remove(archivePath)

	entryPath := filepath.Join(staging, filepath.FromSlash(l.cfg.EntryRelPath))
	if _, err := os.Stat(entryPath); err != nil {
		return adapter.ResolvedBinary{}, fmt.Errorf("%w: artifact does not contain expected entry %s: %w", adapter.ErrBinaryUnavailable, l.cfg.EntryRelPath, err)
	}
	if l.requireExecutableEntry() {
		if err := osutil.MarkExecutable(entryPath); err != nil {
			return adapter.ResolvedBinary{}, fmt.Errorf("%w: %w", adapter.ErrBinaryUnavailable, err)
		}
	}

	marker := slotMarker{
		AdapterID:  l.cfg.AdapterID,
		Version:    version,
		Platform:   l.platform,
		Executable: l.cfg.EntryRelPath,
		FinishedAt: nowUTC(),
	}
	if err := c.commit(l.cfg.AdapterID, version, staging, marker); err != nil {
		return adapter.ResolvedBinary{}, fmt.Errorf("%w: %w", adapter.ErrBinaryUnavailable, err)
	}
	committed = true

	l.log.Info("adapter binary provisioned", "version", version)
	return l.compose(c.slotDir(l.cfg.AdapterID, version), version)
}

// compose builds the ResolvedBinary for a valid cache slot.
func (l *Locator) compose(slotDir, version string) (adapter.ResolvedBinary, error) {
	entryPath := filepath.Join(slotDir, filepath.FromSlash(l.cfg.EntryRelPath))
	expand := func(s string) string {
		s = strings.ReplaceAll(s, InstallPlaceholder, slotDir)
		return strings.ReplaceAll(s, EntryPlaceholder, entryPath)
	}

	args := make([]string, len(l.cfg.Args))
	for i, arg := range l.cfg.Args {
		args[i] = expand(arg)
	}
	env := copyEnv(l.cfg.Env)
	for k, v := range env {
		env[k] = expand(v)
	}

	if l.cfg.Interpreter != "" {
		interpreterPath, err := exec.LookPath(l.cfg.Interpreter)
		if err != nil {
			return adapter.ResolvedBinary{}, fmt.Errorf("%w: interpreter %q not found: %w", adapter.ErrBinaryUnavailable, l.cfg.Interpreter, err)
		}
		return adapter.ResolvedBinary{
			Path:    interpreterPath,
			Args:    args,
			Env:     env,
			Version: version,
		}, nil
	}

	return adapter.ResolvedBinary{
		Path:    entryPath,
		Args:    args,
		Env:     env,
		Version: version,
	}, nil
}

func (l *Locator) requireExecutableEntry() bool {
	return l.cfg.Interpreter == ""
}

func copyEnv(env map[string]string) map[string]string {
	if len(env) == 0 {
		return nil
	}
	out := make(map[string]string, len(env))
	for k, v := range env {
		out[k] = v
	}
	return out
}

// sortVersions orders version strings ascending, semver-aware with a lexical
// fallback for non-semver tags.
func sortVersions(versions []string) {
	sort.Slice(versions, func(i, j int) bool {
		a, b := canonical(versions[i]), canonical(versions[j])
		if semver.IsValid(a) && semver.IsValid(b) {
			return semver.Compare(a, b) < 0
		}
		return versions[i] < versions[j]
	})
}

func canonical(v string) string {
	if strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}
