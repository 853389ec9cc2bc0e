// Package artifact talks to remote release sources: it resolves version
// indexes, downloads release artifacts with integrity verification, and
// unpacks them into a staging directory. The locator owns cache layout and
// atomicity; this package owns the network and archive formats.
package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"golang.org/x/mod/semver"
)

// Format names the packaging of a release artifact.
type Format string

const (
	FormatZip    Format = "zip"
	FormatTarGz  Format = "tar.gz"
	FormatBinary Format = "binary" // a bare executable, no archive
)

// Release is one downloadable artifact: a concrete version built for one
// platform.
type Release struct {
	Version string `json:"version"`
	URL     string `json:"url"`
	SHA256  string `json:"sha256"`
	Format  Format `json:"format"`
}

// indexDocument is the JSON shape served by a release index endpoint.
type indexDocument struct {
	Versions []indexVersion `json:"versions"`
}

type indexVersion struct {
	Version   string             `json:"version"`
	Artifacts map[string]Release `json:"artifacts"` // keyed by platform ("linux-amd64")
}

// Index answers "what versions exist" and "where is the artifact for version
// V on platform P" for one adapter's release source.
type Index struct {
	versions []indexVersion
}

// FetchIndex downloads and parses the release index at url.
func FetchIndex(ctx context.Context, client *http.Client, url string) (*Index, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build index request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch release index %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPStatusError{URL: url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxIndexSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read release index %s: %w", url, err)
	}

	var doc indexDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse release index %s: %w", url, err)
	}
	return &Index{versions: doc.Versions}, nil
}

// maxIndexSize bounds index downloads; real indexes are a few KB.
const maxIndexSize = 4 * 1024 * 1024

// Latest returns the newest version that has an artifact for the platform.
// Versions are ordered by semver when they parse as semver, lexically
// otherwise.
func (ix *Index) Latest(platform string) (string, error) {
	var candidates []string
	for _, v := range ix.versions {
		if _, ok := v.Artifacts[platform]; ok {
			candidates = append(candidates, v.Version)
		}
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("release index has no artifacts for platform %s", platform)
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := canonicalVersion(candidates[i]), canonicalVersion(candidates[j])
		if semver.IsValid(a) && semver.IsValid(b) {
			return semver.Compare(a, b) < 0
		}
		return candidates[i] < candidates[j]
	})
	return candidates[len(candidates)-1], nil
}

// Release returns the artifact for an exact version on the platform.
func (ix *Index) Release(version, platform string) (Release, error) {
	for _, v := range ix.versions {
		if v.Version != version {
			continue
		}
		release, ok := v.Artifacts[platform]
		if !ok {
			return Release{}, fmt.Errorf("version %s has no artifact for platform %s", version, platform)
		}
		if release.Version == "" {
			release.Version = version
		}
		return release, nil
	}
	return Release{}, fmt.Errorf("version %s not present in release index", version)
}

// HasPlatform reports whether any version carries an artifact for the platform.
func (ix *Index) HasPlatform(platform string) bool {
	for _, v := range ix.versions {
		if _, ok := v.Artifacts[platform]; ok {
			return true
		}
	}
	return false
}

// HTTPStatusError is a non-2xx response from a release source. 4xx statuses
// are permanent (retrying cannot help); 5xx are transient.
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d fetching %s", e.StatusCode, e.URL)
}

// Transient reports whether retrying the request may succeed.
func (e *HTTPStatusError) Transient() bool {
	return e.StatusCode >= 500
}

func canonicalVersion(v string) string {
	if strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}
