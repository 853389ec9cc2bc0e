package artifact

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashpool37/dapbridge/pkg/logger"
)

const indexJSON = `{
	"versions": [
		{
			"version": "1.2.0",
			"artifacts": {
				"linux-amd64": {"url": "https://example.invalid/a-1.2.0.zip", "sha256": "", "format": "zip"}
			}
		},
		{
			"version": "1.10.0",
			"artifacts": {
				"linux-amd64": {"url": "https://example.invalid/a-1.10.0.zip", "sha256": "", "format": "zip"},
				"darwin-arm64": {"url": "https://example.invalid/a-1.10.0-mac.zip", "sha256": "", "format": "zip"}
			}
		},
		{
			"version": "1.9.3",
			"artifacts": {
				"linux-amd64": {"url": "https://example.invalid/a-1.9.3.zip", "sha256": "", "format": "zip"}
			}
		}
	]
}`

func TestFetchIndexAndResolveLatest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(indexJSON))
	}))
	defer server.Close()

	ix, err := FetchIndex(context.Background(), server.Client(), server.URL)
	require.NoError(t, err)

	// Semver ordering, not lexical: 1.10.0 > 1.9.3.
	latest, err := ix.Latest("linux-amd64")
	require.NoError(t, err)
	assert.Equal(t, "1.10.0", latest)

	latestMac, err := ix.Latest("darwin-arm64")
	require.NoError(t, err)
	assert.Equal(t, "1.10.0", latestMac)

	_, err = ix.Latest("plan9-386")
	assert.Error(t, err)

	assert.True(t, ix.HasPlatform("linux-amd64"))
	assert.False(t, ix.HasPlatform("plan9-386"))
}

func TestIndexRelease(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(indexJSON))
	}))
	defer server.Close()

	ix, err := FetchIndex(context.Background(), server.Client(), server.URL)
	require.NoError(t, err)

	release, err := ix.Release("1.9.3", "linux-amd64")
	require.NoError(t, err)
	assert.Equal(t, "1.9.3", release.Version)
	assert.Equal(t, FormatZip, release.Format)

	_, err = ix.Release("0.0.1", "linux-amd64")
	assert.Error(t, err)

	_, err = ix.Release("1.9.3", "plan9-386")
	assert.Error(t, err)
}

func TestFetchIndexSurfacesHTTPStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := FetchIndex(context.Background(), server.Client(), server.URL)
	require.Error(t, err)

	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.True(t, statusErr.Transient())
}

func TestDownloadRetriesTransientFailures(t *testing.T) {
	payload := []byte("adapter binary payload")
	digest := sha256.Sum256(payload)

	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "artifact.bin")
	release := Release{URL: server.URL, SHA256: hex.EncodeToString(digest[:]), Format: FormatBinary}

	err := Download(context.Background(), server.Client(), release, dest, logger.Discard())
	require.NoError(t, err, "two transient failures followed by success must not surface an error")
	assert.Equal(t, int32(3), attempts.Load(), "exactly three download attempts expected")

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestDownloadDoesNotRetryClientErrors(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "artifact.bin")
	err := Download(context.Background(), server.Client(), Release{URL: server.URL}, dest, logger.Discard())
	require.Error(t, err)
	assert.Equal(t, int32(1), attempts.Load(), "4xx must fail without retry")
}

func TestDownloadChecksumMismatchIsPermanent(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		_, _ = w.Write([]byte("not what was promised"))
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "artifact.bin")
	release := Release{URL: server.URL, SHA256: hex.EncodeToString(bytes.Repeat([]byte{0xab}, 32))}

	err := Download(context.Background(), server.Client(), release, dest, logger.Discard())
	require.ErrorIs(t, err, ErrChecksumMismatch)
	assert.Equal(t, int32(1), attempts.Load())

	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr), "no artifact file may remain after a failed download")
}

func TestUnpackZip(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, err := zw.Create("bin/tool")
	require.NoError(t, err)
	_, err = f.Write([]byte("#!/bin/sh\necho tool\n"))
	require.NoError(t, err)
	f, err = zw.Create("share/readme.txt")
	require.NoError(t, err)
	_, err = f.Write([]byte("docs"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	dir := t.TempDir()
	archive := filepath.Join(dir, "a.zip")
	require.NoError(t, os.WriteFile(archive, buf.Bytes(), 0o644))

	dest := filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(dest, 0o755))
	require.NoError(t, Unpack(archive, FormatZip, dest, ""))

	got, err := os.ReadFile(filepath.Join(dest, "bin", "tool"))
	require.NoError(t, err)
	assert.Contains(t, string(got), "echo tool")

	_, err = os.Stat(filepath.Join(dest, "share", "readme.txt"))
	assert.NoError(t, err)
}

func TestUnpackZipRejectsPathEscape(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, err := zw.Create("../escape.txt")
	require.NoError(t, err)
	_, err = f.Write([]byte("evil"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	dir := t.TempDir()
	archive := filepath.Join(dir, "a.zip")
	require.NoError(t, os.WriteFile(archive, buf.Bytes(), 0o644))

	dest := filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(dest, 0o755))
	err = Unpack(archive, FormatZip, dest, "")
	assert.ErrorIs(t, err, ErrUnsafeArchivePath)
}

func TestUnpackTarGz(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	content := []byte("binary bits")
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name:     "adapter/dbg",
		Mode:     0o755,
		Size:     int64(len(content)),
		Typeflag: tar.TypeReg,
	}))
	_, err := tw.Write(content)
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	dir := t.TempDir()
	archive := filepath.Join(dir, "a.tar.gz")
	require.NoError(t, os.WriteFile(archive, buf.Bytes(), 0o644))

	dest := filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(dest, 0o755))
	require.NoError(t, Unpack(archive, FormatTarGz, dest, ""))

	info, err := os.Stat(filepath.Join(dest, "adapter", "dbg"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}

func TestUnpackBinary(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "downloaded")
	require.NoError(t, os.WriteFile(src, []byte("elf bits"), 0o644))

	dest := filepath.Join(dir, "out")
	require.NoError(t, Unpack(src, FormatBinary, dest, "dbg"))

	info, err := os.Stat(filepath.Join(dest, "dbg"))
	require.NoError(t, err)
	assert.NotZero(t, info.Mode().Perm()&0o100, "installed binary must be executable")
}
