package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/ashpool37/dapbridge/pkg/osutil"
	"github.com/ashpool37/dapbridge/pkg/resiliency"
)

const (
	// downloadAttempts bounds how many times a single artifact download is
	// tried before the failure is surfaced.
	downloadAttempts = 3

	// downloadBackoffInitial is the initial delay between attempts.
	downloadBackoffInitial = 250 * time.Millisecond
)

// ErrChecksumMismatch is returned when a downloaded artifact does not match
// its declared SHA-256 digest.
var ErrChecksumMismatch = errors.New("artifact checksum mismatch")

// Download fetches the release artifact into destPath, retrying transient
// failures with backoff. The file is written through a temporary name and
// renamed on success so a failed or cancelled download never leaves a
// plausible-looking file behind.
func Download(ctx context.Context, client *http.Client, release Release, destPath string, log logr.Logger) error {
	attempt := 0
	_, err := resiliency.RetryGetBounded(ctx, downloadAttempts, downloadBackoffInitial, func() (struct{}, error) {
		attempt++
		log.V(1).Info("downloading artifact", "url", release.URL, "attempt", attempt)

		err := downloadOnce(ctx, client, release, destPath)
		if err == nil {
			return struct{}{}, nil
		}

		var statusErr *HTTPStatusError
		if errors.As(err, &statusErr) && !statusErr.Transient() {
			return struct{}{}, resiliency.Permanent(err)
		}
		if errors.Is(err, ErrChecksumMismatch) {
			// A digest mismatch on a complete download will not fix itself.
			return struct{}{}, resiliency.Permanent(err)
		}
		log.V(1).Info("artifact download attempt failed", "url", release.URL, "attempt", attempt, "error", err)
		return struct{}{}, err
	})
	return err
}

func downloadOnce(ctx context.Context, client *http.Client, release Release, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, release.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to build download request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", release.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &HTTPStatusError{URL: release.URL, StatusCode: resp.StatusCode}
	}

	tmpPath := destPath + ".download"
	tmpFile, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, osutil.PermissionOwnerReadWriteOthersRead)
	if err != nil {
		return fmt.Errorf("failed to create download file: %w", err)
	}

	hasher := sha256.New()
	_, copyErr := io.Copy(io.MultiWriter(tmpFile, hasher), resp.Body)
	closeErr := tmpFile.Close()
	if copyErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write artifact: %w", copyErr)
	}
	if closeErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to finish artifact write: %w", closeErr)
	}

	if release.SHA256 != "" {
		actual := hex.EncodeToString(hasher.Sum(nil))
		if !strings.EqualFold(actual, release.SHA256) {
			_ = os.Remove(tmpPath)
			return fmt.Errorf("%w: expected %s, got %s", ErrChecksumMismatch, release.SHA256, actual)
		}
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to finalize artifact download: %w", err)
	}
	return nil
}
