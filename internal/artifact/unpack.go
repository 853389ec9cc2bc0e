package artifact

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ashpool37/dapbridge/pkg/osutil"
)

// ErrUnsafeArchivePath is returned when an archive entry would escape the
// destination directory.
var ErrUnsafeArchivePath = errors.New("archive entry path escapes destination")

// Unpack expands the artifact at archivePath into destDir according to its
// format. For FormatBinary the file is copied to destDir under binaryName and
// marked executable.
func Unpack(archivePath string, format Format, destDir, binaryName string) error {
	switch format {
	case FormatZip:
		return unpackZip(archivePath, destDir)
	case FormatTarGz:
		return unpackTarGz(archivePath, destDir)
	case FormatBinary:
		return installBinary(archivePath, destDir, binaryName)
	default:
		return fmt.Errorf("unknown artifact format %q", format)
	}
}

func unpackZip(archivePath, destDir string) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open zip archive: %w", err)
	}
	defer reader.Close()

	for _, entry := range reader.File {
		target, err := safeJoin(destDir, entry.Name)
		if err != nil {
			return err
		}

		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, osutil.PermissionOnlyOwnerAll); err != nil {
				return err
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), osutil.PermissionOnlyOwnerAll); err != nil {
			return err
		}

		src, err := entry.Open()
		if err != nil {
			return fmt.Errorf("failed to read zip entry %s: %w", entry.Name, err)
		}
		writeErr := writeFile(target, src, entry.Mode())
		src.Close()
		if writeErr != nil {
			return fmt.Errorf("failed to extract %s: %w", entry.Name, writeErr)
		}
	}
	return nil
}

func unpackTarGz(archivePath, destDir string) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer file.Close()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return fmt.Errorf("failed to open gzip stream: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read tar stream: %w", err)
		}

		target, err := safeJoin(destDir, header.Name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, osutil.PermissionOnlyOwnerAll); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), osutil.PermissionOnlyOwnerAll); err != nil {
				return err
			}
			if err := writeFile(target, tr, os.FileMode(header.Mode)); err != nil {
				return fmt.Errorf("failed to extract %s: %w", header.Name, err)
			}
		case tar.TypeSymlink:
			// Adapter release archives occasionally carry relative symlinks
			// (shared libraries). Absolute link targets are rejected.
			if filepath.IsAbs(header.Linkname) {
				return fmt.Errorf("%w: absolute symlink %s", ErrUnsafeArchivePath, header.Name)
			}
			if _, err := safeJoin(filepath.Dir(target), header.Linkname); err != nil {
				return err
			}
			if err := os.Symlink(header.Linkname, target); err != nil && !errors.Is(err, os.ErrExist) {
				return fmt.Errorf("failed to create symlink %s: %w", header.Name, err)
			}
		default:
			// Skip device nodes and other exotica.
		}
	}
}

func installBinary(srcPath, destDir, binaryName string) error {
	if binaryName == "" {
		binaryName = filepath.Base(srcPath)
	}
	binaryName = osutil.EnsureExeExtension(binaryName)

	if err := os.MkdirAll(destDir, osutil.PermissionOnlyOwnerAll); err != nil {
		return err
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("failed to open downloaded binary: %w", err)
	}
	defer src.Close()

	target := filepath.Join(destDir, binaryName)
	if err := writeFile(target, src, osutil.PermissionOwnerAllOthersReadExecute); err != nil {
		return fmt.Errorf("failed to install binary: %w", err)
	}
	return osutil.MarkExecutable(target)
}

func writeFile(target string, src io.Reader, mode os.FileMode) error {
	perm := mode.Perm()
	if perm == 0 {
		perm = osutil.PermissionOwnerReadWriteOthersRead
	}
	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	_, copyErr := io.Copy(dst, src)
	closeErr := dst.Close()
	return errors.Join(copyErr, closeErr)
}

// safeJoin joins name onto destDir, rejecting entries that would land outside
// destDir (zip-slip).
func safeJoin(destDir, name string) (string, error) {
	target := filepath.Join(destDir, filepath.FromSlash(name))
	cleanDest := filepath.Clean(destDir)
	if target != cleanDest && !strings.HasPrefix(target, cleanDest+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %s", ErrUnsafeArchivePath, name)
	}
	return target, nil
}
