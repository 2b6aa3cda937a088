// Package packaging builds zip deployment packages for function sources.
package packaging

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DefaultExcludes are path fragments and extensions never shipped inside a
// deployment package.
var DefaultExcludes = []string{
	".git", "__pycache__", "*.pyc", "*.pyo", "*.pyd", ".DS_Store", "node_modules",
}

// Archive builds an in-memory zip package from a function source path.
// A file path produces a single-entry archive; a directory is archived
// recursively with DefaultExcludes applied.
func Archive(path string) ([]byte, error) {
	return ArchiveWithExcludes(path, DefaultExcludes)
}

// ArchiveWithExcludes builds a zip package applying the given exclusion
// patterns. Patterns starting with '*' match file suffixes; anything else
// matches as a path substring.
func ArchiveWithExcludes(path string, excludes []string) ([]byte, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("path %q does not exist", path)
		}
		return nil, fmt.Errorf("failed to stat path: %w", err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	if info.IsDir() {
		err = archiveDir(zw, absPath, excludes)
	} else {
		err = archiveFile(zw, absPath, filepath.Base(absPath))
	}
	if err != nil {
		_ = zw.Close()
		return nil, err
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize package: %w", err)
	}

	return buf.Bytes(), nil
}

func archiveDir(zw *zip.Writer, root string, excludes []string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if shouldExclude(path, excludes) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("failed to relativize %q: %w", path, err)
		}
		return archiveFile(zw, path, filepath.ToSlash(rel))
	})
}

func archiveFile(zw *zip.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %q: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %q: %w", path, err)
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("failed to build zip header: %w", err)
	}
	header.Name = name
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to create zip entry: %w", err)
	}
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to write zip entry %q: %w", name, err)
	}
	return nil
}

func shouldExclude(path string, excludes []string) bool {
	for _, pattern := range excludes {
		if strings.HasPrefix(pattern, "*") {
			if strings.HasSuffix(path, pattern[1:]) {
				return true
			}
		} else if strings.Contains(path, pattern) {
			return true
		}
	}
	return false
}
