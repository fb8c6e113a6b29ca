package fetcher

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/spf13/afero"
)

// ErrInvalidArchive is returned for archives with entries escaping the staging dir.
var ErrInvalidArchive = errors.New("invalid bundle archive")

// extract unpacks the zip archive at archivePath into dir and returns the extracted file paths.
func extract(fs afero.Fs, archivePath, dir string) ([]string, error) {
	file, err := fs.Open(archivePath)
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = file.Close()
	}()

	info, err := file.Stat()
	if err != nil {
		return nil, err
	}

	reader, err := zip.NewReader(file, info.Size())
	if err != nil {
		return nil, errors.Join(ErrInvalidArchive, err)
	}

	extracted := make([]string, 0, len(reader.File))

	for _, entry := range reader.File {
		target, err := entryPath(dir, entry.Name)
		if err != nil {
			return nil, err
		}

		if entry.FileInfo().IsDir() {
			if err = fs.MkdirAll(target, stagingDirMode); err != nil {
				return nil, err
			}

			continue
		}

		if err = extractFile(fs, entry, target); err != nil {
			return nil, fmt.Errorf("extract %s: %w", entry.Name, err)
		}

		extracted = append(extracted, target)
	}

	return extracted, nil
}

// entryPath resolves an archive entry name inside dir, rejecting traversal.
func entryPath(dir, name string) (string, error) {
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("%s: %w", name, ErrInvalidArchive)
	}

	target := filepath.Join(dir, name)

	rel, err := filepath.Rel(dir, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s: %w", name, ErrInvalidArchive)
	}

	return target, nil
}

func extractFile(fs afero.Fs, entry *zip.File, target string) error {
	if err := fs.MkdirAll(filepath.Dir(target), stagingDirMode); err != nil {
		return err
	}

	src, err := entry.Open()
	if err != nil {
		return err
	}

	defer func() {
		_ = src.Close()
	}()

	dst, err := fs.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, entry.Mode().Perm()|0o600)
	if err != nil {
		return err
	}

	//nolint:gosec // Bundles come from the vendor and hold a handful of packages.
	if _, err = io.Copy(dst, src); err != nil {
		_ = dst.Close()

		return err
	}

	return dst.Close()
}
