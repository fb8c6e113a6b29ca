package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"
)

// defaultDirMode is used when creating the store root.
const defaultDirMode = 0o755

// FSStore keeps objects as files in a single directory.
type FSStore struct {
	fs afero.Fs
}

// NewFSStore returns a store rooted at dir on fsys, creating dir if needed.
func NewFSStore(fsys afero.Fs, dir string) (*FSStore, error) {
	if err := fsys.MkdirAll(dir, defaultDirMode); err != nil {
		return nil, fmt.Errorf("create store root: %w", err)
	}

	return &FSStore{fs: afero.NewBasePathFs(fsys, dir)}, nil
}

// List returns regular file names sorted alphabetically.
func (s *FSStore) List(_ context.Context) ([]string, error) {
	entries, err := afero.ReadDir(s.fs, "/")
	if err != nil {
		return nil, fmt.Errorf("list: %w", classifyFS(err))
	}

	names := make([]string, 0, len(entries))

	for _, entry := range entries {
		if entry.Mode().IsRegular() {
			names = append(names, entry.Name())
		}
	}

	sort.Strings(names)

	return names, nil
}

// Retrieve reads name.
func (s *FSStore) Retrieve(_ context.Context, name string) ([]byte, error) {
	data, err := afero.ReadFile(s.fs, clean(name))
	if err != nil {
		return nil, fmt.Errorf("retrieve %s: %w", name, classifyFS(err))
	}

	return data, nil
}

// Store writes r to name.
func (s *FSStore) Store(_ context.Context, name string, r io.Reader) error {
	file, err := s.fs.OpenFile(clean(name), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("store %s: %w", name, classifyFS(err))
	}

	if _, err = io.Copy(file, r); err != nil {
		_ = file.Close()

		return fmt.Errorf("store %s: %w", name, err)
	}

	if err = file.Close(); err != nil {
		return fmt.Errorf("store %s: %w", name, err)
	}

	return nil
}

// Delete removes name.
func (s *FSStore) Delete(_ context.Context, name string) error {
	if err := s.fs.Remove(clean(name)); err != nil {
		return fmt.Errorf("delete %s: %w", name, classifyFS(err))
	}

	return nil
}

// Rename moves from to to, replacing an existing to.
func (s *FSStore) Rename(_ context.Context, from, to string) error {
	if err := s.fs.Rename(clean(from), clean(to)); err != nil {
		return fmt.Errorf("rename %s to %s: %w", from, to, classifyFS(err))
	}

	return nil
}

// Close is a no-op.
func (s *FSStore) Close() error {
	return nil
}

// clean keeps names inside the store root.
func clean(name string) string {
	return filepath.Join("/", filepath.Base(name))
}

// classifyFS maps file system errors to the store sentinels, keeping the cause.
func classifyFS(err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return errors.Join(ErrNotFound, err)
	case errors.Is(err, fs.ErrPermission):
		return errors.Join(ErrPermission, err)
	default:
		return err
	}
}
