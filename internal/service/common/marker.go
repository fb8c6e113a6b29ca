//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/firmware-mirror/internal/logger"
)

// markerFileMode is the permission of the run marker file.
const markerFileMode = 0o600

// ErrAlreadyRunning is returned when a live process holds the run marker.
var ErrAlreadyRunning = errors.New("another mirror run is in progress")

// Marker is a held run marker. Release removes it.
type Marker struct {
	path string
}

// AcquireMarker creates the run marker at path holding the current PID.
// A marker left by a process that is no longer alive is reclaimed.
// The marker appears atomically with its contents, so two runs racing for
// the same path never both succeed.
func AcquireMarker(ctx context.Context, path string) (*Marker, error) {
	path = filepath.Clean(path)

	for range 2 {
		err := createMarker(path)
		if err == nil {
			return &Marker{path: path}, nil
		}

		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("write run marker: %w", err)
		}

		// IsRunningNow removes a stale marker, so one retry is enough.
		if IsRunningNow(ctx, path) {
			break
		}
	}

	return nil, fmt.Errorf("%s: %w", path, ErrAlreadyRunning)
}

// createMarker writes the PID into a temporary file and links it to path.
// Linking fails with os.ErrExist when path is already taken.
func createMarker(path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}

	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	_, err = tmp.WriteString(strconv.Itoa(os.Getpid()))
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		return err
	}

	if err = os.Chmod(tmp.Name(), markerFileMode); err != nil {
		return err
	}

	return os.Link(tmp.Name(), path)
}

// Release removes the marker. Safe to call on nil.
func (m *Marker) Release(ctx context.Context) {
	if m == nil {
		return
	}

	if err := os.Remove(m.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.WarnKV(ctx, "Failed to remove run marker", "path", m.path, "error", err)
	}
}

// IsRunningNow reports whether the marker at path belongs to a live process
// other than the current one. Stale or unreadable markers are removed.
func IsRunningNow(ctx context.Context, path string) bool {
	contents, err := os.ReadFile(filepath.Clean(path))
	if errors.Is(err, os.ErrNotExist) {
		logger.DebugKV(ctx, "Run marker not found, continuing", "path", path)
		return false
	}

	if err != nil {
		logger.WarnKV(ctx, "Unable to read run marker", "path", path, "error", err)
		return false
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(contents)))
	if err == nil {
		if pid == os.Getpid() {
			return false
		}

		process, findErr := ps.FindProcess(pid)
		if findErr == nil && process != nil {
			return true
		}
	}

	logger.InfoKV(ctx, "Removing stale run marker", "path", path)

	if err = os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.WarnKV(ctx, "Unable to remove stale run marker", "path", path, "error", err)
		return true
	}

	return false
}
