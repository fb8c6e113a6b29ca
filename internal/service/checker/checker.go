package checker

import (
	"bytes"
	"context"
	"errors"

	"github.com/oshokin/firmware-mirror/internal/domain/firmware"
	"github.com/oshokin/firmware-mirror/internal/logger"
	"github.com/oshokin/firmware-mirror/internal/repository/remote"
)

// Checker compares the remote version marker with a resolved version.
type Checker struct {
	store      remote.Store
	markerName string
}

// New returns a Checker reading markerName from store.
func New(store remote.Store, markerName string) *Checker {
	return &Checker{
		store:      store,
		markerName: markerName,
	}
}

// IsUpdateNeeded reports whether version differs from the published one.
// A missing or unreadable marker means an update is needed, so a broken
// remote is republished rather than silently skipped. The comparison is
// byte-exact: a trailing newline in the marker counts as a difference.
func (c *Checker) IsUpdateNeeded(ctx context.Context, version firmware.Version) bool {
	published, err := c.store.Retrieve(ctx, c.markerName)
	if err != nil {
		if errors.Is(err, remote.ErrNotFound) {
			logger.InfoKV(ctx, "No version marker on remote, update needed", "marker", c.markerName)
		} else {
			logger.WarnKV(ctx, "Unable to read version marker, update needed", "marker", c.markerName, "error", err)
		}

		return true
	}

	if !bytes.Equal(published, []byte(version)) {
		logger.InfoKV(ctx, "Version mismatch detected", "remote", string(published), "latest", version)
		return true
	}

	logger.InfoKV(ctx, "Remote already has the latest version", "version", version)

	return false
}
