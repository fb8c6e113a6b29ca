package publisher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/oshokin/firmware-mirror/internal/domain/firmware"
	"github.com/oshokin/firmware-mirror/internal/logger"
	"github.com/oshokin/firmware-mirror/internal/repository/remote"
)

// temporarySuffix ends the names of uploads awaiting commit.
const temporarySuffix = ".part"

// errNothingToPublish is returned when the staging dir holds no artifacts.
var errNothingToPublish = errors.New("no artifacts in staging dir")

// Options controls how a release is published.
type Options struct {
	// MarkerName is the remote object holding the published version.
	MarkerName string
	// ArtifactPattern selects artifacts in the staging dir and stale entries on the remote.
	ArtifactPattern *regexp.Regexp
	// StagedUpload uploads under temporary names and renames after all uploads succeeded.
	StagedUpload bool
}

// Publisher uploads staged artifacts to a remote store.
type Publisher struct {
	store remote.Store
	fs    afero.Fs
	opts  Options
}

// upload tracks one artifact on its way to the remote.
type upload struct {
	localPath  string
	remoteName string
	finalName  string
}

// New returns a Publisher reading staged files from fs. A nil fs means the OS file system.
func New(store remote.Store, fs afero.Fs, opts Options) *Publisher {
	if fs == nil {
		fs = afero.NewOsFs()
	}

	return &Publisher{
		store: store,
		fs:    fs,
		opts:  opts,
	}
}

// Publish replaces the remote artifacts with the ones in stagingDir and
// records version in the marker. Cleanup failures are logged and ignored;
// upload and commit failures abort before the marker is written. Objects
// committed before a failure stay on the remote.
func (p *Publisher) Publish(ctx context.Context, stagingDir string, version firmware.Version) error {
	uploads, err := p.plan(stagingDir)
	if err != nil {
		return err
	}

	p.deleteMarker(ctx)

	// Objects written by this run are never stale.
	pending := make(map[string]struct{}, len(uploads))
	for _, u := range uploads {
		pending[u.remoteName] = struct{}{}
	}

	if !p.opts.StagedUpload {
		p.removeStale(ctx, nil)
	}

	if err = p.uploadAll(ctx, uploads); err != nil {
		return err
	}

	if p.opts.StagedUpload {
		p.removeStale(ctx, pending)

		if err = p.commit(ctx, uploads); err != nil {
			return err
		}
	}

	return p.writeMarker(ctx, version)
}

// plan lists the staged artifacts and assigns their remote names.
func (p *Publisher) plan(stagingDir string) ([]upload, error) {
	entries, err := afero.ReadDir(p.fs, stagingDir)
	if err != nil {
		return nil, fmt.Errorf("read staging dir: %w", err)
	}

	uploads := make([]upload, 0, len(entries))

	for _, entry := range entries {
		name := entry.Name()
		if !entry.Mode().IsRegular() || !p.opts.ArtifactPattern.MatchString(name) {
			continue
		}

		remoteName := name
		if p.opts.StagedUpload {
			remoteName = name + "." + uuid.NewString() + temporarySuffix
		}

		uploads = append(uploads, upload{
			localPath:  filepath.Join(stagingDir, name),
			remoteName: remoteName,
			finalName:  name,
		})
	}

	if len(uploads) == 0 {
		return nil, fmt.Errorf("%s: %w", stagingDir, errNothingToPublish)
	}

	sort.Slice(uploads, func(i, j int) bool {
		return uploads[i].finalName < uploads[j].finalName
	})

	return uploads, nil
}

// deleteMarker removes the old marker; a missing marker is expected.
func (p *Publisher) deleteMarker(ctx context.Context) {
	err := p.store.Delete(ctx, p.opts.MarkerName)
	switch {
	case err == nil:
		logger.InfoKV(ctx, "Removed version marker", "marker", p.opts.MarkerName)
	case errors.Is(err, remote.ErrNotFound):
		logger.DebugKV(ctx, "No version marker to remove", "marker", p.opts.MarkerName)
	default:
		logger.WarnKV(ctx, "Failed to remove version marker", "marker", p.opts.MarkerName, "error", err)
	}
}

// removeStale deletes every remote entry matching the artifact pattern,
// except the names in keep. Each deletion is independent: a failure is
// logged and the loop goes on.
func (p *Publisher) removeStale(ctx context.Context, keep map[string]struct{}) {
	names, err := p.store.List(ctx)
	if err != nil {
		logger.WarnKV(ctx, "Unable to list remote entries, stale artifacts kept", "error", err)
		return
	}

	for _, name := range names {
		if _, ok := keep[name]; ok || !p.opts.ArtifactPattern.MatchString(name) {
			continue
		}

		err = p.store.Delete(ctx, name)
		switch {
		case err == nil:
			logger.InfoKV(ctx, "Removed", "file", name)
		case errors.Is(err, remote.ErrNotFound), errors.Is(err, remote.ErrPermission):
			logger.WarnKV(ctx, "Skipped stale artifact", "file", name, "error", err)
		default:
			logger.WarnKV(ctx, "Failed to remove stale artifact", "file", name, "error", err)
		}
	}
}

// uploadAll transfers every artifact. On failure the temporary objects
// uploaded so far are removed on a best-effort basis.
func (p *Publisher) uploadAll(ctx context.Context, uploads []upload) error {
	for i, u := range uploads {
		logger.InfoKV(ctx, "Transferring file", "file", u.finalName, "remote_name", u.remoteName)

		if err := p.uploadOne(ctx, u); err != nil {
			if p.opts.StagedUpload {
				p.discard(ctx, uploads[:i])
			}

			return fmt.Errorf("upload %s: %w", u.finalName, err)
		}
	}

	return nil
}

func (p *Publisher) uploadOne(ctx context.Context, u upload) error {
	file, err := p.fs.Open(u.localPath)
	if err != nil {
		return err
	}

	defer func() {
		_ = file.Close()
	}()

	return p.store.Store(ctx, u.remoteName, file)
}

// commit renames temporary uploads to their final names.
func (p *Publisher) commit(ctx context.Context, uploads []upload) error {
	for i, u := range uploads {
		if err := p.store.Rename(ctx, u.remoteName, u.finalName); err != nil {
			p.discard(ctx, uploads[i:])

			return fmt.Errorf("commit %s: %w", u.finalName, err)
		}
	}

	logger.InfoKV(ctx, "Committed uploads", "files", len(uploads))

	return nil
}

// discard deletes temporary uploads, ignoring failures.
func (p *Publisher) discard(ctx context.Context, uploads []upload) {
	for _, u := range uploads {
		if err := p.store.Delete(ctx, u.remoteName); err != nil {
			logger.WarnKV(ctx, "Failed to remove temporary upload", "remote_name", u.remoteName, "error", err)
		}
	}
}

// writeMarker stores version without a trailing newline.
func (p *Publisher) writeMarker(ctx context.Context, version firmware.Version) error {
	if err := p.store.Store(ctx, p.opts.MarkerName, bytes.NewReader([]byte(version))); err != nil {
		return fmt.Errorf("write version marker: %w", err)
	}

	logger.InfoKV(ctx, "Version marker written", "marker", p.opts.MarkerName, "version", version)

	return nil
}
