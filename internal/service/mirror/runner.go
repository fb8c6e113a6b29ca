package mirror

import (
	"context"
	"fmt"

	"github.com/spf13/afero"

	"github.com/oshokin/firmware-mirror/internal/config"
	"github.com/oshokin/firmware-mirror/internal/domain/firmware"
	"github.com/oshokin/firmware-mirror/internal/logger"
	"github.com/oshokin/firmware-mirror/internal/repository/remote"
	"github.com/oshokin/firmware-mirror/internal/service/checker"
	"github.com/oshokin/firmware-mirror/internal/service/publisher"
)

// versionResolver is implemented by *resolver.Resolver.
type versionResolver interface {
	Resolve(ctx context.Context, override string) (firmware.Version, error)
}

// artifactFetcher is implemented by *fetcher.Fetcher.
type artifactFetcher interface {
	PrepareStaging(dir string) error
	FetchAll(ctx context.Context, version firmware.Version, archs []firmware.Architecture, stagingDir string) ([]string, error)
	RemoveStaging(dir string) error
}

// runner holds the dependencies of a single mirroring pass.
// It is unexported, call Run(ctx, Options) from callers.
type runner struct {
	cfg      *config.Config
	fs       afero.Fs
	resolver versionResolver
	fetcher  artifactFetcher
	// openStore connects to the remote; nil when no remote target is configured.
	openStore func(ctx context.Context) (remote.Store, error)
}

// Run executes the workflow for this runner instance:
// 1) Resolve the version (or take the override).
// 2) With a remote target, stop when it already has that version.
// 3) Download every artifact into a fresh staging dir.
// 4) With a remote target, publish and remove the staging dir.
func (r *runner) Run(ctx context.Context, override string) (Result, error) {
	version, err := r.resolver.Resolve(ctx, override)
	if err != nil {
		return ResultStaged, fmt.Errorf("resolve version: %w", err)
	}

	ctx = logger.WithKV(ctx, "version", version)

	if r.openStore != nil {
		var needed bool

		needed, err = r.isUpdateNeeded(ctx, version)
		if err != nil {
			return ResultStaged, err
		}

		if !needed {
			logger.Info(ctx, "No new version found, nothing to do")
			return ResultUpToDate, nil
		}
	}

	logger.InfoKV(ctx, "Downloading artifacts", "dir", r.cfg.StagingDir)

	if err = r.fetcher.PrepareStaging(r.cfg.StagingDir); err != nil {
		return ResultStaged, err
	}

	staged, err := r.fetcher.FetchAll(ctx, version, r.cfg.Architectures, r.cfg.StagingDir)
	if err != nil {
		return ResultStaged, fmt.Errorf("fetch artifacts: %w", err)
	}

	if r.openStore == nil {
		logger.InfoKV(ctx, "No remote target configured, artifacts left in staging dir",
			"dir", r.cfg.StagingDir, "files", len(staged))

		return ResultStaged, nil
	}

	if err = r.publish(ctx, version); err != nil {
		return ResultStaged, err
	}

	if err = r.fetcher.RemoveStaging(r.cfg.StagingDir); err != nil {
		logger.WarnKV(ctx, "Failed to remove staging dir", "dir", r.cfg.StagingDir, "error", err)
	}

	return ResultPublished, nil
}

// isUpdateNeeded connects to the remote just for the marker check. The
// connection is not kept across the downloads, which may outlive idle timeouts.
func (r *runner) isUpdateNeeded(ctx context.Context, version firmware.Version) (bool, error) {
	store, err := r.openStore(ctx)
	if err != nil {
		return false, fmt.Errorf("connect to remote: %w", err)
	}

	defer closeStore(ctx, store)

	return checker.New(store, r.cfg.MarkerName).IsUpdateNeeded(ctx, version), nil
}

// publish connects to the remote and replaces its contents with the staging dir.
func (r *runner) publish(ctx context.Context, version firmware.Version) error {
	store, err := r.openStore(ctx)
	if err != nil {
		return fmt.Errorf("connect to remote: %w", err)
	}

	defer closeStore(ctx, store)

	pub := publisher.New(store, r.fs, publisher.Options{
		MarkerName:      r.cfg.MarkerName,
		ArtifactPattern: r.cfg.ArtifactRegexp(),
		StagedUpload:    r.cfg.StagedUpload,
	})

	if err = pub.Publish(ctx, r.cfg.StagingDir, version); err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	return nil
}

func closeStore(ctx context.Context, store remote.Store) {
	if err := store.Close(); err != nil {
		logger.WarnKV(ctx, "Failed to close remote connection", "error", err)
	}
}
