package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/oshokin/firmware-mirror/internal/domain/firmware"
	"github.com/oshokin/firmware-mirror/internal/logger"
)

// stagingDirMode is the permission of the staging directory.
const stagingDirMode = 0o755

var (
	// ErrArtifactUnavailable is returned when every template of a required artifact failed.
	ErrArtifactUnavailable = errors.New("artifact unavailable")
	// errBadHTTPStatus is returned for non-2xx responses.
	errBadHTTPStatus = errors.New("unexpected http status")
)

// Catalog describes what to download for a release.
type Catalog struct {
	// Primary templates locate the required system package.
	Primary []firmware.Template
	// Extended templates locate the legacy-only package of extended architectures.
	Extended []firmware.Template
	// Bundle templates locate the archive of optional packages.
	Bundle []firmware.Template
	// ExtendedArchitectures receive the extended package.
	ExtendedArchitectures []firmware.Architecture
	// LegacyMajor is the release line the extended package exists for.
	LegacyMajor int
}

// Fetcher downloads artifacts with a dedicated HTTP client onto an afero file system.
type Fetcher struct {
	client   *http.Client
	fs       afero.Fs
	catalog  Catalog
	progress io.Writer
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithProgress renders a byte progress bar per transfer to w.
func WithProgress(w io.Writer) Option {
	return func(f *Fetcher) {
		f.progress = w
	}
}

// New returns a Fetcher. A nil fs means the OS file system.
func New(client *http.Client, fs afero.Fs, catalog Catalog, opts ...Option) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}

	if fs == nil {
		fs = afero.NewOsFs()
	}

	f := &Fetcher{
		client:  client,
		fs:      fs,
		catalog: catalog,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// PrepareStaging removes dir with everything in it and creates it empty.
func (f *Fetcher) PrepareStaging(dir string) error {
	if err := f.fs.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove staging dir: %w", err)
	}

	if err := f.fs.MkdirAll(dir, stagingDirMode); err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}

	return nil
}

// RemoveStaging deletes dir.
func (f *Fetcher) RemoveStaging(dir string) error {
	if err := f.fs.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove staging dir: %w", err)
	}

	return nil
}

// FetchAll downloads every artifact of version for archs into stagingDir,
// one architecture after another, and returns the staged file paths.
// The first artifact that cannot be fetched aborts the run.
func (f *Fetcher) FetchAll(
	ctx context.Context,
	version firmware.Version,
	archs []firmware.Architecture,
	stagingDir string,
) ([]string, error) {
	var (
		staged = make([]string, 0, len(archs)*2)
		seen   = make(map[string]struct{}, len(archs)*2)
	)

	add := func(paths ...string) {
		for _, p := range paths {
			if _, ok := seen[p]; ok {
				continue
			}

			seen[p] = struct{}{}
			staged = append(staged, p)
		}
	}

	for _, arch := range archs {
		archCtx := logger.WithKV(ctx, "arch", arch)

		paths, err := f.fetchArchitecture(archCtx, version, arch, stagingDir)
		if err != nil {
			return nil, err
		}

		add(paths...)
	}

	logger.InfoKV(ctx, "All artifacts staged", "version", version, "files", len(staged), "dir", stagingDir)

	return staged, nil
}

// fetchArchitecture downloads the primary package, the extended package when
// eligible, and the bundle for a single architecture.
func (f *Fetcher) fetchArchitecture(
	ctx context.Context,
	version firmware.Version,
	arch firmware.Architecture,
	stagingDir string,
) ([]string, error) {
	paths := make([]string, 0, 1)

	primary, err := f.fetchFirst(ctx, firmware.KindPrimary, f.catalog.Primary, version, arch, stagingDir)
	if err != nil {
		return nil, err
	}

	paths = append(paths, primary)

	if f.wantsExtended(version, arch) {
		var extended string

		extended, err = f.fetchFirst(ctx, firmware.KindExtended, f.catalog.Extended, version, arch, stagingDir)
		if err != nil {
			return nil, err
		}

		paths = append(paths, extended)
	}

	if len(f.catalog.Bundle) == 0 {
		return paths, nil
	}

	archive, err := f.fetchFirst(ctx, firmware.KindBundle, f.catalog.Bundle, version, arch, stagingDir)
	if err != nil {
		return nil, err
	}

	logger.InfoKV(ctx, "Unpacking bundle", "archive", filepath.Base(archive))

	extracted, err := extract(f.fs, archive, stagingDir)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", filepath.Base(archive), err)
	}

	if err = f.fs.Remove(archive); err != nil {
		return nil, fmt.Errorf("remove %s: %w", filepath.Base(archive), err)
	}

	return append(paths, extracted...), nil
}

// wantsExtended reports whether arch gets the extended package for version.
func (f *Fetcher) wantsExtended(version firmware.Version, arch firmware.Architecture) bool {
	return len(f.catalog.Extended) > 0 &&
		version.InReleaseLine(f.catalog.LegacyMajor) &&
		firmware.Contains(f.catalog.ExtendedArchitectures, arch)
}

// fetchFirst tries templates in order and returns the path of the first
// successful download. Every architecture walks the full list again, since
// the vendor does not name files uniformly across architectures.
func (f *Fetcher) fetchFirst(
	ctx context.Context,
	kind firmware.ArtifactKind,
	templates []firmware.Template,
	version firmware.Version,
	arch firmware.Architecture,
	stagingDir string,
) (string, error) {
	attempts := make([]error, 0, len(templates))

	for _, tpl := range templates {
		artifactURL := tpl.Render(version, arch)

		path, err := f.download(ctx, artifactURL, stagingDir)
		if err == nil {
			return path, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}

		logger.WarnKV(ctx, "Download failed, trying next template", "kind", kind, "url", artifactURL, "error", err)

		attempts = append(attempts, err)
	}

	return "", fmt.Errorf("%s package for %s %s: %w",
		kind, arch, version, errors.Join(ErrArtifactUnavailable, errors.Join(attempts...)))
}
