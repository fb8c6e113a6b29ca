package mirror

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/afero"

	"github.com/oshokin/firmware-mirror/internal/config"
	"github.com/oshokin/firmware-mirror/internal/logger"
	"github.com/oshokin/firmware-mirror/internal/repository/remote"
	"github.com/oshokin/firmware-mirror/internal/service/common"
	"github.com/oshokin/firmware-mirror/internal/service/fetcher"
	"github.com/oshokin/firmware-mirror/internal/service/resolver"
)

// Options are inputs accepted by the mirror entry point.
// Non-empty fields override the configuration file.
type Options struct {
	// ConfigPath is the optional path to a YAML configuration file.
	ConfigPath string
	// Version pins the release to mirror; empty means the latest from the feed.
	Version string
	// StagingDir overrides the local download directory.
	StagingDir string
	// RemoteURL overrides the publishing target.
	RemoteURL string
	// Username and Password override the remote credentials.
	Username string
	Password string
	// InsecureSkipVerify disables TLS verification for vendor downloads.
	InsecureSkipVerify bool
	// Progress receives download progress bars; nil disables them.
	Progress io.Writer
}

// Result tells how a successful run ended.
type Result int

const (
	// ResultStaged means artifacts were downloaded and left for inspection.
	ResultStaged Result = iota
	// ResultPublished means the remote now holds the new release.
	ResultPublished
	// ResultUpToDate means the remote already had the release; nothing was done.
	ResultUpToDate
)

// String implements fmt.Stringer.
func (r Result) String() string {
	switch r {
	case ResultStaged:
		return "staged"
	case ResultPublished:
		return "published"
	case ResultUpToDate:
		return "up-to-date"
	default:
		return fmt.Sprintf("Result(%d)", int(r))
	}
}

// Run executes one mirroring pass and is the public entry point for the CLI.
func Run(ctx context.Context, opts *Options) (Result, error) {
	ctx = logger.WithName(ctx, "firmware-mirror")

	cfg, err := loadConfig(opts)
	if err != nil {
		return ResultStaged, err
	}

	marker, err := common.AcquireMarker(ctx, cfg.RunMarker)
	if err != nil {
		return ResultStaged, err
	}

	defer marker.Release(ctx)

	result, err := newRunner(cfg, opts.Progress).Run(ctx, opts.Version)
	if err != nil {
		return result, err
	}

	logger.InfoKV(ctx, "Mirror run completed", "result", result)

	return result, nil
}

// loadConfig reads the config file and applies CLI and environment overrides.
func loadConfig(opts *Options) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	if opts.StagingDir != "" {
		cfg.StagingDir = opts.StagingDir
	}

	if opts.RemoteURL != "" {
		cfg.Remote.URL = opts.RemoteURL
	}

	if opts.Username != "" {
		cfg.Remote.Username = opts.Username
	}

	if opts.Password != "" {
		cfg.Remote.Password = opts.Password
	}

	if opts.InsecureSkipVerify {
		cfg.InsecureSkipVerify = true
	}

	config.ApplyEnv(cfg)

	if err = config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate configuration: %w", err)
	}

	return cfg, nil
}

// newRunner wires the production dependencies described by cfg.
func newRunner(cfg *config.Config, progress io.Writer) *runner {
	client := common.NewHTTPClient(common.HTTPOptions{
		Timeout:            cfg.Timeout,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	})

	fs := afero.NewOsFs()

	var fetcherOptions []fetcher.Option
	if progress != nil {
		fetcherOptions = append(fetcherOptions, fetcher.WithProgress(progress))
	}

	r := &runner{
		cfg:      cfg,
		fs:       fs,
		resolver: resolver.New(client, cfg.FeedURL, cfg.TitleRegexp()),
		fetcher: fetcher.New(client, fs, fetcher.Catalog{
			Primary:               cfg.Templates.Primary,
			Extended:              cfg.Templates.Extended,
			Bundle:                cfg.Templates.Bundle,
			ExtendedArchitectures: cfg.ExtendedArchitectures,
			LegacyMajor:           cfg.LegacyMajor,
		}, fetcherOptions...),
	}

	if cfg.HasRemote() {
		target := remote.Target{
			URL:      cfg.Remote.URL,
			Username: cfg.Remote.Username,
			Password: cfg.Remote.Password,
			Timeout:  cfg.Remote.DialTimeout,
		}

		r.openStore = func(ctx context.Context) (remote.Store, error) {
			return remote.Open(ctx, target)
		}
	}

	return r
}
