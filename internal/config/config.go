package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/firmware-mirror/internal/domain/firmware"
)

// Config holds everything a mirror run needs besides the CLI-only switches.
type Config struct {
	// FeedURL is the vendor RSS feed announcing releases.
	FeedURL string `yaml:"feed_url"`
	// TitlePattern extracts the version from the first feed entry title.
	// Its first capture group must hold the version.
	TitlePattern string `yaml:"title_pattern"`
	// Architectures are the target platforms downloaded on every run, in order.
	Architectures []firmware.Architecture `yaml:"architectures"`
	// ExtendedArchitectures receive the extended artifact on the legacy release line.
	ExtendedArchitectures []firmware.Architecture `yaml:"extended_architectures"`
	// LegacyMajor is the only major release line that has extended artifacts.
	LegacyMajor int `yaml:"legacy_major"`
	// Templates maps artifact kind to URL templates tried in order.
	Templates Templates `yaml:"templates"`
	// StagingDir is the local directory artifacts are downloaded into.
	StagingDir string `yaml:"staging_dir"`
	// ArtifactPattern selects artifact files both locally and on the remote store.
	ArtifactPattern string `yaml:"artifact_pattern"`
	// MarkerName is the remote object holding the last published version.
	MarkerName string `yaml:"marker_name"`
	// StagedUpload uploads under temporary names and renames once all uploads succeed.
	StagedUpload bool `yaml:"staged_upload"`
	// InsecureSkipVerify disables TLS certificate validation for vendor downloads.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
	// Timeout bounds a single HTTP request, body transfer included.
	Timeout time.Duration `yaml:"timeout"`
	// Remote describes the publishing target. An empty URL means local-only runs.
	Remote Remote `yaml:"remote"`
	// RunMarker is the local file preventing concurrent runs.
	RunMarker string `yaml:"run_marker"`
}

// Templates lists URL templates per artifact kind.
type Templates struct {
	Primary  []firmware.Template `yaml:"primary"`
	Extended []firmware.Template `yaml:"extended"`
	Bundle   []firmware.Template `yaml:"bundle"`
}

// Remote holds the remote store location and credentials.
type Remote struct {
	// URL is ftp://host[:port]/path or file:///path.
	URL string `yaml:"url"`
	// Username for FTP login; empty means anonymous.
	Username string `yaml:"username"`
	// Password for FTP login. Prefer the environment over the config file.
	Password string `yaml:"password"`
	// DialTimeout bounds connecting and each control command.
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

const (
	// DefaultFeedURL is the RouterOS "current" release channel.
	DefaultFeedURL = "https://mikrotik.com/current.rss"

	// DefaultTitlePattern matches titles like "RouterOS 7.14.2".
	DefaultTitlePattern = `^RouterOS ([\d.]+)`

	// DefaultStagingDir is where artifacts are downloaded.
	DefaultStagingDir = "firmware"

	// DefaultArtifactPattern matches RouterOS package files.
	DefaultArtifactPattern = `\.npk$`

	// DefaultMarkerName is the remote version marker object.
	DefaultMarkerName = "version"

	// DefaultRunMarker is the local lock file name.
	DefaultRunMarker = "firmware-mirror.lock"

	// DefaultLegacyMajor is the release line that ships "dude" packages separately.
	DefaultLegacyMajor = 6

	// DefaultTimeout bounds one vendor request including the body transfer.
	DefaultTimeout = 5 * time.Minute

	// DefaultDialTimeout bounds FTP connection setup and control commands.
	DefaultDialTimeout = 30 * time.Second

	// DefaultFilePermissions is the file permission for saved config files.
	DefaultFilePermissions = 0o600

	downloadBase = "https://download.mikrotik.com/routeros/{version}/"
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errNoArchitectures is returned when nothing would be downloaded.
	errNoArchitectures = errors.New("at least one architecture must be configured")
	// errNoPrimaryTemplates is returned when the required package has no template.
	errNoPrimaryTemplates = errors.New("at least one primary template must be configured")
	// errTemplateWithoutVersion is returned for templates lacking {version}.
	errTemplateWithoutVersion = errors.New("template must contain " + firmware.PlaceholderVersion)
	// errUnsupportedScheme is returned for remote URLs other than ftp:// and file://.
	errUnsupportedScheme = errors.New("remote url scheme must be ftp or file")
	// errNoCaptureGroup is returned when the title pattern cannot yield a version.
	errNoCaptureGroup = errors.New("title pattern must have a capture group")
)

// Default returns the configuration matching the RouterOS download site.
func Default() *Config {
	return &Config{
		FeedURL:      DefaultFeedURL,
		TitlePattern: DefaultTitlePattern,
		Architectures: []firmware.Architecture{
			"arm64", "mipsbe", "smips", "tile", "arm", "mmips",
		},
		ExtendedArchitectures: []firmware.Architecture{
			"arm64", "tile", "arm", "mmips",
		},
		LegacyMajor: DefaultLegacyMajor,
		Templates: Templates{
			Primary: []firmware.Template{
				downloadBase + "routeros-{arch}-{version}.npk",
				downloadBase + "routeros-{version}-{arch}.npk",
			},
			Extended: []firmware.Template{
				downloadBase + "dude-{version}-{arch}.npk",
			},
			Bundle: []firmware.Template{
				downloadBase + "all_packages-{arch}-{version}.zip",
			},
		},
		StagingDir:      DefaultStagingDir,
		ArtifactPattern: DefaultArtifactPattern,
		MarkerName:      DefaultMarkerName,
		StagedUpload:    true,
		Timeout:         DefaultTimeout,
		Remote: Remote{
			DialTimeout: DefaultDialTimeout,
		},
		RunMarker: DefaultRunMarker,
	}
}

// Load returns Default() overlaid with the YAML file at path.
// An empty path returns the defaults untouched.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		return cfg, nil
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err = yaml.Unmarshal(contents, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err = Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes cfg to path. The password is never persisted.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	clone := *cfg
	clone.Remote.Password = ""

	data, err := yaml.Marshal(&clone)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err = os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// Validate checks required fields and fills zero values with defaults.
//
//nolint:cyclop // A flat list of independent checks reads better than helpers.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	defaults := Default()

	if cfg.FeedURL == "" {
		cfg.FeedURL = defaults.FeedURL
	}

	if _, err := url.ParseRequestURI(cfg.FeedURL); err != nil {
		return fmt.Errorf("invalid feed url: %w", err)
	}

	if cfg.TitlePattern == "" {
		cfg.TitlePattern = defaults.TitlePattern
	}

	titlePattern, err := regexp.Compile(cfg.TitlePattern)
	if err != nil {
		return fmt.Errorf("invalid title pattern: %w", err)
	}

	if titlePattern.NumSubexp() < 1 {
		return errNoCaptureGroup
	}

	if cfg.ArtifactPattern == "" {
		cfg.ArtifactPattern = defaults.ArtifactPattern
	}

	if _, err = regexp.Compile(cfg.ArtifactPattern); err != nil {
		return fmt.Errorf("invalid artifact pattern: %w", err)
	}

	if len(cfg.Architectures) == 0 {
		return errNoArchitectures
	}

	if len(cfg.Templates.Primary) == 0 {
		return errNoPrimaryTemplates
	}

	if err = validateTemplates(cfg.Templates); err != nil {
		return err
	}

	if cfg.StagingDir == "" {
		cfg.StagingDir = defaults.StagingDir
	}

	if cfg.MarkerName == "" {
		cfg.MarkerName = defaults.MarkerName
	}

	if cfg.RunMarker == "" {
		cfg.RunMarker = defaults.RunMarker
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}

	if cfg.Remote.DialTimeout <= 0 {
		cfg.Remote.DialTimeout = defaults.Remote.DialTimeout
	}

	return validateRemote(&cfg.Remote)
}

// TitleRegexp compiles TitlePattern. Call after Validate.
func (c *Config) TitleRegexp() *regexp.Regexp {
	return regexp.MustCompile(c.TitlePattern)
}

// ArtifactRegexp compiles ArtifactPattern. Call after Validate.
func (c *Config) ArtifactRegexp() *regexp.Regexp {
	return regexp.MustCompile(c.ArtifactPattern)
}

// HasRemote reports whether a publishing target is configured.
func (c *Config) HasRemote() bool {
	return c.Remote.URL != ""
}

func validateTemplates(templates Templates) error {
	all := make([]firmware.Template, 0, len(templates.Primary)+len(templates.Extended)+len(templates.Bundle))
	all = append(all, templates.Primary...)
	all = append(all, templates.Extended...)
	all = append(all, templates.Bundle...)

	for _, tpl := range all {
		if !tpl.HasPlaceholders() {
			return fmt.Errorf("%s: %w", tpl, errTemplateWithoutVersion)
		}

		if _, err := url.ParseRequestURI(tpl.Render("0", "arch")); err != nil {
			return fmt.Errorf("invalid template %s: %w", tpl, err)
		}
	}

	return nil
}

// validateRemote normalizes a bare host ("ftp.example.com/path") into an ftp:// URL.
func validateRemote(remote *Remote) error {
	if remote.URL == "" {
		return nil
	}

	if !strings.Contains(remote.URL, "://") {
		remote.URL = "ftp://" + remote.URL
	}

	parsed, err := url.Parse(remote.URL)
	if err != nil {
		return fmt.Errorf("invalid remote url: %w", err)
	}

	switch parsed.Scheme {
	case "ftp", "file":
		return nil
	default:
		return fmt.Errorf("%s: %w", parsed.Scheme, errUnsupportedScheme)
	}
}
