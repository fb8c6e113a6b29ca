package firmware

import (
	"net/url"
	"path"
	"slices"
	"strings"
)

// Architecture identifies a target CPU platform, e.g. "arm64" or "mipsbe".
type Architecture string

// ArtifactKind tells which file of a release a template describes.
type ArtifactKind string

const (
	// KindPrimary is the main system package, required for every architecture.
	KindPrimary ArtifactKind = "primary"
	// KindExtended is the legacy-only additional package for extended architectures.
	KindExtended ArtifactKind = "extended"
	// KindBundle is the per-architecture archive with all optional packages.
	KindBundle ArtifactKind = "bundle"
)

// Template placeholders.
const (
	PlaceholderVersion = "{version}"
	PlaceholderArch    = "{arch}"
)

// Template is a download URL pattern with {version} and {arch} placeholders.
type Template string

// Render substitutes version and arch into the template.
func (t Template) Render(version Version, arch Architecture) string {
	return strings.NewReplacer(
		PlaceholderVersion, string(version),
		PlaceholderArch, string(arch),
	).Replace(string(t))
}

// HasPlaceholders reports whether the template references the version.
// Templates without {version} would download the same file for every release.
func (t Template) HasPlaceholders() bool {
	return strings.Contains(string(t), PlaceholderVersion)
}

// FileName returns the basename of the URL path, which is the local and remote file name.
func FileName(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Path == "" {
		return path.Base(rawURL)
	}

	return path.Base(parsed.Path)
}

// Contains reports whether arch is one of archs.
func Contains(archs []Architecture, arch Architecture) bool {
	return slices.Contains(archs, arch)
}
