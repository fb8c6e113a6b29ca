package firmware

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Version is a released firmware version such as "7.14.2".
type Version string

var (
	// ErrEmptyVersion is returned for a blank version string.
	ErrEmptyVersion = errors.New("version is empty")
	// ErrInvalidVersion is returned when a version is not dotted numeric.
	ErrInvalidVersion = errors.New("version is not dotted numeric")
	// ErrTitleMismatch is returned when a feed title does not carry a version.
	ErrTitleMismatch = errors.New("title does not match version pattern")
)

var dottedNumeric = regexp.MustCompile(`^\d+(\.\d+)*$`)

// ParseVersion validates s and returns it as a Version.
func ParseVersion(s string) (Version, error) {
	if s == "" {
		return "", ErrEmptyVersion
	}

	if !dottedNumeric.MatchString(s) {
		return "", fmt.Errorf("%q: %w", s, ErrInvalidVersion)
	}

	return Version(s), nil
}

// VersionFromTitle extracts a version from a feed entry title using pattern.
// The pattern must be anchored by the caller if needed and its first
// capture group must hold the version.
func VersionFromTitle(pattern *regexp.Regexp, title string) (Version, error) {
	match := pattern.FindStringSubmatch(title)
	if len(match) < 2 {
		return "", fmt.Errorf("%q: %w", title, ErrTitleMismatch)
	}

	// Titles like "RouterOS 7.14." are cut at the trailing dot by a greedy [\d.]+.
	return ParseVersion(strings.TrimRight(match[1], "."))
}

// String implements fmt.Stringer.
func (v Version) String() string {
	return string(v)
}

// Major returns the leading numeral of the version, e.g. 7 for "7.14.2".
func (v Version) Major() (int, error) {
	head, _, _ := strings.Cut(string(v), ".")

	major, err := strconv.Atoi(head)
	if err != nil {
		return 0, fmt.Errorf("%q: %w", v, ErrInvalidVersion)
	}

	return major, nil
}

// InReleaseLine reports whether the version belongs to the given major release line.
func (v Version) InReleaseLine(major int) bool {
	got, err := v.Major()

	return err == nil && got == major
}
