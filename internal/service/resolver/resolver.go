package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"

	"github.com/mmcdole/gofeed"

	"github.com/oshokin/firmware-mirror/internal/domain/firmware"
	"github.com/oshokin/firmware-mirror/internal/logger"
)

var (
	// ErrFeedUnavailable is returned when the feed cannot be fetched or parsed.
	ErrFeedUnavailable = errors.New("feed unavailable")
	// ErrUnrecognizedFormat is returned when the newest entry carries no version.
	ErrUnrecognizedFormat = errors.New("unrecognized feed entry format")
)

// Resolver reads the latest published version from a syndication feed.
type Resolver struct {
	client  *http.Client
	feedURL string
	pattern *regexp.Regexp
}

// New returns a Resolver. The first capture group of pattern must hold the version.
func New(client *http.Client, feedURL string, pattern *regexp.Regexp) *Resolver {
	if client == nil {
		client = http.DefaultClient
	}

	return &Resolver{
		client:  client,
		feedURL: feedURL,
		pattern: pattern,
	}
}

// Resolve returns override when set, otherwise the latest version from the feed.
func (r *Resolver) Resolve(ctx context.Context, override string) (firmware.Version, error) {
	if override == "" {
		return r.Latest(ctx)
	}

	v, err := firmware.ParseVersion(override)
	if err != nil {
		return "", fmt.Errorf("version override: %w", errors.Join(ErrUnrecognizedFormat, err))
	}

	logger.InfoKV(ctx, "Using explicit version, feed not consulted", "version", v)

	return v, nil
}

// Latest fetches the feed and extracts the version from its first entry.
// The feed is reverse chronological, so the first entry is the newest release.
func (r *Resolver) Latest(ctx context.Context) (firmware.Version, error) {
	logger.InfoKV(ctx, "Fetching release feed", "url", r.feedURL)

	feed, err := r.fetch(ctx)
	if err != nil {
		return "", errors.Join(ErrFeedUnavailable, err)
	}

	if len(feed.Items) == 0 || feed.Items[0] == nil {
		return "", fmt.Errorf("%s has no entries: %w", r.feedURL, ErrFeedUnavailable)
	}

	title := feed.Items[0].Title

	v, err := firmware.VersionFromTitle(r.pattern, title)
	if err != nil {
		return "", errors.Join(ErrUnrecognizedFormat, err)
	}

	logger.InfoKV(ctx, "Latest release found", "title", title, "version", v)

	return v, nil
}

func (r *Resolver) fetch(ctx context.Context) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.feedURL, http.NoBody)
	if err != nil {
		return nil, err
	}

	response, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("%s: unexpected http status %s", r.feedURL, response.Status)
	}

	feed, err := gofeed.NewParser().Parse(response.Body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", r.feedURL, err)
	}

	return feed, nil
}
