package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/oshokin/firmware-mirror/internal/domain/firmware"
	"github.com/oshokin/firmware-mirror/internal/logger"
)

// progressThrottle limits how often a progress bar is redrawn.
const progressThrottle = 100 * time.Millisecond

// download GETs rawURL into dir under the URL basename and returns the local path.
// A failed transfer leaves no file behind.
func (f *Fetcher) download(ctx context.Context, rawURL, dir string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return "", err
	}

	response, err := f.client.Do(req)
	if err != nil {
		return "", err
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("%s, %s: %w", rawURL, response.Status, errBadHTTPStatus)
	}

	name := firmware.FileName(rawURL)
	path := filepath.Join(dir, name)

	file, err := f.fs.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}

	written, err := io.Copy(f.sink(file, name, response.ContentLength), response.Body)

	if closeErr := file.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		_ = f.fs.Remove(path)

		return "", fmt.Errorf("transfer %s: %w", rawURL, err)
	}

	logger.InfoKV(ctx, "Downloaded", "file", name, "bytes", written)

	return path, nil
}

// sink returns the writer a transfer copies into, teeing into a progress bar
// when one is configured.
func (f *Fetcher) sink(file io.Writer, name string, size int64) io.Writer {
	if f.progress == nil {
		return file
	}

	bar := progressbar.NewOptions64(size,
		progressbar.OptionSetWriter(f.progress),
		progressbar.OptionSetDescription(name),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(progressThrottle),
		progressbar.OptionOnCompletion(func() {
			_, _ = fmt.Fprintln(f.progress)
		}),
	)

	return io.MultiWriter(file, progressWriter{bar: bar})
}

// progressWriter feeds a progress bar and never fails, so rendering problems
// cannot interrupt io.MultiWriter.
type progressWriter struct {
	bar *progressbar.ProgressBar
}

// Write implements io.Writer.
func (w progressWriter) Write(p []byte) (int, error) {
	_ = w.bar.Add(len(p))

	return len(p), nil
}
