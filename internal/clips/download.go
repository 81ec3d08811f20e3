package clips

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/MimeLyc/clipreel/pkg/file"
)

// Downloader fetches clip media over HTTP.
type Downloader struct {
	httpClient *http.Client
}

// NewDownloader returns a Downloader bounded only by the request context.
func NewDownloader() *Downloader {
	return &Downloader{
		httpClient: &http.Client{},
	}
}

// Download writes the body at url to dest and returns the number of bytes
// written. dest only appears once the transfer completed.
func (d *Downloader) Download(ctx context.Context, url, dest string) (int64, error) {
	if url == "" {
		return 0, fmt.Errorf("no media url")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("media server returned status %d", resp.StatusCode)
	}

	part := file.PartPath(dest)
	f, err := os.Create(part)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", part, err)
	}
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		file.Discard(part)
		return n, fmt.Errorf("write media: %w", err)
	}
	if err := file.Commit(part, dest); err != nil {
		return n, err
	}
	return n, nil
}
