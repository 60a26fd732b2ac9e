package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultUserAgent identifies image downloads
const DefaultUserAgent = "tilegrid/1.0"

// Fetcher downloads source images over HTTP
type Fetcher struct {
	Client    *http.Client
	UserAgent string
	Headers   map[string]string
	MaxBytes  int64 // 0: unlimited
	MaxPixels int64 // 0: unlimited
}

// NewFetcher returns a Fetcher with a 30 second timeout and DefaultMaxPixels
func NewFetcher() *Fetcher {
	return &Fetcher{
		Client:    &http.Client{Timeout: 30 * time.Second},
		UserAgent: DefaultUserAgent,
		MaxPixels: DefaultMaxPixels,
	}
}

// IsURL reports whether path should be fetched rather than opened
func IsURL(path string) bool {
	return strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://")
}

// Fetch downloads and decodes the image at url
func (f *Fetcher) Fetch(ctx context.Context, url string, autoOrient bool) (*Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", f.UserAgent)
	for key, value := range f.Headers {
		req.Header.Set(key, value)
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch image %s: HTTP %d: %s", url, resp.StatusCode, resp.Status)
	}

	var body io.Reader = resp.Body
	if f.MaxBytes > 0 {
		body = io.LimitReader(resp.Body, f.MaxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("fetch image %s: %w", url, err)
	}
	if f.MaxBytes > 0 && int64(len(data)) > f.MaxBytes {
		return nil, fmt.Errorf("fetch image %s: larger than %d bytes", url, f.MaxBytes)
	}

	img, err := DecodeLimit(bytes.NewReader(data), autoOrient, f.MaxPixels)
	if err != nil {
		return nil, fmt.Errorf("fetch image %s: %w", url, err)
	}
	return img, nil
}
