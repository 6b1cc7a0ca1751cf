package image

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"sjsage522/dealalert/helpers"
	"sjsage522/dealalert/logger"
	"sjsage522/dealalert/pkg/errors"
)

// Defaults for a Fetcher
const (
	DefaultMaxBytes = 2 * 1024 * 1024
	DefaultTimeout  = 10 * time.Second
)

// Fetcher downloads product images for alerts. Any failure means the alert
// goes out as text, so Fetch reports ok instead of an error.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
	timeout  time.Duration
	log      *logger.Logger
}

// NewFetcher creates a fetcher with the given size cap and timeout
func NewFetcher(maxBytes int64, timeout time.Duration) *Fetcher {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Fetcher{
		client:   &http.Client{},
		maxBytes: maxBytes,
		timeout:  timeout,
		log:      logger.ForComponent("image"),
	}
}

// Fetch downloads imageURL with referer as the Referer header. It returns the
// bytes and their MIME type, or ok=false when the image is unusable.
func (f *Fetcher) Fetch(ctx context.Context, imageURL, referer string) ([]byte, string, bool) {
	data, mime, err := f.fetch(ctx, imageURL, referer)
	if err != nil {
		f.log.Debug().Err(err).Str("url", imageURL).Msg("Image unavailable, falling back to text")
		return nil, "", false
	}
	return data, mime, true
}

func (f *Fetcher) fetch(ctx context.Context, imageURL, referer string) ([]byte, string, error) {
	if !strings.HasPrefix(imageURL, "http://") && !strings.HasPrefix(imageURL, "https://") {
		return nil, "", errors.NewValidation("image", "not an http(s) URL")
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", errors.NewImage("image", "failed to create request", err)
	}
	helpers.SetImageHeaders(req, referer)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", errors.NewNetwork("image", "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", errors.NewImage("image", fmt.Sprintf("unexpected status code: %d", resp.StatusCode), nil)
	}

	if resp.ContentLength > f.maxBytes {
		return nil, "", errors.NewImage("image", fmt.Sprintf("content length %d exceeds %d bytes", resp.ContentLength, f.maxBytes), nil)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, "", errors.NewNetwork("image", "failed to read body", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, "", errors.NewImage("image", fmt.Sprintf("body exceeds %d bytes", f.maxBytes), nil)
	}
	if len(data) == 0 {
		return nil, "", errors.NewImage("image", "empty body", nil)
	}

	return data, mimeType(resp.Header.Get("Content-Type"), data), nil
}

// mimeType prefers the declared image type and sniffs otherwise
func mimeType(declared string, data []byte) string {
	if i := strings.Index(declared, ";"); i >= 0 {
		declared = declared[:i]
	}
	declared = strings.TrimSpace(strings.ToLower(declared))
	if strings.HasPrefix(declared, "image/") {
		return declared
	}
	return http.DetectContentType(data)
}
