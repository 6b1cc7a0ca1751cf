package crawler

import (
	"context"
	stderrors "errors"
	"io"
	"sync"

	"sjsage522/dealalert/helpers"
	"sjsage522/dealalert/pkg/errors"
)

// HTTPLauncher returns a Launcher whose pages are plain HTTP fetches with
// browser-like headers. Pages that render their listing with JavaScript
// will come back empty; it suits server-rendered targets and tests.
func HTTPLauncher() Launcher {
	return func(ctx context.Context) (Browser, error) {
		return &HTTPSource{}, nil
	}
}

// HTTPSource is a Browser without a rendering engine
type HTTPSource struct {
	mu     sync.Mutex
	closed bool
}

// NewPage returns an empty page
func (s *HTTPSource) NewPage(ctx context.Context) (Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.NewBrowser("http", "source is closed", nil)
	}
	return &httpPage{}, nil
}

// Close marks the source closed
func (s *HTTPSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type httpPage struct {
	url  string
	html string
}

func (p *httpPage) Goto(ctx context.Context, url string) error {
	body, err := helpers.FetchWithRandomHeaders(ctx, url)
	if err != nil {
		if stderrors.Is(err, helpers.ErrRateLimited) {
			return errors.New(errors.ErrorTypeRateLimit, "http", "target is rate limiting", err)
		}
		return errors.NewBrowser("http", "failed to load "+url, err)
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return errors.NewNetwork("http", "failed to read body", err)
	}

	p.url = url
	p.html = string(data)
	return nil
}

func (p *httpPage) HTML() (string, error) {
	return p.html, nil
}

func (p *httpPage) URL() string {
	return p.url
}

func (p *httpPage) Close() error {
	p.html = ""
	return nil
}

var _ Browser = (*HTTPSource)(nil)
