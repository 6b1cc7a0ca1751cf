package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"sjsage522/dealalert/helpers"
	"sjsage522/dealalert/internal/crawler"
	"sjsage522/dealalert/services/cache"
)

var _ cache.CacheService = failingCache{}

// MockPage implements crawler.Page
type MockPage struct {
	browser *MockBrowser
	url     string
}

func (p *MockPage) Goto(ctx context.Context, url string) error {
	p.browser.mu.Lock()
	defer p.browser.mu.Unlock()
	p.browser.gotos++
	if len(p.browser.gotoErrs) > 0 {
		err := p.browser.gotoErrs[0]
		p.browser.gotoErrs = p.browser.gotoErrs[1:]
		return err
	}
	if p.browser.gotoErr != nil {
		return p.browser.gotoErr
	}
	p.url = url
	return nil
}

func (p *MockPage) HTML() (string, error) { return "", nil }
func (p *MockPage) URL() string          { return p.url }

func (p *MockPage) Close() error {
	p.browser.mu.Lock()
	defer p.browser.mu.Unlock()
	p.browser.pagesClosed++
	return nil
}

// MockBrowser implements crawler.Browser
type MockBrowser struct {
	mu          sync.Mutex
	pages       int
	pagesClosed int
	gotos       int
	closed      bool
	pageErr     error
	gotoErr     error
	// gotoErrs are returned once each before gotoErr applies
	gotoErrs []error
}

var _ crawler.Browser = (*MockBrowser)(nil)

func (b *MockBrowser) NewPage(ctx context.Context) (crawler.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pageErr != nil {
		return nil, b.pageErr
	}
	b.pages++
	return &MockPage{browser: b}, nil
}

func (b *MockBrowser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// MockLauncher hands out MockBrowsers and can fail chosen launches
type MockLauncher struct {
	browsers []*MockBrowser
	failOn   map[int]bool
	// configure is applied to each browser before it is returned
	configure func(n int, b *MockBrowser)
}

func (l *MockLauncher) Launch(ctx context.Context) (crawler.Browser, error) {
	n := len(l.browsers) + 1
	if l.failOn[n] {
		l.browsers = append(l.browsers, nil)
		return nil, fmt.Errorf("launch %d failed", n)
	}
	b := &MockBrowser{}
	if l.configure != nil {
		l.configure(n, b)
	}
	l.browsers = append(l.browsers, b)
	return b, nil
}

func (l *MockLauncher) Launches() int {
	return len(l.browsers)
}

// ScriptedExtractor returns one result per call, repeating the last
type ScriptedExtractor struct {
	results [][]crawler.Product
	calls   int
	panicOn map[int]bool
}

func (e *ScriptedExtractor) Extract(ctx context.Context, page crawler.Page) []crawler.Product {
	e.calls++
	if e.panicOn[e.calls] {
		panic("malformed document")
	}
	if len(e.results) == 0 {
		return nil
	}
	i := e.calls - 1
	if i >= len(e.results) {
		i = len(e.results) - 1
	}
	return e.results[i]
}

// MockNotifier records notified products
type MockNotifier struct {
	mu        sync.Mutex
	notified  []crawler.Product
	referers  []string
	delivered int
	panicOn   map[int]bool
}

func (n *MockNotifier) Notify(ctx context.Context, p crawler.Product, destinations []string, referer string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notified = append(n.notified, p)
	n.referers = append(n.referers, referer)
	if n.panicOn[len(n.notified)] {
		panic("send on closed session")
	}
	return n.delivered
}

func (n *MockNotifier) Titles() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.notified))
	for _, p := range n.notified {
		out = append(out, p.Title)
	}
	return out
}

// failingCache behaves like an unreachable memcache server
type failingCache struct{}

func (failingCache) Get(key string) ([]byte, error) {
	return nil, errors.New("memcache: connect: connection refused")
}

func (failingCache) Set(key string, value []byte, expiration time.Duration) error {
	return errors.New("memcache: connect: connection refused")
}

// MockLogger implements the helpers.LoggerInterface for testing
type MockLogger struct {
	mu     sync.Mutex
	errors []string
	infos  []string
}

// Ensure MockLogger implements helpers.LoggerInterface
var _ helpers.LoggerInterface = (*MockLogger)(nil)

func NewMockLogger() *MockLogger {
	return &MockLogger{
		errors: make([]string, 0),
		infos:  make([]string, 0),
	}
}

func (m *MockLogger) LogError(component string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, component+": "+err.Error())
}

func (m *MockLogger) LogInfo(format string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infos = append(m.infos, fmt.Sprintf(format, args...))
}
