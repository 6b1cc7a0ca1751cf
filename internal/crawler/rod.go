package crawler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"sjsage522/dealalert/helpers"
	"sjsage522/dealalert/logger"
	"sjsage522/dealalert/pkg/errors"
)

// DefaultNavigationTimeout bounds a single page load
const DefaultNavigationTimeout = 90 * time.Second

// Analytics and ad hosts never needed to render the listing
var blockedHosts = []string{
	"google-analytics.com",
	"googletagmanager.com",
	"doubleclick.net",
	"googlesyndication.com",
	"facebook.net",
	"facebook.com",
	"hotjar.com",
	"clarity.ms",
	"scorecardresearch.com",
}

// RodOptions configures the headless Chromium launcher
type RodOptions struct {
	Bin               string
	Headless          bool
	NavigationTimeout time.Duration
	UserAgent         string
	// Proxy is passed to Chromium as --proxy-server, e.g. socks5://host:1080
	Proxy string
}

// RodLauncher returns a Launcher that starts a local headless Chromium
func RodLauncher(opts RodOptions) Launcher {
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = DefaultNavigationTimeout
	}

	return func(ctx context.Context) (Browser, error) {
		l := launcher.New().
			Headless(opts.Headless).
			NoSandbox(true).
			Leakless(false).
			Set("disable-dev-shm-usage").
			Set("disable-gpu")

		if opts.Bin != "" {
			l = l.Bin(opts.Bin)
		}
		if opts.Proxy != "" {
			l = l.Proxy(opts.Proxy)
		}

		controlURL, err := l.Launch()
		if err != nil {
			return nil, errors.NewBrowser("rod", "failed to launch browser", err)
		}

		browser := rod.New().ControlURL(controlURL).Context(ctx)
		if err := browser.Connect(); err != nil {
			l.Kill()
			l.Cleanup()
			return nil, errors.NewBrowser("rod", "failed to connect to browser", err)
		}

		logger.ForCrawler().Info().Str("controlURL", controlURL).Msg("Browser launched")

		return &RodBrowser{
			browser:  browser,
			launcher: l,
			opts:     opts,
		}, nil
	}
}

// RodBrowser is a Browser backed by go-rod
type RodBrowser struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	opts     RodOptions
}

// NewPage opens a fresh tab with cookies cleared and heavy or tracking
// requests blocked
func (b *RodBrowser) NewPage(ctx context.Context) (Page, error) {
	page, err := b.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, errors.NewBrowser("rod", "failed to open page", err)
	}

	if err := (proto.NetworkClearBrowserCookies{}).Call(page); err != nil {
		logger.ForCrawler().Debug().Err(err).Msg("Failed to clear cookies")
	}

	ua := b.opts.UserAgent
	if ua == "" {
		ua = helpers.RandomUserAgent()
	}
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: ua}); err != nil {
		page.Close()
		return nil, errors.NewBrowser("rod", "failed to set user agent", err)
	}

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{Width: 1920, Height: 1080}); err != nil {
		logger.ForCrawler().Debug().Err(err).Msg("Failed to set viewport")
	}

	router := page.HijackRequests()
	if err := router.Add("*", "", func(h *rod.Hijack) {
		if shouldBlock(h.Request.Type(), h.Request.URL().Hostname()) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	}); err != nil {
		page.Close()
		return nil, errors.NewBrowser("rod", "failed to install request filter", err)
	}
	go router.Run()

	return &rodPage{
		page:    page,
		router:  router,
		timeout: b.opts.NavigationTimeout,
	}, nil
}

// Close terminates the browser process
func (b *RodBrowser) Close() error {
	err := b.browser.Close()
	b.launcher.Kill()
	b.launcher.Cleanup()
	if err != nil {
		return errors.NewBrowser("rod", "failed to close browser", err)
	}
	return nil
}

type rodPage struct {
	page    *rod.Page
	router  *rod.HijackRouter
	timeout time.Duration
	url     string
}

func (p *rodPage) Goto(ctx context.Context, url string) error {
	page := p.page.Context(ctx).Timeout(p.timeout)
	defer page.CancelTimeout()

	if err := page.Navigate(url); err != nil {
		return errors.NewBrowser("rod", fmt.Sprintf("failed to navigate to %s", url), err)
	}
	if err := page.WaitLoad(); err != nil {
		return errors.NewBrowser("rod", fmt.Sprintf("page %s did not finish loading", url), err)
	}

	p.url = url
	if info, err := p.page.Info(); err == nil && info.URL != "" {
		p.url = info.URL
	}
	return nil
}

func (p *rodPage) HTML() (string, error) {
	html, err := p.page.HTML()
	if err != nil {
		return "", errors.NewExtraction("rod", "failed to read document", err)
	}
	return html, nil
}

func (p *rodPage) URL() string {
	return p.url
}

func (p *rodPage) Close() error {
	if err := p.router.Stop(); err != nil {
		logger.ForCrawler().Debug().Err(err).Msg("Failed to stop request filter")
	}
	return p.page.Close()
}

// shouldBlock decides whether a request is dropped before it leaves the
// browser. Documents, scripts, images and XHR are needed for rendering.
func shouldBlock(resourceType proto.NetworkResourceType, host string) bool {
	switch resourceType {
	case proto.NetworkResourceTypeStylesheet,
		proto.NetworkResourceTypeFont,
		proto.NetworkResourceTypeMedia:
		return true
	}

	host = strings.ToLower(host)
	for _, blocked := range blockedHosts {
		if host == blocked || strings.HasSuffix(host, "."+blocked) {
			return true
		}
	}
	return false
}

var _ Browser = (*RodBrowser)(nil)
var _ Page = (*rodPage)(nil)
