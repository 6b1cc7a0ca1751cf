package worker

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"sjsage522/dealalert/config"
	"sjsage522/dealalert/helpers"
	"sjsage522/dealalert/internal/crawler"
	"sjsage522/dealalert/internal/dedup"
	"sjsage522/dealalert/internal/filter"
	"sjsage522/dealalert/logger"
	"sjsage522/dealalert/pkg/errors"
	"sjsage522/dealalert/services/cache"
)

// State is the worker's position in the scrape cycle
type State string

const (
	StateIdle        State = "idle"
	StateLaunching   State = "launching"
	StatePageReady   State = "page_ready"
	StateExtracting  State = "extracting"
	StateFiltering   State = "filtering"
	StateDispatching State = "dispatching"
	StateSleeping    State = "sleeping"
	StateRecycling   State = "recycling"
	StateCooldown    State = "cooldown"
	StateStopped     State = "stopped"
)

// ProductExtractor reads products from a loaded page
type ProductExtractor interface {
	Extract(ctx context.Context, page crawler.Page) []crawler.Product
}

// Notifier delivers one product to the destinations and reports how many
// received it
type Notifier interface {
	Notify(ctx context.Context, p crawler.Product, destinations []string, referer string) int
}

// Options tunes the cycle
type Options struct {
	DedupRetention  time.Duration
	RecycleEvery    int
	DedupSweepEvery int
	MaxAttempts     int
	SettleDelay     time.Duration
	ErrorCooldown   time.Duration
	BlockDuration   time.Duration
	// Production suppresses the per-cycle summary unless debug mode is on
	Production bool
}

// DefaultOptions returns the production cycle settings
func DefaultOptions() Options {
	return Options{
		DedupRetention:  dedup.DefaultRetention,
		RecycleEvery:    100,
		DedupSweepEvery: 10,
		MaxAttempts:     3,
		SettleDelay:     5 * time.Second,
		ErrorCooldown:   5 * time.Second,
		BlockDuration:   30 * time.Second,
	}
}

// Status is a point-in-time view of the worker for the health endpoint
type Status struct {
	State               State      `json:"state"`
	Cycles              int        `json:"cycles"`
	AlertsSent          int        `json:"alertsSent"`
	LastCycleAt         *time.Time `json:"lastCycleAt,omitempty"`
	LastError           string     `json:"lastError,omitempty"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	BrowserRunning      bool       `json:"browserRunning"`
}

// Worker runs the scrape, filter and notify loop on a single goroutine
type Worker struct {
	launch    crawler.Launcher
	extractor ProductExtractor
	notifier  Notifier
	store     *config.RuntimeStore
	dedup     *dedup.Store
	cache     cache.CacheService
	logger    helpers.LoggerInterface
	opts      Options
	log       *logger.Logger

	// owned by the loop goroutine
	browser crawler.Browser
	page    crawler.Page
	cycles  int

	mu     sync.RWMutex
	status Status

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewWorker creates a new worker. cacheSvc may be nil, which disables the
// navigation cooldown.
func NewWorker(
	launch crawler.Launcher,
	extractor ProductExtractor,
	notifier Notifier,
	store *config.RuntimeStore,
	dedupStore *dedup.Store,
	cacheSvc cache.CacheService,
	errLogger helpers.LoggerInterface,
	opts Options,
) *Worker {
	defaults := DefaultOptions()
	if opts.DedupRetention <= 0 {
		opts.DedupRetention = defaults.DedupRetention
	}
	if opts.RecycleEvery <= 0 {
		opts.RecycleEvery = defaults.RecycleEvery
	}
	if opts.DedupSweepEvery <= 0 {
		opts.DedupSweepEvery = defaults.DedupSweepEvery
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaults.MaxAttempts
	}

	return &Worker{
		launch:    launch,
		extractor: extractor,
		notifier:  notifier,
		store:     store,
		dedup:     dedupStore,
		cache:     cacheSvc,
		logger:    errLogger,
		opts:      opts,
		log:       logger.ForWorker(),
		status:    Status{State: StateIdle},
		now:       time.Now,
		sleep:     sleepContext,
	}
}

// Status returns a copy of the current worker status
func (w *Worker) Status() Status {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.status
}

// Start launches the browser and loops until ctx is cancelled. Only a failed
// first launch is returned as an error; every later failure is logged and
// retried after a cooldown.
func (w *Worker) Start(ctx context.Context) error {
	w.setState(StateLaunching)
	b, err := w.launch(ctx)
	if err != nil {
		w.setState(StateStopped)
		return errors.NewBrowser("worker", "initial browser launch failed", err)
	}
	w.setBrowser(b)
	defer w.shutdown()

	w.log.Info().Msg("Worker started")

	for {
		if ctx.Err() != nil {
			return nil
		}

		cfg := w.store.Snapshot()
		err := w.runCycleSafe(ctx, cfg)
		if ctx.Err() != nil {
			return nil
		}

		if err != nil {
			w.handleCycleError(ctx, err)
			continue
		}

		w.setState(StateSleeping)
		if cfg.DebugMode {
			w.log.Debug().Dur("interval", cfg.ScrapeInterval).Msg("Waiting before next scrape")
		}
		if w.sleep(ctx, cfg.ScrapeInterval) != nil {
			return nil
		}

		if w.cycles%w.opts.RecycleEvery == 0 {
			w.recycle()
		}
	}
}

// runCycleSafe runs one cycle, turning a panic into an error
func (w *Worker) runCycleSafe(ctx context.Context, cfg config.RuntimeConfig) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.NewBrowser("worker", "panic in scrape cycle", fmt.Errorf("%v", r))
		}
	}()
	return w.runCycle(ctx, cfg)
}

// runCycle loads the target once, extracts, filters and dispatches
func (w *Worker) runCycle(ctx context.Context, cfg config.RuntimeConfig) error {
	w.cycles++
	start := w.now()

	if w.cycles%w.opts.DedupSweepEvery == 0 {
		w.sweep()
	}

	if w.browser == nil {
		w.setState(StateLaunching)
		b, err := w.launch(ctx)
		if err != nil {
			return errors.NewBrowser("worker", "browser relaunch failed", err)
		}
		w.setBrowser(b)
	}

	blockKey := blockedKey(cfg.TargetURL)
	if w.isBlocked(blockKey) {
		return errors.NewRateLimit("worker", w.opts.BlockDuration)
	}

	w.setState(StatePageReady)
	page, err := w.browser.NewPage(ctx)
	if err != nil {
		return errors.NewBrowser("worker", "failed to open page", err)
	}
	w.page = page
	defer w.closePage()

	if err := page.Goto(ctx, cfg.TargetURL); err != nil {
		w.block(blockKey)
		return err
	}

	products, err := w.extractWithRetry(ctx, page, cfg)
	if err != nil {
		return err
	}

	w.setState(StateFiltering)
	candidates := filter.Apply(products, cfg)
	if cfg.DebugMode {
		w.log.Debug().
			Int("extracted", len(products)).
			Int("candidates", len(candidates)).
			Msg("Filtered products")
	}

	sent := 0
	if len(candidates) > 0 {
		w.sweep()
		w.setState(StateDispatching)
		sent = w.dispatch(ctx, candidates, cfg)
	}

	w.mu.Lock()
	w.status.Cycles = w.cycles
	w.status.AlertsSent += sent
	w.status.LastCycleAt = w.timestamp()
	w.status.LastError = ""
	w.status.ConsecutiveFailures = 0
	w.mu.Unlock()

	if !w.opts.Production || cfg.DebugMode {
		w.logger.LogInfo("Cycle %d finished in %s: %d extracted, %d candidates, %d alerted",
			w.cycles, w.now().Sub(start), len(products), len(candidates), sent)
	}
	return nil
}

// extractWithRetry waits for the page to settle and extracts, reloading with
// backoff while nothing is found. After the last attempt it returns whatever
// it has, which may be nothing.
func (w *Worker) extractWithRetry(ctx context.Context, page crawler.Page, cfg config.RuntimeConfig) ([]crawler.Product, error) {
	var products []crawler.Product

	for attempt := 1; attempt <= w.opts.MaxAttempts; attempt++ {
		w.setState(StateExtracting)
		if err := w.sleep(ctx, w.opts.SettleDelay); err != nil {
			return nil, err
		}

		products = w.extract(ctx, page, attempt)
		if len(products) > 0 {
			return products, nil
		}
		if attempt == w.opts.MaxAttempts {
			break
		}

		delay := Backoff(attempt)
		w.log.Warn().
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("No products found, retrying")

		if err := w.sleep(ctx, delay); err != nil {
			return nil, err
		}
		if err := page.Goto(ctx, cfg.TargetURL); err != nil {
			w.block(blockedKey(cfg.TargetURL))
			return nil, err
		}
	}

	w.log.Warn().Int("attempts", w.opts.MaxAttempts).Msg("No products found on page")
	return products, nil
}

// extract treats a panicking extractor like an empty page so the attempt is
// retried
func (w *Worker) extract(ctx context.Context, page crawler.Page, attempt int) (products []crawler.Product) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Warn().Int("attempt", attempt).Interface("panic", r).Msg("Extraction failed")
			products = nil
		}
	}()
	return w.extractor.Extract(ctx, page)
}

// dispatch sends every unseen candidate. A fingerprint is recorded once the
// dispatcher has run, even when no destination accepted it, so a product is
// alerted at most once per retention window.
func (w *Worker) dispatch(ctx context.Context, candidates []crawler.Product, cfg config.RuntimeConfig) int {
	referer := helpers.Origin(cfg.TargetURL)
	sent := 0

	for _, p := range candidates {
		if ctx.Err() != nil {
			break
		}

		fp := p.Fingerprint()
		if w.dedup.Seen(fp) {
			continue
		}

		delivered := w.notifier.Notify(ctx, p, cfg.Destinations, referer)
		w.dedup.Record(fp, w.now())

		if delivered == 0 {
			w.log.Warn().
				Str("title", p.Title).
				Int("destinations", len(cfg.Destinations)).
				Msg("Alert reached no destination and will not be retried")
			continue
		}

		sent++
		w.log.Info().
			Str("title", p.Title).
			Int("discount", p.DiscountPercent).
			Int("delivered", delivered).
			Msg("Sent notification")
	}
	return sent
}

func (w *Worker) handleCycleError(ctx context.Context, err error) {
	w.mu.Lock()
	w.status.Cycles = w.cycles
	w.status.LastCycleAt = w.timestamp()
	w.status.LastError = err.Error()
	w.status.ConsecutiveFailures++
	w.mu.Unlock()

	var werr *errors.WorkerError
	switch {
	case errors.Is(err, errors.ErrorTypeRateLimit):
		w.log.Warn().Err(err).Msg("Target in cooldown, skipping cycle")
	case stderrors.As(err, &werr) && !werr.IsRetryable():
		// The browser is still usable
		w.logger.LogError("worker", err)
		w.closePage()
	default:
		w.logger.LogError("worker", err)
		w.closePage()
		w.closeBrowser()
	}

	w.setState(StateCooldown)
	w.sleep(ctx, w.opts.ErrorCooldown)
}

func (w *Worker) sweep() {
	if removed := w.dedup.EvictOlderThan(w.now(), w.opts.DedupRetention); removed > 0 {
		w.log.Debug().Int("removed", removed).Int("remaining", w.dedup.Len()).Msg("Evicted sent products")
	}
}

func (w *Worker) recycle() {
	w.setState(StateRecycling)
	w.log.Info().Int("cycles", w.cycles).Msg("Recycling browser")
	w.closePage()
	w.closeBrowser()
}

func (w *Worker) shutdown() {
	w.closePage()
	w.closeBrowser()
	w.setState(StateStopped)
	w.log.Info().Msg("Worker stopped")
}

func (w *Worker) closePage() {
	if w.page == nil {
		return
	}
	if err := w.page.Close(); err != nil {
		w.log.Debug().Err(err).Msg("Failed to close page")
	}
	w.page = nil
}

func (w *Worker) closeBrowser() {
	if w.browser == nil {
		return
	}
	if err := w.browser.Close(); err != nil {
		w.log.Debug().Err(err).Msg("Failed to close browser")
	}
	w.setBrowser(nil)
}

func (w *Worker) setBrowser(b crawler.Browser) {
	w.browser = b
	w.mu.Lock()
	w.status.BrowserRunning = b != nil
	w.mu.Unlock()
}

func (w *Worker) timestamp() *time.Time {
	t := w.now()
	return &t
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	w.status.State = s
	w.mu.Unlock()
}

func (w *Worker) isBlocked(key string) bool {
	if w.cache == nil || key == "" {
		return false
	}
	_, err := w.cache.Get(key)
	if err == nil {
		return true
	}
	if !cache.IsMiss(err) {
		w.logger.LogError("cache", err)
	}
	return false
}

func (w *Worker) block(key string) {
	if w.cache == nil || key == "" || w.opts.BlockDuration <= 0 {
		return
	}
	seconds := strconv.Itoa(int(w.opts.BlockDuration / time.Second))
	if err := w.cache.Set(key, []byte(seconds), w.opts.BlockDuration); err != nil {
		w.log.Warn().Err(err).Str("key", key).Msg("Failed to set navigation cooldown")
	}
}

// Backoff returns the wait after the given failed attempt: 3s after the
// first, then 10s doubling, capped at 30s.
func Backoff(attempt int) time.Duration {
	if attempt <= 1 {
		return 3 * time.Second
	}
	d := 10 * time.Second
	for i := 2; i < attempt; i++ {
		d *= 2
		if d >= 30*time.Second {
			return 30 * time.Second
		}
	}
	return d
}

func blockedKey(target string) string {
	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Host + "_blocked"
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
