package notifier

import (
	"context"
	"fmt"
	"sync"
	"time"

	"sjsage522/dealalert/internal/crawler"
	"sjsage522/dealalert/logger"
	"sjsage522/dealalert/services/messaging"
)

// ImageSource downloads product images
type ImageSource interface {
	Fetch(ctx context.Context, imageURL, referer string) ([]byte, string, bool)
}

// Options configures a Dispatcher
type Options struct {
	CurrencySymbol string
	// SendDelay is the minimum gap between two outbound messages; zero disables pacing
	SendDelay time.Duration
}

// Dispatcher turns products into alert messages and delivers them to every
// destination, falling back from image to text per destination.
type Dispatcher struct {
	client messaging.Client
	images ImageSource
	opts   Options
	log    *logger.Logger

	mu       sync.Mutex
	lastSent time.Time
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewDispatcher creates a dispatcher. images may be nil, in which case every
// alert is sent as text.
func NewDispatcher(client messaging.Client, images ImageSource, opts Options) *Dispatcher {
	if opts.CurrencySymbol == "" {
		opts.CurrencySymbol = "₹"
	}
	if opts.SendDelay < 0 {
		opts.SendDelay = 0
	}
	return &Dispatcher{
		client: client,
		images: images,
		opts:   opts,
		log:    logger.ForNotifier(),
		now:    time.Now,
		sleep:  sleepContext,
	}
}

// FormatMessage renders the alert text for p
func (d *Dispatcher) FormatMessage(p crawler.Product) string {
	return fmt.Sprintf("📦 *PRODUCT OFFER DETECTED*\n\n"+
		"*Title:* %s\n"+
		"*Offer Price:* %s%s\n"+
		"*MRP Price:* %s%s\n"+
		"*Discount:* %d%%\n\n"+
		"🔗 *URL:* %s",
		p.Title,
		d.opts.CurrencySymbol, p.CurrentPrice,
		d.opts.CurrencySymbol, p.OriginalPrice,
		p.DiscountPercent,
		p.URL,
	)
}

// Notify delivers p to each destination and returns how many received it.
// The image is downloaded at most once; when it is missing or a destination
// rejects it, that destination gets the text alert instead. Failures are
// logged and never abort the remaining destinations.
func (d *Dispatcher) Notify(ctx context.Context, p crawler.Product, destinations []string, referer string) int {
	message := d.FormatMessage(p)

	var (
		image []byte
		mime  string
		ok    bool
	)
	if p.HasImage() && d.images != nil {
		image, mime, ok = d.images.Fetch(ctx, p.ImageURL, referer)
	}

	delivered := 0
	for _, dest := range destinations {
		if err := d.pace(ctx); err != nil {
			d.log.Warn().Err(err).Str("title", p.Title).Msg("Dispatch interrupted")
			break
		}

		if ok {
			err := d.client.SendImage(ctx, dest, image, mime, message)
			d.markSent()
			if err == nil {
				delivered++
				d.log.Debug().Str("to", dest).Str("title", p.Title).Msg("Image alert sent")
				continue
			}
			d.log.Warn().Err(err).Str("to", dest).Msg("Image alert failed, sending text")
			if err := d.pace(ctx); err != nil {
				d.log.Warn().Err(err).Str("title", p.Title).Msg("Dispatch interrupted")
				break
			}
		}

		err := d.client.SendText(ctx, dest, message)
		d.markSent()
		if err != nil {
			d.log.Error().Err(err).Str("to", dest).Str("title", p.Title).Msg("Failed to send alert")
			continue
		}
		delivered++
		d.log.Debug().Str("to", dest).Str("title", p.Title).Msg("Text alert sent")
	}

	return delivered
}

// Broadcast sends a plain text message to every destination
func (d *Dispatcher) Broadcast(ctx context.Context, destinations []string, text string) int {
	delivered := 0
	for _, dest := range destinations {
		if err := d.pace(ctx); err != nil {
			break
		}
		err := d.client.SendText(ctx, dest, text)
		d.markSent()
		if err != nil {
			d.log.Error().Err(err).Str("to", dest).Msg("Failed to send message")
			continue
		}
		delivered++
	}
	return delivered
}

// pace waits until SendDelay has passed since the previous send
func (d *Dispatcher) pace(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	last := d.lastSent
	d.mu.Unlock()

	if last.IsZero() || d.opts.SendDelay == 0 {
		return nil
	}
	wait := d.opts.SendDelay - d.now().Sub(last)
	if wait <= 0 {
		return nil
	}
	return d.sleep(ctx, wait)
}

func (d *Dispatcher) markSent() {
	d.mu.Lock()
	d.lastSent = d.now()
	d.mu.Unlock()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
