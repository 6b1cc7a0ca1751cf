package crawler

import (
	"context"
	"strconv"
	"strings"
)

// Placeholder values for fields the page did not provide
const (
	UnknownTitle = "Unknown"
	NotAvailable = "N/A"
	NoURL        = "#"
)

// Field length limits applied during extraction
const (
	maxTitleRunes    = 150
	maxPriceRunes    = 50
	maxImageURLRunes = 500
)

// Product is one discounted listing read off the target page
type Product struct {
	Title           string `json:"title"`
	CurrentPrice    string `json:"current_price"`
	OriginalPrice   string `json:"original_price"`
	DiscountPercent int    `json:"discount_percent"`
	URL             string `json:"url"`
	ImageURL        string `json:"image_url"`
}

// Fingerprint identifies a product for deduplication. Prices are left out
// so that reformatting them never produces a second alert.
func (p Product) Fingerprint() string {
	return strings.ToLower(p.Title) + "-" + strconv.Itoa(p.DiscountPercent)
}

// HasImage reports whether the product carries an image URL
func (p Product) HasImage() bool {
	return p.ImageURL != "" && p.ImageURL != NotAvailable
}

// Page is a loaded browser tab
type Page interface {
	// Goto navigates to url and waits for the load event
	Goto(ctx context.Context, url string) error

	// HTML returns the current rendered document
	HTML() (string, error)

	// URL returns the address of the loaded document
	URL() string

	// Close releases the tab
	Close() error
}

// Browser is a running browser session
type Browser interface {
	// NewPage opens a fresh tab with request filtering installed
	NewPage(ctx context.Context) (Page, error)

	// Close terminates the session
	Close() error
}

// Launcher starts a new Browser
type Launcher func(ctx context.Context) (Browser, error)

// Selectors contains CSS selectors for the listing page
type Selectors struct {
	// Containers is tried in order; the first selector with a match wins
	Containers    []string
	Content       string
	Title         string
	CurrentPrice  string
	OriginalPrice string
	Discount      string
	Image         string
	ImageAttrs    []string
}

// DefaultSelectors returns the selectors for the roobai.com listing layout
func DefaultSelectors() Selectors {
	return Selectors{
		Containers: []string{
			".gridSlider__products",
			"[class*='product']",
			".swiper-slide, .slick-slide, [class*='carousel'] [class*='slide']",
		},
		Content:       ".post-grid-content",
		Title:         ".title-roobae-deal a",
		CurrentPrice:  ".cur-price",
		OriginalPrice: ".off-price",
		Discount:      ".discount-rb",
		Image:         ".img-res-thumb",
		ImageAttrs:    []string{"src", "data-src", "data-lazy-src"},
	}
}
