package crawler

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"sjsage522/dealalert/helpers"
	"sjsage522/dealalert/logger"
)

var (
	discountRegex = regexp.MustCompile(`\d+`)
	priceStripper = strings.NewReplacer("₹", "", "$", "", "€", "", "£", "", "Rs.", "", "Rs", "")
)

// Extractor reads products from a rendered listing page
type Extractor struct {
	Selectors Selectors
	log       *logger.Logger
}

// NewExtractor creates an extractor with the given selectors
func NewExtractor(selectors Selectors) *Extractor {
	return &Extractor{
		Selectors: selectors,
		log:       logger.ForCrawler(),
	}
}

// Extract returns every qualifying product on the page. It never fails: any
// problem with the page as a whole yields an empty slice.
func (e *Extractor) Extract(ctx context.Context, page Page) (products []Product) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Interface("panic", r).Msg("Product extraction aborted")
			products = []Product{}
		}
	}()

	if err := ctx.Err(); err != nil {
		return []Product{}
	}

	html, err := page.HTML()
	if err != nil {
		e.log.Error().Err(err).Msg("Failed to read page HTML")
		return []Product{}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		e.log.Error().Err(err).Msg("Failed to parse page HTML")
		return []Product{}
	}

	base, _ := url.Parse(page.URL())
	return e.ExtractDocument(doc, base)
}

// ExtractDocument runs the container cascade over an already parsed document.
// base is used to resolve relative links and may be nil.
func (e *Extractor) ExtractDocument(doc *goquery.Document, base *url.URL) []Product {
	containers, selector := e.findContainers(doc)
	if containers == nil {
		e.log.Debug().Msg("No product containers found")
		return []Product{}
	}

	e.log.Debug().
		Str("selector", selector).
		Int("containers", containers.Length()).
		Msg("Product containers found")

	products := make([]Product, 0, containers.Length())
	containers.Each(func(i int, s *goquery.Selection) {
		p, err := e.extractOne(s, base)
		if err != nil {
			e.log.Debug().Err(err).Int("index", i).Msg("Skipping product container")
			return
		}
		if p.Title != UnknownTitle && p.DiscountPercent > 0 {
			products = append(products, p)
		}
	})

	if len(products) > 0 {
		e.log.Debug().
			Int("count", len(products)).
			Str("sample", products[0].Title).
			Msg("Extracted products")
	}
	return products
}

func (e *Extractor) findContainers(doc *goquery.Document) (*goquery.Selection, string) {
	for _, sel := range e.Selectors.Containers {
		found := doc.Find(sel)
		if found.Length() > 0 {
			return found, sel
		}
	}
	return nil, ""
}

// extractOne reads a single container. A malformed node is reported as an
// error instead of taking the page down with it.
func (e *Extractor) extractOne(container *goquery.Selection, base *url.URL) (p Product, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while extracting: %v", r)
		}
	}()

	content := container.Find(e.Selectors.Content).First()
	if content.Length() == 0 {
		return Product{}, fmt.Errorf("no content block")
	}

	titleLink := content.Find(e.Selectors.Title).First()
	title := strings.TrimSpace(titleLink.Text())
	if title == "" {
		title = UnknownTitle
	}

	p = Product{
		Title:           helpers.Truncate(title, maxTitleRunes),
		CurrentPrice:    cleanPrice(content.Find(e.Selectors.CurrentPrice).First().Text()),
		OriginalPrice:   cleanPrice(content.Find(e.Selectors.OriginalPrice).First().Text()),
		DiscountPercent: parseDiscount(content.Find(e.Selectors.Discount).First().Text()),
		URL:             NoURL,
		ImageURL:        NotAvailable,
	}

	if href, ok := titleLink.Attr("href"); ok && strings.TrimSpace(href) != "" {
		p.URL = resolve(base, strings.TrimSpace(href))
	}

	// The image lives outside the content block
	img := container.Find(e.Selectors.Image).First()
	for _, attr := range e.Selectors.ImageAttrs {
		if v, ok := img.Attr(attr); ok && strings.TrimSpace(v) != "" {
			p.ImageURL = helpers.Truncate(resolve(base, strings.TrimSpace(v)), maxImageURLRunes)
			break
		}
	}

	return p, nil
}

func cleanPrice(raw string) string {
	s := priceStripper.Replace(raw)
	s = strings.Join(strings.Fields(s), "")
	if s == "" {
		return NotAvailable
	}
	return helpers.Truncate(s, maxPriceRunes)
}

func parseDiscount(raw string) int {
	m := discountRegex.FindString(raw)
	if m == "" {
		return 0
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	return n
}

func resolve(base *url.URL, ref string) string {
	if base == nil {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}
