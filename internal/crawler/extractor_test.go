package crawler

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadFixture(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile("testdata/" + name)
	require.NoError(t, err)
	return string(data)
}

func TestExtractListing(t *testing.T) {
	page := NewMockPage("https://roobai.com/", loadFixture(t, "listing.html"))
	products := NewExtractor(DefaultSelectors()).Extract(context.Background(), page)

	require.Len(t, products, 3)

	assert.Equal(t, Product{
		Title:           "boAt Airdopes 141",
		CurrentPrice:    "899",
		OriginalPrice:   "4,490",
		DiscountPercent: 80,
		URL:             "https://roobai.com/deal/boat-airdopes",
		ImageURL:        "https://cdn.example.com/boat.jpg",
	}, products[0])

	// Lazy image attribute and absolute link
	assert.Equal(t, "Pigeon Electric Kettle", products[1].Title)
	assert.Equal(t, "449", products[1].CurrentPrice)
	assert.Equal(t, "1,195", products[1].OriginalPrice)
	assert.Equal(t, 62, products[1].DiscountPercent)
	assert.Equal(t, "https://shop.example.com/kettle", products[1].URL)
	assert.Equal(t, "https://roobai.com/img/kettle.png", products[1].ImageURL)

	// Missing fields fall back to placeholders
	assert.Equal(t, "Mystery Box", products[2].Title)
	assert.Equal(t, NoURL, products[2].URL)
	assert.Equal(t, NotAvailable, products[2].CurrentPrice)
	assert.Equal(t, NotAvailable, products[2].ImageURL)
	assert.False(t, products[2].HasImage())
	assert.Equal(t, 90, products[2].DiscountPercent)
}

func TestExtractNeverReturnsUnknownOrZeroDiscount(t *testing.T) {
	page := NewMockPage("https://roobai.com/", loadFixture(t, "listing.html"))
	for _, p := range NewExtractor(DefaultSelectors()).Extract(context.Background(), page) {
		assert.NotEqual(t, UnknownTitle, p.Title)
		assert.Greater(t, p.DiscountPercent, 0)
	}
}

func TestExtractFallsBackToGenericContainers(t *testing.T) {
	html := `<html><body>
	<div class="product-card">
		<img class="img-res-thumb" data-lazy-src="https://cdn.example.com/tv.jpg">
		<div class="post-grid-content">
			<div class="title-roobae-deal"><a href="https://shop.example.com/tv">Smart TV 43</a></div>
			<b class="cur-price">$199</b>
			<b class="discount-rb">-55%</b>
		</div>
	</div>
	<div class="swiper-slide">
		<div class="post-grid-content">
			<div class="title-roobae-deal"><a href="/x">Not used</a></div>
			<b class="discount-rb">99%</b>
		</div>
	</div>
	</body></html>`

	products := NewExtractor(DefaultSelectors()).Extract(context.Background(), NewMockPage("https://roobai.com/", html))

	// The first matching selector wins and results are not merged
	require.Len(t, products, 1)
	assert.Equal(t, "Smart TV 43", products[0].Title)
	assert.Equal(t, "199", products[0].CurrentPrice)
	assert.Equal(t, 55, products[0].DiscountPercent)
	assert.Equal(t, "https://cdn.example.com/tv.jpg", products[0].ImageURL)
}

func TestExtractCarouselSlides(t *testing.T) {
	html := `<html><body><div class="swiper-slide">
		<div class="post-grid-content">
			<div class="title-roobae-deal"><a href="/slide">Slide Deal</a></div>
			<span class="discount-rb">70%</span>
		</div>
	</div></body></html>`

	products := NewExtractor(DefaultSelectors()).Extract(context.Background(), NewMockPage("https://roobai.com/", html))
	require.Len(t, products, 1)
	assert.Equal(t, "https://roobai.com/slide", products[0].URL)
}

func TestExtractEmptyOnPageFailure(t *testing.T) {
	e := NewExtractor(DefaultSelectors())

	page := NewMockPage("https://roobai.com/", "")
	page.htmlErr = errMockHTML
	assert.Empty(t, e.Extract(context.Background(), page))

	assert.Empty(t, e.Extract(context.Background(), NewMockPage("https://roobai.com/", "<html><body>maintenance</body></html>")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Empty(t, e.Extract(ctx, NewMockPage("https://roobai.com/", loadFixture(t, "listing.html"))))
}

func TestExtractTruncatesLongFields(t *testing.T) {
	long := make([]rune, 300)
	for i := range long {
		long[i] = 'a'
	}
	html := `<div class="gridSlider__products"><div class="post-grid-content">
		<div class="title-roobae-deal"><a href="/a">` + string(long) + `</a></div>
		<span class="discount-rb">81%</span></div></div>`

	products := NewExtractor(DefaultSelectors()).Extract(context.Background(), NewMockPage("https://roobai.com/", html))
	require.Len(t, products, 1)
	assert.Len(t, []rune(products[0].Title), maxTitleRunes)
}

func TestFingerprintIgnoresPrices(t *testing.T) {
	a := Product{Title: "Air Fryer XL", DiscountPercent: 85, CurrentPrice: "1,999"}
	b := Product{Title: "air fryer xl", DiscountPercent: 85, CurrentPrice: "1999.00"}
	c := Product{Title: "Air Fryer XL", DiscountPercent: 86}

	assert.Equal(t, "air fryer xl-85", a.Fingerprint())
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}

func TestCleanPriceAndDiscount(t *testing.T) {
	assert.Equal(t, "1,299", cleanPrice(" ₹ 1,299 "))
	assert.Equal(t, "49.99", cleanPrice("$49.99"))
	assert.Equal(t, NotAvailable, cleanPrice("  "))

	assert.Equal(t, 80, parseDiscount("80% off"))
	assert.Equal(t, 12, parseDiscount("Save 12 to 30%"))
	assert.Equal(t, 0, parseDiscount("deal"))
}
