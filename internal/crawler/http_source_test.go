package crawler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sjsage522/dealalert/helpers"
	"sjsage522/dealalert/pkg/errors"
)

func TestHTTPSourceLoadsListing(t *testing.T) {
	listing := loadFixture(t, "listing.html")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(listing))
	}))
	defer server.Close()

	ctx := context.Background()
	browser, err := HTTPLauncher()(ctx)
	require.NoError(t, err)
	defer browser.Close()

	page, err := browser.NewPage(ctx)
	require.NoError(t, err)
	defer page.Close()

	require.NoError(t, page.Goto(ctx, server.URL+"/"))
	assert.Equal(t, server.URL+"/", page.URL())

	products := NewExtractor(DefaultSelectors()).Extract(ctx, page)
	require.Len(t, products, 3)
	assert.Equal(t, server.URL+"/deal/boat-airdopes", products[0].URL)
}

func TestHTTPSourceErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/slow-down" {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	ctx := context.Background()
	browser, err := HTTPLauncher()(ctx)
	require.NoError(t, err)

	page, err := browser.NewPage(ctx)
	require.NoError(t, err)

	err = page.Goto(ctx, server.URL+"/slow-down")
	assert.True(t, errors.Is(err, errors.ErrorTypeRateLimit))
	assert.ErrorIs(t, err, helpers.ErrRateLimited)

	err = page.Goto(ctx, server.URL+"/")
	assert.True(t, errors.Is(err, errors.ErrorTypeBrowser))

	require.NoError(t, browser.Close())
	_, err = browser.NewPage(ctx)
	assert.Error(t, err)
}
