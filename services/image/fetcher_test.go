package image

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n0000")

func TestFetchSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "https://roobai.com/", r.Header.Get("Referer"))
		assert.Contains(t, r.Header.Get("Accept"), "image/")
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "image/jpeg; charset=binary")
		w.Write([]byte("jpegdata"))
	}))
	defer server.Close()

	f := NewFetcher(1024, time.Second)
	data, mime, ok := f.Fetch(context.Background(), server.URL+"/a.jpg", "https://roobai.com/")

	require.True(t, ok)
	assert.Equal(t, "jpegdata", string(data))
	assert.Equal(t, "image/jpeg", mime)
}

func TestFetchSniffsMimeType(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(pngHeader)
	}))
	defer server.Close()

	_, mime, ok := NewFetcher(1024, time.Second).Fetch(context.Background(), server.URL, "")
	require.True(t, ok)
	assert.Equal(t, "image/png", mime)
}

func TestFetchRejectsNon200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	_, _, ok := NewFetcher(1024, time.Second).Fetch(context.Background(), server.URL, "")
	assert.False(t, ok)
}

func TestFetchRejectsOversize(t *testing.T) {
	big := bytes.Repeat([]byte("x"), 2048)

	t.Run("declared length", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "image/jpeg")
			w.Write(big)
		}))
		defer server.Close()

		_, _, ok := NewFetcher(1024, time.Second).Fetch(context.Background(), server.URL, "")
		assert.False(t, ok)
	})

	t.Run("chunked body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "image/jpeg")
			for i := 0; i < 4; i++ {
				w.Write(big[:512])
				w.(http.Flusher).Flush()
			}
			w.Write([]byte("!"))
		}))
		defer server.Close()

		_, _, ok := NewFetcher(2048, time.Second).Fetch(context.Background(), server.URL, "")
		assert.False(t, ok)
	})

	t.Run("exactly at cap", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "image/jpeg")
			w.Write(big[:1024])
		}))
		defer server.Close()

		data, _, ok := NewFetcher(1024, time.Second).Fetch(context.Background(), server.URL, "")
		assert.True(t, ok)
		assert.Len(t, data, 1024)
	})
}

func TestFetchTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	start := time.Now()
	_, _, ok := NewFetcher(1024, 100*time.Millisecond).Fetch(context.Background(), server.URL, "")
	assert.False(t, ok)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestFetchRejectsPlaceholderURLs(t *testing.T) {
	f := NewFetcher(0, 0)
	for _, u := range []string{"", "N/A", "#", "data:image/png;base64,AAAA", "ftp://example.com/a.png"} {
		_, _, ok := f.Fetch(context.Background(), u, "")
		assert.False(t, ok, u)
	}
}
