package metadata

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aggregat4/linkbook/internal/cache"
	"aggregat4/linkbook/internal/logger"
)

const articlePage = `<!DOCTYPE html>
<html><head>
<title>Plain title</title>
<meta name="description" content="Plain description">
<meta property="og:title" content="OG title">
<meta property="og:description" content="OG description">
<meta property="og:image" content="/images/cover.png">
<meta property="og:site_name" content="Example Site">
<meta name="twitter:title" content="Twitter title">
<meta name="twitter:image:src" content="//cdn.example.net/card.jpg">
<link rel="apple-touch-icon" href="/apple.png">
<link rel="icon" href="favicon.ico">
<link rel="icon" sizes="48x48" href="/icon-48.png">
</head><body><h1>Hello</h1></body></html>`

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestFetcher(clock *testClock) *Fetcher {
	return NewFetcher(http.DefaultClient, cache.NewTTL[PageMetadata](24*time.Hour, clock.Now), logger.NewNop(), Options{
		Timeout: 2 * time.Second,
		Now:     clock.Now,
	})
}

func htmlHandler(body string, hits *int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, body)
	}
}

func TestFetchExtractsOpenGraphFirst(t *testing.T) {
	var hits int32
	server := httptest.NewServer(htmlHandler(articlePage, &hits))
	defer server.Close()

	f := newTestFetcher(&testClock{now: time.Now()})
	md := f.Fetch(context.Background(), server.URL+"/blog/post", FetchOptions{})

	assert.False(t, md.Degraded())
	assert.Equal(t, "OG title", md.Title)
	assert.Equal(t, "OG description", md.Description)
	assert.Equal(t, server.URL+"/images/cover.png", md.OGImage)
	assert.Equal(t, "Example Site", md.OGSiteName)
	assert.Equal(t, "Twitter title", md.TwitterTitle)
	assert.Equal(t, "http://cdn.example.net/card.jpg", md.TwitterImage)
	assert.Equal(t, server.URL+"/icon-48.png", md.Favicon)
	assert.Equal(t, "127.0.0.1", md.Domain)
	assert.NotNil(t, md.LastUpdated)
}

func TestFetchTitlePriority(t *testing.T) {
	tests := []struct {
		name            string
		head            string
		wantTitle       string
		wantDescription string
	}{
		{
			name:            "twitter card when no open graph",
			head:            `<title>T</title><meta name="twitter:title" content="Tw"><meta name="twitter:description" content="TwD">`,
			wantTitle:       "Tw",
			wantDescription: "TwD",
		},
		{
			name: "json-ld article",
			head: `<title>T</title><meta name="description" content="D">
<script type="application/ld+json">{"@type":"Article","headline":"LD headline","description":"LD description"}</script>`,
			wantTitle:       "LD headline",
			wantDescription: "LD description",
		},
		{
			name: "json-ld name is not a title",
			head: `<title>T</title>
<script type="application/ld+json">{"@type":"WebPage","name":"LD name"}</script>`,
			wantTitle:       "T",
			wantDescription: "",
		},
		{
			name: "json-ld of unsupported type is ignored",
			head: `<title>T</title><meta name="description" content="D">
<script type="application/ld+json">{"@type":"Person","headline":"nope"}</script>
<script type="application/ld+json">{not json}</script>`,
			wantTitle:       "T",
			wantDescription: "D",
		},
		{
			name:            "nothing at all",
			head:            ``,
			wantTitle:       "",
			wantDescription: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits int32
			server := httptest.NewServer(htmlHandler("<html><head>"+tt.head+"</head><body></body></html>", &hits))
			defer server.Close()

			md := newTestFetcher(&testClock{now: time.Now()}).Fetch(context.Background(), server.URL, FetchOptions{})
			assert.False(t, md.Degraded())
			assert.Equal(t, tt.wantTitle, md.Title)
			assert.Equal(t, tt.wantDescription, md.Description)
		})
	}
}

func TestFetchUsesCacheWithinTTL(t *testing.T) {
	var hits int32
	server := httptest.NewServer(htmlHandler(articlePage, &hits))
	defer server.Close()

	clock := &testClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	f := newTestFetcher(clock)
	ctx := context.Background()

	first := f.Fetch(ctx, server.URL+"/Page/", FetchOptions{})
	clock.Advance(23 * time.Hour)
	// same page after normalisation
	second := f.Fetch(ctx, server.URL+"/page", FetchOptions{})
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	assert.Equal(t, first, second)

	clock.Advance(time.Hour)
	f.Fetch(ctx, server.URL+"/page", FetchOptions{})
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))

	f.Fetch(ctx, server.URL+"/page", FetchOptions{ForceRefresh: true})
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))

	f.Clear(ctx)
	f.Fetch(ctx, server.URL+"/page", FetchOptions{})
	assert.Equal(t, int32(4), atomic.LoadInt32(&hits))
}

func TestFetchDegradesOnFailure(t *testing.T) {
	notFound := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer notFound.Close()
	jsonServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{}`)
	}))
	defer jsonServer.Close()
	closed := httptest.NewServer(http.NotFoundHandler())
	closedURL := closed.URL
	closed.Close()

	f := newTestFetcher(&testClock{now: time.Now()})
	for _, target := range []string{notFound.URL, jsonServer.URL, closedURL} {
		md := f.Fetch(context.Background(), target, FetchOptions{})
		assert.True(t, md.Degraded(), target)
		assert.Equal(t, "127.0.0.1", md.Title)
		assert.Equal(t, "", md.Description)
		assert.Equal(t, "https://www.google.com/s2/favicons?domain=127.0.0.1", md.Favicon)
		assert.NotEmpty(t, md.Error)
	}
}

func TestFetchDegradedResultIsNotCached(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	f := newTestFetcher(&testClock{now: time.Now()})
	f.Fetch(context.Background(), server.URL, FetchOptions{})
	f.Fetch(context.Background(), server.URL, FetchOptions{})
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestFetchTimesOut(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	f := NewFetcher(http.DefaultClient, cache.NewTTL[PageMetadata](time.Hour, nil), logger.NewNop(), Options{Timeout: 50 * time.Millisecond})
	started := time.Now()
	md := f.Fetch(context.Background(), server.URL, FetchOptions{})
	assert.True(t, md.Degraded())
	assert.Less(t, time.Since(started), 2*time.Second)
}

func TestFetchSendsHeaders(t *testing.T) {
	var userAgent, accept string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent = r.Header.Get("User-Agent")
		accept = r.Header.Get("Accept")
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<title>x</title>")
	}))
	defer server.Close()

	newTestFetcher(&testClock{now: time.Now()}).Fetch(context.Background(), server.URL, FetchOptions{})
	assert.Contains(t, userAgent, "LinkBook")
	assert.Contains(t, accept, "text/html")
}

func TestPreloadBatchesAndIsolatesFailures(t *testing.T) {
	var inflight, maxInflight, hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&inflight, 1)
		for {
			m := atomic.LoadInt32(&maxInflight)
			if n <= m || atomic.CompareAndSwapInt32(&maxInflight, m, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&inflight, -1)
		atomic.AddInt32(&hits, 1)
		if strings.HasSuffix(r.URL.Path, "/broken") {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, "<title>%s</title>", r.URL.Path)
	}))
	defer server.Close()

	urls := make([]string, 0, 12)
	for i := 0; i < 11; i++ {
		urls = append(urls, fmt.Sprintf("%s/page-%d", server.URL, i))
	}
	urls = append(urls, server.URL+"/broken")

	f := newTestFetcher(&testClock{now: time.Now()})
	var pauses []time.Duration
	f.sleep = func(ctx context.Context, d time.Duration) error {
		pauses = append(pauses, d)
		return nil
	}
	f.Preload(context.Background(), urls)

	assert.Equal(t, int32(12), atomic.LoadInt32(&hits))
	assert.LessOrEqual(t, atomic.LoadInt32(&maxInflight), int32(5))
	assert.Equal(t, []time.Duration{500 * time.Millisecond, 500 * time.Millisecond}, pauses)

	// successful pages are now cached
	f.Fetch(context.Background(), urls[0], FetchOptions{})
	assert.Equal(t, int32(12), atomic.LoadInt32(&hits))
}

func TestPreloadStopsWhenContextIsCancelled(t *testing.T) {
	var hits int32
	server := httptest.NewServer(htmlHandler("<title>x</title>", &hits))
	defer server.Close()

	urls := make([]string, 0, 10)
	for i := 0; i < 10; i++ {
		urls = append(urls, fmt.Sprintf("%s/p%d", server.URL, i))
	}
	ctx, cancel := context.WithCancel(context.Background())
	f := newTestFetcher(&testClock{now: time.Now()})
	f.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}
	f.Preload(ctx, urls)
	assert.Equal(t, int32(5), atomic.LoadInt32(&hits))
}

func TestAbsoluteURL(t *testing.T) {
	base, err := url.Parse("https://example.com/blog/post.html")
	require.NoError(t, err)

	tests := []struct {
		ref, want string
	}{
		{"", ""},
		{"https://cdn.example.com/a.png", "https://cdn.example.com/a.png"},
		{"HTTP://cdn.example.com/a.png", "HTTP://cdn.example.com/a.png"},
		{"//cdn.example.com/a.png", "https://cdn.example.com/a.png"},
		{"/static/a.png", "https://example.com/static/a.png"},
		{"images/a.png", "https://example.com/blog/images/a.png"},
		{"../a.png", "https://example.com/a.png"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, absoluteURL(tt.ref, base), tt.ref)
	}
}

func TestFaviconPreferenceOrder(t *testing.T) {
	base, _ := url.Parse("https://example.com/")
	tests := []struct {
		name  string
		head  string
		want  string
	}{
		{"32x32 beats everything", `<link rel="apple-touch-icon" href="/a.png"><link rel="icon" href="/i.ico"><link rel="icon" sizes="32x32" href="/32.png">`, "https://example.com/32.png"},
		{"shortcut icon beats generic icon", `<link rel="icon" href="/i.ico"><link rel="shortcut icon" href="/s.ico">`, "https://example.com/s.ico"},
		{"apple touch icon last", `<link rel="apple-touch-icon" href="/a.png">`, "https://example.com/a.png"},
		{"service fallback", ``, "https://www.google.com/s2/favicons?domain=example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			md, err := extract(strings.NewReader("<html><head>"+tt.head+"</head></html>"), base)
			require.NoError(t, err)
			assert.Equal(t, tt.want, md.Favicon)
		})
	}
}

func TestExtractHonoursBaseElement(t *testing.T) {
	page, _ := url.Parse("https://example.com/a/b.html")
	md, err := extract(strings.NewReader(`<html><head><base href="https://static.example.com/assets/"><meta property="og:image" content="cover.jpg"></head></html>`), page)
	require.NoError(t, err)
	assert.Equal(t, "https://static.example.com/assets/cover.jpg", md.OGImage)
}

func TestBookmarkMetadata(t *testing.T) {
	md := PageMetadata{OGTitle: "o", OGImage: "https://x/i.png", TwitterDescription: "t", Domain: "x"}
	bm := md.BookmarkMetadata()
	assert.Equal(t, "o", bm.OpenGraph.Title)
	assert.Equal(t, "https://x/i.png", bm.OpenGraph.Image)
	assert.Equal(t, "t", bm.TwitterCard.Description)
	assert.Equal(t, "x", bm.Domain)
}
