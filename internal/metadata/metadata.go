// Package metadata scrapes title, description, favicon and social card data from web pages
// so new bookmarks can be enriched. Fetch never fails: errors produce a degraded result.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"aggregat4/linkbook/internal/cache"
	"aggregat4/linkbook/internal/domain"
	"aggregat4/linkbook/internal/logger"
	"aggregat4/linkbook/internal/urlnorm"
)

const faviconServiceURL = "https://www.google.com/s2/favicons?domain="

type PageMetadata struct {
	Title              string         `json:"title"`
	Description        string         `json:"description"`
	Favicon            string         `json:"favicon"`
	OGTitle            string         `json:"ogTitle"`
	OGDescription      string         `json:"ogDescription"`
	OGImage            string         `json:"ogImage"`
	OGSiteName         string         `json:"ogSiteName"`
	TwitterTitle       string         `json:"twitterTitle"`
	TwitterDescription string         `json:"twitterDescription"`
	TwitterImage       string         `json:"twitterImage"`
	JSONLD             map[string]any `json:"jsonLd,omitempty"`
	Domain             string         `json:"domain"`
	LastUpdated        *time.Time     `json:"lastUpdated,omitempty"`
	Error              string         `json:"error,omitempty"`
}

// Degraded reports whether the page could not be fetched.
func (m PageMetadata) Degraded() bool {
	return m.Error != ""
}

// BookmarkMetadata converts m to the blob stored with a bookmark.
func (m PageMetadata) BookmarkMetadata() *domain.Metadata {
	return &domain.Metadata{
		OpenGraph:   domain.Card{Title: m.OGTitle, Description: m.OGDescription, Image: m.OGImage},
		TwitterCard: domain.Card{Title: m.TwitterTitle, Description: m.TwitterDescription, Image: m.TwitterImage},
		Domain:      m.Domain,
	}
}

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type Options struct {
	Timeout      time.Duration
	UserAgent    string
	MaxBodyBytes int64
	BatchSize    int
	BatchPause   time.Duration
	Now          cache.Clock
}

func OptionsFromConfig(config domain.Configuration) Options {
	return Options{
		Timeout:      time.Duration(config.MetadataTimeoutSeconds) * time.Second,
		UserAgent:    config.MetadataUserAgent,
		MaxBodyBytes: int64(config.MetadataMaxBodyBytes),
		BatchSize:    config.PreloadBatchSize,
		BatchPause:   time.Duration(config.PreloadPauseMilliseconds) * time.Millisecond,
	}
}

type Fetcher struct {
	client HTTPClient
	cache  cache.Cache[PageMetadata]
	log    logger.Logger
	opts   Options
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewFetcher wires a fetcher. Zero option values fall back to a 5s timeout, 2MB bodies,
// batches of 5 and a 500ms pause.
func NewFetcher(client HTTPClient, c cache.Cache[PageMetadata], log logger.Logger, opts Options) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = domain.DefaultConfiguration().MetadataUserAgent
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 2 * 1024 * 1024
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 5
	}
	if opts.BatchPause <= 0 {
		opts.BatchPause = 500 * time.Millisecond
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Fetcher{client: client, cache: c, log: log, opts: opts, sleep: sleepContext}
}

type FetchOptions struct {
	ForceRefresh bool
}

// Fetch returns metadata for rawURL, from cache when possible.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, options FetchOptions) PageMetadata {
	key := urlnorm.Key(rawURL)
	if !options.ForceRefresh {
		if cached, ok := f.cache.Get(ctx, key); ok {
			return cached
		}
	}
	target := urlnorm.EnsureScheme(rawURL)
	md, err := f.download(ctx, target)
	if err != nil {
		f.log.Warn("metadata extraction failed", logger.String("url", target), logger.Error(err))
		return degraded(rawURL, target, err)
	}
	f.cache.Set(ctx, key, md)
	return md
}

// Clear drops every cached entry.
func (f *Fetcher) Clear(ctx context.Context) {
	f.cache.Clear(ctx)
}

func (f *Fetcher) download(ctx context.Context, target string) (PageMetadata, error) {
	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return PageMetadata{}, err
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return PageMetadata{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return PageMetadata{}, fmt.Errorf("failed to fetch URL: %d", resp.StatusCode)
	}
	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "text/html") && !strings.Contains(contentType, "application/xhtml+xml") {
		return PageMetadata{}, errors.New("URL does not point to HTML content")
	}

	pageURL := resp.Request.URL
	if pageURL == nil {
		if pageURL, err = url.Parse(target); err != nil {
			return PageMetadata{}, err
		}
	}
	md, err := extract(io.LimitReader(resp.Body, f.opts.MaxBodyBytes), pageURL)
	if err != nil {
		return PageMetadata{}, fmt.Errorf("error parsing content from %s: %w", target, err)
	}
	md.Domain = urlnorm.Domain(target)
	now := f.opts.Now()
	md.LastUpdated = &now
	return md, nil
}

func degraded(rawURL, target string, err error) PageMetadata {
	host := urlnorm.Domain(target)
	title := host
	if title == "" {
		title = rawURL
	}
	return PageMetadata{
		Title:   title,
		Favicon: faviconServiceURL + host,
		Domain:  host,
		Error:   err.Error(),
	}
}

// Preload warms the cache for urls, BatchSize fetches at a time with BatchPause between
// batches. Failures are absorbed by Fetch, so one bad URL never stops the run.
func (f *Fetcher) Preload(ctx context.Context, urls []string) {
	for start := 0; start < len(urls); start += f.opts.BatchSize {
		if start > 0 {
			if err := f.sleep(ctx, f.opts.BatchPause); err != nil {
				return
			}
		}
		end := min(start+f.opts.BatchSize, len(urls))
		var g errgroup.Group
		for _, u := range urls[start:end] {
			g.Go(func() error {
				f.Fetch(ctx, u, FetchOptions{})
				return nil
			})
		}
		_ = g.Wait()
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
