// Package crawler periodically picks up read later bookmarks for the feed and downloads a
// readable version of their content.
package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"

	"aggregat4/linkbook/internal/domain"
	"aggregat4/linkbook/internal/logger"
)

// Store is the part of *repository.Store the crawler works on.
type Store interface {
	FindFeedCandidates(ctx context.Context, cutoffDate time.Time) ([]domain.FeedCandidate, error)
	SaveFeedCandidate(ctx context.Context, feedCandidate domain.FeedCandidate) error
	PruneFeedCandidates(ctx context.Context, cutoffDate time.Time) error
	GetBookmarksToDownload(ctx context.Context, maxDownloadAttempts, maxBookmarksToDownload int) ([]domain.ReadLaterBookmark, error)
	MarkBookmarkAsFailedToDownload(ctx context.Context, readLaterId uint64, attempts int) error
	SaveBookmarkContent(ctx context.Context, readLaterId uint64, downloaded domain.ReadLaterBookmarkWithContent, content string, attempts int) error
}

type Crawler struct {
	Store  Store
	Config domain.Configuration
	Log    logger.Logger
	Now    func() time.Time

	client *http.Client
	policy *bluemonday.Policy
}

func New(store Store, config domain.Configuration, log logger.Logger) *Crawler {
	return &Crawler{Store: store, Config: config, Log: log, Now: time.Now}
}

func (crawler *Crawler) init() {
	if crawler.client == nil {
		// foreign servers must not make us hang
		crawler.client = &http.Client{
			Timeout: time.Duration(crawler.Config.MaxContentDownloadTimeoutSeconds) * time.Second,
		}
	}
	if crawler.policy == nil {
		crawler.policy = bluemonday.UGCPolicy()
	}
	if crawler.Now == nil {
		crawler.Now = time.Now
	}
	if crawler.Log == nil {
		crawler.Log = logger.NewNop()
	}
}

// Run crawls every FeedCrawlingIntervalSeconds until quitChannel is closed.
func (crawler *Crawler) Run(quitChannel <-chan struct{}) {
	crawler.init()
	ticker := time.NewTicker(time.Duration(crawler.Config.FeedCrawlingIntervalSeconds) * time.Second)
	crawler.Log.Info("Starting bookmark crawler", logger.Int("intervalSeconds", crawler.Config.FeedCrawlingIntervalSeconds))
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		defer cancel()
		for {
			select {
			case <-ticker.C:
				crawler.RunOnce(ctx)
			case <-quitChannel:
				ticker.Stop()
				crawler.Log.Info("Stopping bookmark crawler")
				return
			}
		}
	}()
}

// RunOnce performs a single crawl. Failures are logged and retried on the next run.
func (crawler *Crawler) RunOnce(ctx context.Context) {
	crawler.init()
	crawler.Log.Debug("Running bookmark crawler")
	cutoff := crawler.feedCutoffDate()
	if err := crawler.findNewFeedCandidates(ctx, cutoff); err != nil {
		crawler.Log.Error("Finding feed candidates failed", logger.Error(err))
	}
	if err := crawler.Store.PruneFeedCandidates(ctx, cutoff); err != nil {
		crawler.Log.Error("Pruning feed candidates failed", logger.Error(err))
	}
	if err := crawler.downloadNewReadLaterItems(ctx); err != nil {
		crawler.Log.Error("Downloading read later content failed", logger.Error(err))
	}
}

func (crawler *Crawler) findNewFeedCandidates(ctx context.Context, cutoff time.Time) error {
	candidates, err := crawler.Store.FindFeedCandidates(ctx, cutoff)
	if err != nil {
		return err
	}
	for _, candidate := range candidates {
		if err = crawler.Store.SaveFeedCandidate(ctx, candidate); err != nil {
			return err
		}
	}
	return nil
}

// downloadNewReadLaterItems downloads entries that have no content yet and have not exhausted
// their attempts, at most MaxBookmarksToDownload per run.
func (crawler *Crawler) downloadNewReadLaterItems(ctx context.Context) error {
	toDownload, err := crawler.Store.GetBookmarksToDownload(ctx, crawler.Config.MaxContentDownloadAttempts, crawler.Config.MaxBookmarksToDownload)
	if err != nil {
		return err
	}
	for _, bookmark := range toDownload {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		attempts := bookmark.AttemptCount + 1
		downloaded, err := crawler.downloadContent(ctx, bookmark.Url)
		if err != nil {
			crawler.Log.Warn("Marking content as failed to download",
				logger.String("url", bookmark.Url), logger.Int("attempts", attempts), logger.Error(err))
			err = crawler.Store.MarkBookmarkAsFailedToDownload(ctx, bookmark.Id, attempts)
		} else {
			err = crawler.Store.SaveBookmarkContent(ctx, bookmark.Id, downloaded, crawler.policy.Sanitize(downloaded.Content), attempts)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (crawler *Crawler) downloadContent(ctx context.Context, urlString string) (domain.ReadLaterBookmarkWithContent, error) {
	crawler.Log.Debug("Downloading content", logger.String("url", urlString))
	pageUrl, err := url.Parse(urlString)
	if err != nil {
		return domain.ReadLaterBookmarkWithContent{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlString, nil)
	if err != nil {
		return domain.ReadLaterBookmarkWithContent{}, err
	}
	resp, err := crawler.client.Do(req)
	if err != nil {
		return domain.ReadLaterBookmarkWithContent{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return domain.ReadLaterBookmarkWithContent{}, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, urlString)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(crawler.Config.MaxContentDownloadSizeBytes)))
	if err != nil {
		return domain.ReadLaterBookmarkWithContent{}, fmt.Errorf("error reading response body from %s: %w", urlString, err)
	}
	article, err := readability.FromReader(strings.NewReader(string(body)), pageUrl)
	if err != nil {
		return domain.ReadLaterBookmarkWithContent{}, fmt.Errorf("error parsing content from %s: %w", urlString, err)
	}
	return domain.ReadLaterBookmarkWithContent{
		Url:           urlString,
		RetrievalTime: crawler.Now(),
		Title:         article.Title,
		Byline:        article.Byline,
		Content:       article.Content,
		ContentType:   resp.Header.Get("Content-Type"),
	}, nil
}

func (crawler *Crawler) feedCutoffDate() time.Time {
	return crawler.Now().AddDate(0, -crawler.Config.MonthsToAddToFeed, 0)
}
