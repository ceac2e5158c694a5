package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aggregat4/linkbook/internal/domain"
	"aggregat4/linkbook/internal/logger"
	"aggregat4/linkbook/internal/repository"
)

var now = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

const article = `<!DOCTYPE html>
<html><head><title>Slow Cooking</title></head>
<body>
<nav><a href="/">Home</a></nav>
<article>
<h1>Slow Cooking</h1>
<p class="byline">By Jane Doe</p>
<p>Slow cooking is a method of cooking food at low temperatures for many hours. It lets
tough cuts of meat become tender and gives flavours time to develop properly in the pot.</p>
<p onclick="steal()">Most recipes need only a handful of ingredients, a heavy pot and some patience.
Brown the meat first, add vegetables and stock, then leave everything alone for the afternoon.</p>
<p>When the evening comes the kitchen smells wonderful and dinner is ready without any effort.
Leftovers keep well in the fridge and often taste even better the following day.</p>
<script>alert("x")</script>
</article>
</body></html>`

func setup(t *testing.T) (*repository.Store, *Crawler) {
	store := &repository.Store{Log: logger.NewNop(), Now: func() time.Time { return now }}
	require.NoError(t, store.InitAndVerifyDb(filepath.Join(t.TempDir(), "test.db")))
	t.Cleanup(store.Close)

	config := domain.DefaultConfiguration()
	config.MaxContentDownloadTimeoutSeconds = 2
	crawler := New(store, config, logger.NewNop())
	crawler.Now = func() time.Time { return now }
	return store, crawler
}

func addReadLater(t *testing.T, store *repository.Store, url string, created time.Time) {
	_, err := store.InsertBookmark(context.Background(), domain.Bookmark{
		UserID: "alice", URL: url, Title: url, Tags: []string{}, ReadLater: true, CreatedAt: created, UpdatedAt: created,
	})
	require.NoError(t, err)
}

func TestRunOnceDownloadsAndSanitisesContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, article)
	}))
	defer server.Close()

	store, crawler := setup(t)
	addReadLater(t, store, server.URL+"/slow-cooking", now.Add(-time.Hour))

	crawler.RunOnce(context.Background())

	items, err := store.FindReadLaterBookmarksWithContent(context.Background(), "alice", 3)
	require.NoError(t, err)
	require.Len(t, items, 1)
	item := items[0]
	assert.True(t, item.SuccessfullyRetrieved)
	assert.Equal(t, server.URL+"/slow-cooking", item.Url)
	assert.Equal(t, "text/html; charset=utf-8", item.ContentType)
	assert.Equal(t, now, item.RetrievalTime)
	assert.Contains(t, item.Content, "Slow cooking is a method")
	assert.NotContains(t, item.Content, "onclick")
	assert.NotContains(t, item.Content, "<script")
}

func TestRunOnceGivesUpAfterMaxAttempts(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	store, crawler := setup(t)
	addReadLater(t, store, server.URL+"/broken", now.Add(-time.Hour))

	for i := 0; i < 5; i++ {
		crawler.RunOnce(context.Background())
	}
	assert.Equal(t, int32(crawler.Config.MaxContentDownloadAttempts), hits.Load())

	items, err := store.FindReadLaterBookmarksWithContent(context.Background(), "alice", crawler.Config.MaxContentDownloadAttempts)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.False(t, items[0].SuccessfullyRetrieved)
}

func TestOldBookmarksAreNotFeedCandidates(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, article)
	}))
	defer server.Close()

	store, crawler := setup(t)
	addReadLater(t, store, server.URL+"/ancient", now.AddDate(-1, 0, 0))

	crawler.RunOnce(context.Background())

	assert.Zero(t, hits.Load())
	items, err := store.FindReadLaterBookmarksWithContent(context.Background(), "alice", 3)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestDownloadContentRejectsBadUrls(t *testing.T) {
	_, crawler := setup(t)
	crawler.init()
	_, err := crawler.downloadContent(context.Background(), "http://%zz")
	assert.Error(t, err)
	_, err = crawler.downloadContent(context.Background(), "http://127.0.0.1:1/nothing")
	assert.Error(t, err)
}

func TestRunStopsOnQuit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, article)
	}))
	defer server.Close()

	store, crawler := setup(t)
	crawler.Config.FeedCrawlingIntervalSeconds = 1
	addReadLater(t, store, server.URL+"/a", now.Add(-time.Minute))

	quit := make(chan struct{})
	crawler.Run(quit)
	defer close(quit)

	assert.Eventually(t, func() bool {
		items, err := store.FindReadLaterBookmarksWithContent(context.Background(), "alice", 3)
		return err == nil && len(items) == 1 && strings.Contains(items[0].Content, "Slow cooking")
	}, 5*time.Second, 100*time.Millisecond)
}
