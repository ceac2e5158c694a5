package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aggregat4/go-baselib/lang"
	"github.com/gorilla/feeds"
	"github.com/labstack/echo/v4"

	"aggregat4/linkbook/internal/apperrors"
	"aggregat4/linkbook/internal/logger"
)

func (controller *Controller) feedUrl(feedId string) string {
	return strings.TrimRight(controller.Config.BaseUrl, "/") + "/feeds/" + feedId
}

func (controller *Controller) getFeedUrl(c echo.Context) error {
	feedId, err := controller.Store.GetOrCreateFeedIdForUser(c.Request().Context(), currentUser(c))
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, map[string]string{"url": controller.feedUrl(feedId)})
}

// showFeed renders the read later articles of the feed's owner as RSS. The feed id is the only
// credential, so it is not behind the session.
func (controller *Controller) showFeed(c echo.Context) error {
	feedId := c.Param("id")
	userId, err := controller.Store.FindUserIdForFeedId(c.Request().Context(), feedId)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			controller.Log.Debug("Unknown feed requested", logger.String("feed", feedId))
		}
		return err
	}
	readLaterBookmarks, err := controller.Store.FindReadLaterBookmarksWithContent(c.Request().Context(), userId, controller.Config.MaxContentDownloadAttempts)
	if err != nil {
		return err
	}
	feed := &feeds.Feed{
		Title:       "LinkBook Read Later",
		Link:        &feeds.Link{Href: controller.feedUrl(feedId)},
		Description: "Your bookmarks marked as read later.",
		Created:     time.Now(),
	}
	for _, readLater := range readLaterBookmarks {
		if !readLater.SuccessfullyRetrieved {
			feed.Add(&feeds.Item{
				Title:   lang.IfElse(readLater.Title != "", readLater.Title, readLater.Url),
				Link:    &feeds.Link{Href: readLater.Url},
				Content: "The content of this bookmark could not be downloaded.",
				Id:      readLater.Url,
				Created: time.Now(),
			})
			continue
		}
		contentTypeIsHtml := readLater.ContentType == "" || strings.Contains(readLater.ContentType, "text/html")
		feed.Add(&feeds.Item{
			Title:   readLater.Title,
			Link:    &feeds.Link{Href: readLater.Url},
			Content: lang.IfElse(contentTypeIsHtml, readLater.Content, "Content is not HTML."),
			Id:      readLater.Url + "#" + strconv.FormatInt(readLater.RetrievalTime.Unix(), 10),
			Author:  &feeds.Author{Name: readLater.Byline},
			Created: readLater.RetrievalTime,
		})
	}
	rss, err := feed.ToRss()
	if err != nil {
		return apperrors.Internal("rendering feed failed", err)
	}
	return c.Blob(http.StatusOK, "application/rss+xml; charset=utf-8", []byte(rss))
}
