// Package server exposes the bookmark services as a JSON API and serves the read later RSS feed.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"aggregat4/linkbook/internal/apperrors"
	"aggregat4/linkbook/internal/domain"
	"aggregat4/linkbook/internal/logger"
	oidcmiddleware "aggregat4/linkbook/internal/middleware"
	"aggregat4/linkbook/internal/service"
)

const (
	sessionName   = "user_session"
	sessionUserID = "user_id"
	userKey       = "userID"
)

// FeedStore is the part of *repository.Store used for feeds and caching headers.
type FeedStore interface {
	GetLastModifiedDate(ctx context.Context, userID string) (time.Time, error)
	GetOrCreateFeedIdForUser(ctx context.Context, userID string) (string, error)
	FindUserIdForFeedId(ctx context.Context, feedId string) (string, error)
	FindReadLaterBookmarksWithContent(ctx context.Context, userId string, maxDownloadAttempts int) ([]domain.ReadLaterBookmarkWithContent, error)
}

type Controller struct {
	Bookmarks *service.Bookmarks
	Settings  *service.Settings
	Store     FeedStore
	Config    domain.Configuration
	Log       logger.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

func (controller *Controller) now() time.Time {
	if controller.Now != nil {
		return controller.Now()
	}
	return time.Now()
}

// NewEcho builds the echo instance with all routes. Without an OIDC middleware the login routes
// are left out, which is what the tests use.
func NewEcho(controller *Controller, oidc *oidcmiddleware.OidcMiddleware) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	// https://blog.cloudflare.com/the-complete-guide-to-golang-net-http-timeouts/
	e.Server.ReadTimeout = time.Duration(controller.Config.ServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(controller.Config.ServerWriteTimeoutSeconds) * time.Second
	e.HTTPErrorHandler = controller.handleError

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogMethod:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				controller.Log.Warn("Request failed", logger.String("method", v.Method), logger.String("uri", v.URI),
					logger.Int("status", v.Status), logger.Duration("latency", v.Latency), logger.Error(v.Error))
				return nil
			}
			controller.Log.Debug("Request", logger.String("method", v.Method), logger.String("uri", v.URI),
				logger.Int("status", v.Status), logger.Duration("latency", v.Latency))
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(session.Middleware(sessions.NewCookieStore([]byte(controller.Config.SessionCookieSecretKey))))
	e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Level: 5,
	}))
	e.Use(middleware.BodyLimit("10M"))

	if oidc != nil {
		e.GET("/oidccallback", oidc.CreateOidcCallbackEndpoint(controller.completeLogin))
		e.GET("/login", controller.login, oidc.CreateOidcMiddleware(controller.isAuthenticated))
	}
	e.POST("/logout", controller.logout)
	e.GET("/feeds/:id", controller.showFeed)

	api := e.Group("/api", controller.requireUser)
	api.GET("/bookmarks", controller.listBookmarks)
	api.POST("/bookmarks", controller.addBookmark)
	api.POST("/bookmarks/batch", controller.batchAddBookmarks)
	api.POST("/bookmarks/batch-delete", controller.batchDeleteBookmarks)
	api.GET("/bookmarks/:id", controller.getBookmark)
	api.PUT("/bookmarks/:id", controller.updateBookmark)
	api.DELETE("/bookmarks/:id", controller.deleteBookmark)
	api.POST("/bookmarks/:id/visit", controller.visitBookmark)
	api.GET("/tags", controller.listTags)
	api.GET("/folders", controller.listFolders)
	api.GET("/settings", controller.getSettings)
	api.PATCH("/settings", controller.updateSettings)
	api.POST("/import", controller.importBookmarks)
	api.GET("/export", controller.exportBookmarks)
	api.GET("/metadata", controller.getMetadata)
	api.GET("/stats", controller.getStats)
	api.GET("/feed", controller.getFeedUrl)
	return e
}

func (controller *Controller) isAuthenticated(c echo.Context) bool {
	_, err := userIdFromSession(c)
	return err == nil
}

func userIdFromSession(c echo.Context) (string, error) {
	sess, err := session.Get(sessionName, c)
	if err != nil {
		return "", err
	}
	userID, ok := sess.Values[sessionUserID].(string)
	if !ok || userID == "" {
		return "", apperrors.Unauthorized("not logged in")
	}
	return userID, nil
}

// requireUser answers API requests without a session with 401 instead of redirecting to the
// identity provider.
func (controller *Controller) requireUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := userIdFromSession(c)
		if err != nil {
			return apperrors.Unauthorized("authentication required")
		}
		c.Set(userKey, userID)
		return next(c)
	}
}

func currentUser(c echo.Context) string {
	userID, _ := c.Get(userKey).(string)
	return userID
}

func (controller *Controller) completeLogin(c echo.Context, subject, returnTo string) error {
	sess, err := session.Get(sessionName, c)
	if err != nil {
		return apperrors.Internal("session unavailable", err)
	}
	sess.Options = &sessions.Options{Path: "/", MaxAge: 30 * 24 * 60 * 60, HttpOnly: true, SameSite: http.SameSiteLaxMode}
	sess.Values[sessionUserID] = subject
	if err = sess.Save(c.Request(), c.Response()); err != nil {
		return apperrors.Internal("saving session failed", err)
	}
	controller.Log.Info("User logged in", logger.String("user", subject))
	return c.Redirect(http.StatusFound, returnTo)
}

func (controller *Controller) login(c echo.Context) error {
	return c.Redirect(http.StatusFound, oidcmiddleware.LocalPath(c.QueryParam("next"), "/api/settings"))
}

func (controller *Controller) logout(c echo.Context) error {
	sess, err := session.Get(sessionName, c)
	if err == nil {
		sess.Options = &sessions.Options{Path: "/", MaxAge: -1}
		delete(sess.Values, sessionUserID)
		_ = sess.Save(c.Request(), c.Response())
	}
	return c.NoContent(http.StatusNoContent)
}
