// Package middleware implements the OpenID Connect login flow for echo.
package middleware

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aggregat4/go-baselib/crypto"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/labstack/echo/v4"
	"golang.org/x/oauth2"

	"aggregat4/linkbook/internal/logger"
)

const stateCookieName = "oidc-callback-state-cookie"

// TokenVerifier checks a raw ID token and returns its subject.
type TokenVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (string, error)
}

type oidcVerifier struct {
	verifier *oidc.IDTokenVerifier
}

func (v oidcVerifier) Verify(ctx context.Context, rawIDToken string) (string, error) {
	idToken, err := v.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return "", err
	}
	return idToken.Subject, nil
}

type OidcMiddleware struct {
	Config   oauth2.Config
	Verifier TokenVerifier
	Log      logger.Logger
}

// NewOidcMiddleware discovers the identity provider at idpServer.
func NewOidcMiddleware(ctx context.Context, idpServer, clientID, clientSecret, redirectURI string, log logger.Logger) (*OidcMiddleware, error) {
	provider, err := oidc.NewProvider(ctx, idpServer)
	if err != nil {
		return nil, err
	}
	return &OidcMiddleware{
		Config: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID},
		},
		Verifier: oidcVerifier{verifier: provider.Verifier(&oidc.Config{ClientID: clientID})},
		Log:      log,
	}, nil
}

// CreateOidcMiddleware sends unauthenticated requests to the identity provider. The original
// request URL travels in the state so the callback can return there.
func (m *OidcMiddleware) CreateOidcMiddleware(isAuthenticated func(c echo.Context) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if isAuthenticated(c) {
				return next(c)
			}
			state, err := crypto.RandomString(16)
			if err != nil {
				m.Log.Error("Creating OIDC state failed", logger.Error(err))
				return echo.NewHTTPError(http.StatusInternalServerError)
			}
			state = state + "|" + base64.URLEncoding.EncodeToString([]byte(c.Request().URL.String()))
			c.SetCookie(&http.Cookie{
				Name:     stateCookieName,
				Value:    state,
				Path:     "/",
				Expires:  time.Now().Add(5 * time.Minute),
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
			return c.Redirect(http.StatusFound, m.Config.AuthCodeURL(state))
		}
	}
}

// CreateOidcCallbackEndpoint completes the code flow and hands the verified subject and the
// URL to return to to delegate.
func (m *OidcMiddleware) CreateOidcCallbackEndpoint(delegate func(c echo.Context, subject, returnTo string) error) echo.HandlerFunc {
	return func(c echo.Context) error {
		state, err := c.Cookie(stateCookieName)
		if err != nil {
			m.Log.Warn("OIDC callback without state cookie", logger.Error(err))
			return echo.NewHTTPError(http.StatusUnauthorized)
		}
		if c.QueryParam("state") != state.Value {
			m.Log.Warn("OIDC callback state mismatch")
			return echo.NewHTTPError(http.StatusUnauthorized)
		}
		oauth2Token, err := m.Config.Exchange(c.Request().Context(), c.QueryParam("code"))
		if err != nil {
			m.Log.Warn("OIDC code exchange failed", logger.Error(err))
			return echo.NewHTTPError(http.StatusUnauthorized)
		}
		rawIDToken, ok := oauth2Token.Extra("id_token").(string)
		if !ok {
			m.Log.Warn("OIDC token response without id_token")
			return echo.NewHTTPError(http.StatusUnauthorized)
		}
		subject, err := m.Verifier.Verify(c.Request().Context(), rawIDToken)
		if err != nil {
			m.Log.Warn("OIDC ID token verification failed", logger.Error(err))
			return echo.NewHTTPError(http.StatusUnauthorized)
		}
		c.SetCookie(&http.Cookie{Name: stateCookieName, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
		return delegate(c, subject, ReturnURL(state.Value, "/"))
	}
}

// ReturnURL extracts the original request path from state, see LocalPath.
func ReturnURL(state, fallback string) string {
	_, encoded, found := strings.Cut(state, "|")
	if !found {
		return fallback
	}
	decoded, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return fallback
	}
	return LocalPath(string(decoded), fallback)
}

// LocalPath returns raw if it is a path on this server and fallback otherwise, so redirects can
// not leave the site.
func LocalPath(raw, fallback string) string {
	if !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") {
		return fallback
	}
	u, err := url.Parse(raw)
	if err != nil || u.IsAbs() || u.Host != "" {
		return fallback
	}
	return u.String()
}
