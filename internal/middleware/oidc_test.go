package middleware

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"aggregat4/linkbook/internal/logger"
)

type fakeVerifier struct {
	subject string
	err     error
}

func (f fakeVerifier) Verify(_ context.Context, raw string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if raw != "raw-id-token" {
		return "", errors.New("unexpected token")
	}
	return f.subject, nil
}

func newTestMiddleware(tokenURL string, verifier TokenVerifier) *OidcMiddleware {
	return &OidcMiddleware{
		Config: oauth2.Config{
			ClientID:     "client",
			ClientSecret: "secret",
			RedirectURL:  "http://localhost/oidccallback",
			Endpoint: oauth2.Endpoint{
				AuthURL:   "https://idp.example/auth",
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		Verifier: verifier,
		Log:      logger.NewNop(),
	}
}

func TestUnauthenticatedRequestsAreRedirected(t *testing.T) {
	m := newTestMiddleware("", fakeVerifier{})
	e := echo.New()
	handler := m.CreateOidcMiddleware(func(c echo.Context) bool { return false })(func(c echo.Context) error {
		return c.String(http.StatusOK, "secret")
	})

	req := httptest.NewRequest(http.MethodGet, "/login?next=/api/bookmarks", nil)
	rec := httptest.NewRecorder()
	require.NoError(t, handler(e.NewContext(req, rec)))

	assert.Equal(t, http.StatusFound, rec.Code)
	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "idp.example", location.Host)
	state := location.Query().Get("state")
	require.NotEmpty(t, state)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, stateCookieName, cookies[0].Name)
	assert.Equal(t, state, cookies[0].Value)
	assert.Equal(t, "/login?next=/api/bookmarks", ReturnURL(state, "/"))
}

func TestAuthenticatedRequestsPassThrough(t *testing.T) {
	m := newTestMiddleware("", fakeVerifier{})
	e := echo.New()
	handler := m.CreateOidcMiddleware(func(c echo.Context) bool { return true })(func(c echo.Context) error {
		return c.String(http.StatusOK, "secret")
	})
	rec := httptest.NewRecorder()
	require.NoError(t, handler(e.NewContext(httptest.NewRequest(http.MethodGet, "/login", nil), rec)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "secret", rec.Body.String())
}

func tokenServer(t *testing.T) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.Form.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":"invalid_grant"}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"access","token_type":"Bearer","id_token":"raw-id-token"}`)
	}))
	t.Cleanup(server.Close)
	return server
}

func callback(t *testing.T, m *OidcMiddleware, cookieState, queryState, code string) (*httptest.ResponseRecorder, string, string, error) {
	var gotSubject, gotReturn string
	handler := m.CreateOidcCallbackEndpoint(func(c echo.Context, subject, returnTo string) error {
		gotSubject, gotReturn = subject, returnTo
		return c.Redirect(http.StatusFound, returnTo)
	})
	target := "/oidccallback?" + url.Values{"state": {queryState}, "code": {code}}.Encode()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if cookieState != "" {
		req.AddCookie(&http.Cookie{Name: stateCookieName, Value: cookieState})
	}
	rec := httptest.NewRecorder()
	err := handler(echo.New().NewContext(req, rec))
	return rec, gotSubject, gotReturn, err
}

func httpStatus(err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return 0
}

func TestCallbackCompletesLogin(t *testing.T) {
	server := tokenServer(t)
	m := newTestMiddleware(server.URL, fakeVerifier{subject: "user-123"})
	state := "abc|" + base64.URLEncoding.EncodeToString([]byte("/api/settings"))

	rec, subject, returnTo, err := callback(t, m, state, state, "good-code")
	require.NoError(t, err)
	assert.Equal(t, "user-123", subject)
	assert.Equal(t, "/api/settings", returnTo)
	assert.Equal(t, http.StatusFound, rec.Code)
}

func TestCallbackRejectsBadRequests(t *testing.T) {
	server := tokenServer(t)
	m := newTestMiddleware(server.URL, fakeVerifier{subject: "user-123"})

	_, _, _, err := callback(t, m, "", "abc", "good-code")
	assert.Equal(t, http.StatusUnauthorized, httpStatus(err))

	_, _, _, err = callback(t, m, "abc", "other", "good-code")
	assert.Equal(t, http.StatusUnauthorized, httpStatus(err))

	_, _, _, err = callback(t, m, "abc", "abc", "bad-code")
	assert.Equal(t, http.StatusUnauthorized, httpStatus(err))

	m.Verifier = fakeVerifier{err: errors.New("expired")}
	_, subject, _, err := callback(t, m, "abc", "abc", "good-code")
	assert.Equal(t, http.StatusUnauthorized, httpStatus(err))
	assert.Empty(t, subject)
}

func TestReturnURL(t *testing.T) {
	encode := func(s string) string {
		return "rnd|" + base64.URLEncoding.EncodeToString([]byte(s))
	}
	assert.Equal(t, "/api/bookmarks?limit=5", ReturnURL(encode("/api/bookmarks?limit=5"), "/"))
	assert.Equal(t, "/", ReturnURL(encode("https://evil.example/"), "/"))
	assert.Equal(t, "/", ReturnURL(encode("//evil.example/"), "/"))
	assert.Equal(t, "/", ReturnURL(encode("relative"), "/"))
	assert.Equal(t, "/", ReturnURL("no-separator", "/"))
	assert.Equal(t, "/", ReturnURL("rnd|!!!", "/"))
}
