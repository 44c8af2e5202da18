package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rocket-console/internal/logger"
)

const secret = "test-secret"

func TestSessionToken_RoundTrip(t *testing.T) {
	tok, err := GenerateSessionToken("ws-1", "op@example.com", secret, time.Hour)
	require.NoError(t, err)

	s, err := ParseSessionToken(tok, secret)
	require.NoError(t, err)
	assert.Equal(t, "ws-1", s.WorkspaceID)
	assert.Equal(t, "op@example.com", s.Operator)
	assert.WithinDuration(t, time.Now().Add(time.Hour), s.ExpiresAt, 5*time.Second)

	_, err = ParseSessionToken(tok, "other-secret")
	assert.Error(t, err)
}

func TestSessionToken_RejectsExpired(t *testing.T) {
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		ID:        "ws-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)

	_, err = ParseSessionToken(tok, secret)
	assert.Error(t, err)
}

type fakeWorkspaces struct {
	opened []string
	closed []string
	err    error
}

func (f *fakeWorkspaces) Open(_ context.Context, email, password string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.opened = append(f.opened, email)
	return "ws-" + email, nil
}

func (f *fakeWorkspaces) Close(_ context.Context, id string) {
	f.closed = append(f.closed, id)
}

func newApp(ws Workspaces) *fiber.App {
	app := fiber.New()
	view := func(c *fiber.Ctx, status int, email, message string) error {
		return c.Status(status).SendString("login:" + message)
	}
	RegisterAuthRoutes(app, NewHandler(ws, view, secret, time.Hour, false, logger.Nop()))
	app.Get("/", SessionMiddleware(secret), func(c *fiber.Ctx) error {
		return c.SendString(GetSession(c).WorkspaceID)
	})
	return app
}

func postForm(path string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestLogin_SetsCookieAndMiddlewareResolvesIt(t *testing.T) {
	ws := &fakeWorkspaces{}
	app := newApp(ws)

	resp, err := app.Test(postForm("/login", url.Values{"email": {"op"}, "password": {"pw"}}))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))

	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == CookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestLogin_RejectedRendersMessage(t *testing.T) {
	app := newApp(&fakeWorkspaces{err: errors.New("bad credentials")})

	resp, err := app.Test(postForm("/login", url.Values{"email": {"op"}, "password": {"pw"}}))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, err = app.Test(postForm("/login", url.Values{"email": {"op"}}))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
}

func TestLogout_ClosesWorkspace(t *testing.T) {
	ws := &fakeWorkspaces{}
	app := newApp(ws)

	tok, err := GenerateSessionToken("ws-9", "op", secret, time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: tok})
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, []string{"ws-9"}, ws.closed)
}
