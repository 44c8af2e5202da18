package auth

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"rocket-console/internal/logger"
	"rocket-console/internal/transport"
)

// Workspaces opens and closes operator workspaces. Open signs in against the
// backend.
type Workspaces interface {
	Open(ctx context.Context, email, password string) (workspaceID string, err error)
	Close(ctx context.Context, workspaceID string)
}

// LoginView renders the sign-in page with an optional error.
type LoginView func(c *fiber.Ctx, status int, email, message string) error

// Handler handles the sign-in endpoints.
type Handler struct {
	workspaces Workspaces
	view       LoginView
	secret     string
	ttl        time.Duration
	secure     bool
	log        logger.Logger
}

// NewHandler creates a new Handler.
func NewHandler(ws Workspaces, view LoginView, secret string, ttl time.Duration, secureCookies bool, log logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Handler{workspaces: ws, view: view, secret: secret, ttl: ttl, secure: secureCookies, log: log}
}

// RegisterAuthRoutes registers /login and /logout.
func RegisterAuthRoutes(app *fiber.App, h *Handler) {
	app.Get("/login", h.LoginPage)
	app.Post("/login", h.Login)
	app.Post("/logout", h.Logout)
}

// LoginPage handles GET /login.
func (h *Handler) LoginPage(c *fiber.Ctx) error {
	if c.Query("expired") != "" {
		return h.view(c, fiber.StatusOK, "", transport.MsgSessionExpired)
	}
	return h.view(c, fiber.StatusOK, "", "")
}

// Login handles POST /login.
func (h *Handler) Login(c *fiber.Ctx) error {
	email := strings.TrimSpace(c.FormValue("email"))
	password := c.FormValue("password")
	if email == "" || password == "" {
		return h.view(c, fiber.StatusUnprocessableEntity, email, "Email and password are required")
	}

	id, err := h.workspaces.Open(c.UserContext(), email, password)
	if err != nil {
		h.log.Infow("sign in rejected", "operator", email, "error", err)
		return h.view(c, fiber.StatusUnauthorized, email, transport.UserMessage(err))
	}

	token, err := GenerateSessionToken(id, email, h.secret, h.ttl)
	if err != nil {
		h.workspaces.Close(c.UserContext(), id)
		return err
	}
	c.Cookie(&fiber.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(h.ttl),
		HTTPOnly: true,
		Secure:   h.secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	h.log.Infow("operator signed in", "operator", email, "workspace", id)
	return c.Redirect("/", fiber.StatusSeeOther)
}

// Logout handles POST /logout.
func (h *Handler) Logout(c *fiber.Ctx) error {
	if raw := c.Cookies(CookieName); raw != "" {
		if s, err := ParseSessionToken(raw, h.secret); err == nil {
			h.workspaces.Close(c.UserContext(), s.WorkspaceID)
		}
	}
	ClearCookie(c)
	return c.Redirect("/login", fiber.StatusSeeOther)
}

// ClearCookie expires the session cookie.
func ClearCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HTTPOnly: true,
	})
}
