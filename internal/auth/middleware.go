package auth

import (
	"github.com/gofiber/fiber/v2"
)

// ErrNoSession is returned for requests without a valid session cookie.
var ErrNoSession = fiber.NewError(fiber.StatusUnauthorized, "Please sign in to continue.")

// SessionMiddleware validates the session cookie and stores the Session on
// the request.
func SessionMiddleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := c.Cookies(CookieName)
		if raw == "" {
			return ErrNoSession
		}
		s, err := ParseSessionToken(raw, secret)
		if err != nil {
			return ErrNoSession
		}
		c.Locals("session", s)
		return c.Next()
	}
}

// GetSession extracts the Session from a Fiber context.
func GetSession(c *fiber.Ctx) *Session {
	s, _ := c.Locals("session").(*Session)
	return s
}
