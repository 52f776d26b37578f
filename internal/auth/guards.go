package auth

import (
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// RedirectToLogin sends anonymous browsers to the login page, remembering
// where they were headed.
func RedirectToLogin(loginPath string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		next := c.OriginalURL()
		return c.Redirect(loginPath+"?next="+url.QueryEscape(next), fiber.StatusFound)
	}
}

// SafeNext returns next when it is a local path, otherwise fallback.
func SafeNext(next, fallback string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return fallback
	}
	if u, err := url.Parse(next); err != nil || u.IsAbs() || u.Host != "" {
		return fallback
	}
	return next
}
