package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/account-service/internal/domain"
)

// CookieConfig describes the session cookie.
type CookieConfig struct {
	Name   string
	Secure bool
}

func (cc CookieConfig) set(c *fiber.Ctx, token string, sess *domain.Session) {
	c.Cookie(&fiber.Cookie{
		Name:     cc.Name,
		Value:    token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		Secure:   cc.Secure,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func (cc CookieConfig) clear(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     cc.Name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		Secure:   cc.Secure,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}
