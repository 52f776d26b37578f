package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/account-service/internal/config"
	"github.com/spec-kit/account-service/internal/domain"
	apperrors "github.com/spec-kit/account-service/pkg/util/errorutil"
)

const msgUnknownHost = "Unknown host."

// siteFor prefers configured values. Without a configured domain the request
// host is used only when it is on the allow-list.
func siteFor(c *fiber.Ctx, cfg config.SiteConfig) (domain.Site, error) {
	site := domain.Site{Scheme: cfg.Scheme, Domain: cfg.Domain}
	if site.Scheme == "" {
		site.Scheme = c.Protocol()
	}
	if site.Domain != "" {
		return site, nil
	}

	host := c.Hostname()
	if !cfg.AllowsHost(host) {
		return domain.Site{}, apperrors.NewValidationError(msgUnknownHost, map[string]any{"host": host})
	}
	site.Domain = host
	return site, nil
}
