package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/account-service/internal/api/dto"
	"github.com/spec-kit/account-service/internal/auth"
	"github.com/spec-kit/account-service/internal/config"
	"github.com/spec-kit/account-service/internal/service"
	apperrors "github.com/spec-kit/account-service/pkg/util/errorutil"
)

// UsersHandler exposes the account flow as a JSON API.
type UsersHandler struct {
	accounts *service.AccountService
	site     config.SiteConfig
}

// NewUsersHandler constructs handler.
func NewUsersHandler(accounts *service.AccountService, site config.SiteConfig) *UsersHandler {
	return &UsersHandler{accounts: accounts, site: site}
}

func invalidPayload() error {
	return apperrors.NewValidationError("invalid payload", nil)
}

// Register handles POST /api/v1/auth/register.
func (h *UsersHandler) Register(c *fiber.Ctx) error {
	var req service.RegistrationInput
	if err := c.BodyParser(&req); err != nil {
		return invalidPayload()
	}

	site, err := siteFor(c, h.site)
	if err != nil {
		return err
	}
	user, err := h.accounts.Register(c.UserContext(), req, site)
	if err != nil {
		return err
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"data": fiber.Map{
			"user":    dto.NewUserResponse(user),
			"message": service.MsgCheckEmail,
		},
	})
}

// Activate handles POST /api/v1/auth/activate.
func (h *UsersHandler) Activate(c *fiber.Ctx) error {
	var req dto.ActivationRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidPayload()
	}

	result, err := h.accounts.Activate(c.UserContext(), req.UID, req.Token)
	if err != nil {
		return err
	}
	return c.JSON(authPayload(result))
}

// ResendActivation handles POST /api/v1/auth/activation/resend.
func (h *UsersHandler) ResendActivation(c *fiber.Ctx) error {
	var req service.ResendInput
	if err := c.BodyParser(&req); err != nil {
		return invalidPayload()
	}

	site, err := siteFor(c, h.site)
	if err != nil {
		return err
	}
	if err := h.accounts.ResendActivation(c.UserContext(), req, site); err != nil {
		return err
	}
	return c.Status(http.StatusAccepted).JSON(fiber.Map{
		"data": dto.MessageResponse{Message: service.MsgResendSent},
	})
}

// Login handles POST /api/v1/auth/login.
func (h *UsersHandler) Login(c *fiber.Ctx) error {
	var req service.LoginInput
	if err := c.BodyParser(&req); err != nil {
		return invalidPayload()
	}

	current := ""
	if p, ok := auth.PrincipalFromContext(c); ok {
		current = p.Session.ID
	}
	result, err := h.accounts.Login(c.UserContext(), req, current)
	if err != nil {
		return err
	}
	return c.JSON(authPayload(result))
}

// Logout handles POST /api/v1/auth/logout. The route is protected.
func (h *UsersHandler) Logout(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	if err := h.accounts.Logout(c.UserContext(), principal.Session); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// Me handles GET /api/v1/auth/me. The route is protected.
func (h *UsersHandler) Me(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"user":       dto.NewUserResponse(principal.User),
			"expires_at": principal.Session.ExpiresAt,
		},
	})
}

func authPayload(result *service.AuthResult) fiber.Map {
	return fiber.Map{
		"data": fiber.Map{
			"user": dto.NewUserResponse(result.User),
			"auth": dto.AuthResponse{Token: result.Token, ExpiresAt: result.Session.ExpiresAt},
		},
	}
}
