package handlers

import (
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/account-service/internal/auth"
	"github.com/spec-kit/account-service/internal/config"
	"github.com/spec-kit/account-service/internal/service"
	apperrors "github.com/spec-kit/account-service/pkg/util/errorutil"
)

// Page paths.
const (
	HomePath      = "/"
	SignUpPath    = "/accounts/sign-up/"
	ResendPath    = "/accounts/activation/resend/"
	LoginPath     = "/login/"
	LogoutPath    = "/logout/"
	DashboardPath = "/dashboard/"
)

const msgLoggedOut = "You have been logged out."

// WebHandler serves the HTML pages of the account flow.
type WebHandler struct {
	accounts *service.AccountService
	cookie   CookieConfig
	site     config.SiteConfig
	logger   *zap.Logger
}

// NewWebHandler constructs handler.
func NewWebHandler(accounts *service.AccountService, cookie CookieConfig, site config.SiteConfig, logger *zap.Logger) *WebHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebHandler{accounts: accounts, cookie: cookie, site: site, logger: logger}
}

// Home handles GET /.
func (h *WebHandler) Home(c *fiber.Ctx) error {
	return c.Render("home.html", h.page(c, nil))
}

// SignUpForm handles GET /accounts/sign-up/.
func (h *WebHandler) SignUpForm(c *fiber.Ctx) error {
	return c.Render("sign_up.html", h.page(c, fiber.Map{"email": c.Query("email")}))
}

// SignUp handles POST /accounts/sign-up/.
func (h *WebHandler) SignUp(c *fiber.Ctx) error {
	var in service.RegistrationInput
	if err := c.BodyParser(&in); err != nil {
		addFlash(c, levelError, service.MsgRegistrationInvalid)
		return c.Redirect(SignUpPath, fiber.StatusFound)
	}

	site, err := siteFor(c, h.site)
	if err != nil {
		return err
	}
	_, err = h.accounts.Register(c.UserContext(), in, site)
	if err == nil {
		addFlash(c, levelSuccess, service.MsgCheckEmail)
		return c.Redirect(HomePath, fiber.StatusFound)
	}

	de := apperrors.ToDomainError(err)
	switch de.Code {
	case apperrors.CodeEmailDelivery:
		addFlash(c, levelError, de.Message)
		return c.Redirect(SignUpPath, fiber.StatusFound)
	case apperrors.CodeValidation, apperrors.CodeConflict:
		addFlash(c, levelError, de.Message)
		for _, field := range []string{"email", "password", "password_confirmation"} {
			if detail, ok := de.Details[field].(string); ok {
				addFlash(c, levelError, field+": "+detail)
			}
		}
		return c.Redirect(SignUpPath, fiber.StatusFound)
	default:
		return err
	}
}

// Activate handles GET /accounts/account-activation/:uid/:token/.
func (h *WebHandler) Activate(c *fiber.Ctx) error {
	result, err := h.accounts.Activate(c.UserContext(), c.Params("uid"), c.Params("token"))
	if err != nil {
		de := apperrors.ToDomainError(err)
		if de.Code != apperrors.CodeInvalidToken {
			return err
		}
		h.logger.Debug("activation link rejected", zap.String("uid", c.Params("uid")))
		addFlash(c, levelError, de.Message)
		return c.Redirect(HomePath, fiber.StatusFound)
	}

	h.cookie.set(c, result.Token, result.Session)
	addFlash(c, levelSuccess, service.MsgActivated)
	return c.Redirect(LoginPath, fiber.StatusFound)
}

// ResendActivation handles POST /accounts/activation/resend/.
func (h *WebHandler) ResendActivation(c *fiber.Ctx) error {
	var in service.ResendInput
	if err := c.BodyParser(&in); err != nil {
		addFlash(c, levelError, service.MsgRegistrationInvalid)
		return c.Redirect(HomePath, fiber.StatusFound)
	}

	site, err := siteFor(c, h.site)
	if err != nil {
		return err
	}
	err = h.accounts.ResendActivation(c.UserContext(), in, site)
	if err == nil {
		addFlash(c, levelInfo, service.MsgResendSent)
		return c.Redirect(HomePath, fiber.StatusFound)
	}

	de := apperrors.ToDomainError(err)
	if de.Code != apperrors.CodeValidation && de.Code != apperrors.CodeEmailDelivery {
		return err
	}
	addFlash(c, levelError, de.Message)
	return c.Redirect(HomePath, fiber.StatusFound)
}

// LoginForm handles GET /login/.
func (h *WebHandler) LoginForm(c *fiber.Ctx) error {
	return c.Render("login.html", h.page(c, fiber.Map{
		"next": auth.SafeNext(c.Query("next"), ""),
	}))
}

// Login handles POST /login/.
func (h *WebHandler) Login(c *fiber.Ctx) error {
	var in service.LoginInput
	if err := c.BodyParser(&in); err != nil {
		addFlash(c, levelError, service.MsgLoginInvalid)
		return c.Redirect(LoginPath, fiber.StatusFound)
	}
	next := auth.SafeNext(c.FormValue("next"), "")

	current := ""
	if p, ok := auth.PrincipalFromContext(c); ok {
		current = p.Session.ID
	}

	result, err := h.accounts.Login(c.UserContext(), in, current)
	if err != nil {
		de := apperrors.ToDomainError(err)
		if de.Code != apperrors.CodeUnauthorized && de.Code != apperrors.CodeValidation {
			return err
		}
		addFlash(c, levelError, de.Message)
		target := LoginPath
		if next != "" {
			target += "?next=" + url.QueryEscape(next)
		}
		return c.Redirect(target, fiber.StatusFound)
	}

	h.cookie.set(c, result.Token, result.Session)
	return c.Redirect(auth.SafeNext(next, DashboardPath), fiber.StatusFound)
}

// Logout handles GET /logout/. The route is protected.
func (h *WebHandler) Logout(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return c.Redirect(LoginPath, fiber.StatusFound)
	}
	if err := h.accounts.Logout(c.UserContext(), principal.Session); err != nil {
		return err
	}
	h.cookie.clear(c)
	addFlash(c, levelInfo, msgLoggedOut)
	return c.Redirect(HomePath, fiber.StatusFound)
}

// Dashboard handles GET /dashboard/. The route is protected.
func (h *WebHandler) Dashboard(c *fiber.Ctx) error {
	data := fiber.Map{}
	if p, ok := auth.PrincipalFromContext(c); ok && p.User.LastLogin != nil {
		data["last_login"] = p.User.LastLogin.UTC().Format(time.RFC1123)
	}
	return c.Render("dashboard.html", h.page(c, data))
}

// page adds the signed-in user and pending messages to a template context.
func (h *WebHandler) page(c *fiber.Ctx, data fiber.Map) fiber.Map {
	if data == nil {
		data = fiber.Map{}
	}
	if p, ok := auth.PrincipalFromContext(c); ok {
		data["user"] = p.User
	}
	data["messages"] = popFlash(c)
	return data
}
