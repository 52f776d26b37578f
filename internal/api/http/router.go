package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/account-service/internal/api/http/handlers"
	"github.com/spec-kit/account-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health   *handlers.HealthHandler
	Web      *handlers.WebHandler
	Users    *handlers.UsersHandler
	Sessions *auth.SessionMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/health/metrics", cfg.Health.Metrics)

	load := cfg.Sessions.Load
	pageGuard := cfg.Sessions.Require(auth.RedirectToLogin(handlers.LoginPath))
	apiGuard := cfg.Sessions.Require(nil)

	app.Get(handlers.HomePath, load, cfg.Web.Home)
	app.Get(handlers.SignUpPath, load, cfg.Web.SignUpForm)
	app.Post(handlers.SignUpPath, cfg.Web.SignUp)
	app.Get("/accounts/account-activation/:uid/:token/", cfg.Web.Activate)
	app.Post(handlers.ResendPath, cfg.Web.ResendActivation)
	app.Get(handlers.LoginPath, load, cfg.Web.LoginForm)
	app.Post(handlers.LoginPath, load, cfg.Web.Login)
	app.Get(handlers.LogoutPath, pageGuard, cfg.Web.Logout)
	app.Get(handlers.DashboardPath, pageGuard, cfg.Web.Dashboard)

	api := app.Group("/api/v1/auth")
	api.Post("/register", cfg.Users.Register)
	api.Post("/activate", cfg.Users.Activate)
	api.Post("/activation/resend", cfg.Users.ResendActivation)
	api.Post("/login", load, cfg.Users.Login)
	api.Post("/logout", apiGuard, cfg.Users.Logout)
	api.Get("/me", apiGuard, cfg.Users.Me)
}
