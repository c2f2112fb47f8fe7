// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"time"

	"codeberg.org/harbourline/intake/internal/config"
	"codeberg.org/harbourline/intake/internal/handlers"
	appmiddleware "codeberg.org/harbourline/intake/internal/middleware"
	"codeberg.org/harbourline/intake/internal/models"
	"codeberg.org/harbourline/intake/internal/repository"
	"codeberg.org/harbourline/intake/internal/services/auth"
	"codeberg.org/harbourline/intake/internal/services/email"
	"codeberg.org/harbourline/intake/internal/services/onboarding"
	"codeberg.org/harbourline/intake/internal/services/password"
	"codeberg.org/harbourline/intake/internal/services/reset"
	"codeberg.org/harbourline/intake/internal/services/session"
	"github.com/labstack/echo/v4"
)

// Services bundles the dependencies of the HTTP layer.
type Services struct {
	Repo       *repository.Repository
	Sessions   *session.Manager
	Auth       *auth.Service
	Reset      *reset.Service
	Onboarding *onboarding.Service
	Mailer     email.Sender
	Links      email.Links
}

// NewServices builds every service from the validated configuration.
func NewServices(cfg *config.Config, repo *repository.Repository, mailer email.Sender) (*Services, error) {
	sessions, err := session.NewManager(repo, &cfg.Session, cfg.SecureCookies())
	if err != nil {
		return nil, err
	}

	hasher := password.NewHasher(cfg.Login.BcryptCost)
	policy := password.DefaultPolicy()

	return &Services{
		Repo:       repo,
		Sessions:   sessions,
		Auth:       auth.NewService(repo, &cfg.Login, hasher, policy),
		Reset:      reset.NewService(repo, &cfg.Reset, hasher, policy),
		Onboarding: onboarding.NewService(repo, &cfg.Onboarding, hasher, policy),
		Mailer:     mailer,
		Links:      email.Links{BaseURL: cfg.Server.BaseURL},
	}, nil
}

func setupRoutes(e *echo.Echo, cfg *config.Config, s *Services) {
	h := handlers.New(s.Repo.DB())
	authH := handlers.NewAuth(s.Auth, s.Sessions)
	resetH := handlers.NewReset(s.Reset, s.Sessions, s.Mailer, s.Links)
	onboardingH := handlers.NewOnboarding(s.Onboarding)
	usersH := handlers.NewUsers(s.Repo, s.Onboarding, s.Mailer, s.Links)

	loginLimit := appmiddleware.RateLimit(perMinute(cfg.Login.PerMinuteIP, defaultLoginPerMinute), time.Minute)
	// Caps bursts before the hourly per-email and per-IP budgets of the reset service apply.
	forgotLimit := appmiddleware.RateLimit(perMinute(cfg.Reset.PerMinuteIP, config.DefaultResetPerMinute), time.Minute)
	requireAuth := appmiddleware.RequireAuth
	requireAdmin := appmiddleware.RequireRole(models.RoleAdministrator)

	e.GET("/health", h.Health)

	// Onboarding links are public
	e.GET("/verify-onboarding-token", onboardingH.VerifyOnboardingToken)
	e.POST("/verify-onboarding-token", onboardingH.VerifyOnboardingToken)
	e.POST("/complete-onboarding", onboardingH.CompleteOnboarding)

	admin := e.Group("/admin", appmiddleware.LoadSession(s.Sessions, s.Repo))
	admin.GET("/csrf-token", h.CSRFToken)
	admin.POST("/login", authH.Login, loginLimit)
	admin.GET("/check-session", authH.CheckSession)
	admin.POST("/logout", authH.Logout, requireAuth)
	admin.POST("/change-password", authH.ChangePassword, requireAuth)
	admin.POST("/forgot-password", resetH.ForgotPassword, forgotLimit)
	admin.GET("/validate-reset-token", resetH.ValidateResetToken)
	admin.POST("/reset-password", resetH.ResetPassword)

	users := admin.Group("/users", requireAuth, requireAdmin)
	users.GET("", usersH.List)
	users.POST("", usersH.Create)
	users.POST("/:id/unfreeze", usersH.Unfreeze)
	users.POST("/:id/resend-onboarding", usersH.ResendOnboarding)
	users.POST("/:id/deactivate", usersH.Deactivate)
	users.POST("/:id/activate", usersH.Activate)
}

const defaultLoginPerMinute = 10

func perMinute(configured, fallback int) int {
	if configured > 0 {
		return configured
	}
	return fallback
}
