// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package middleware contains the echo middleware guarding the admin API.
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"codeberg.org/harbourline/intake/internal/appcontext"
	"codeberg.org/harbourline/intake/internal/apperror"
	"codeberg.org/harbourline/intake/internal/models"
	"codeberg.org/harbourline/intake/internal/repository"
	"github.com/labstack/echo/v4"
)

// SessionStore loads and destroys the session referenced by a request.
type SessionStore interface {
	Load(r *http.Request) (*models.Session, error)
	Destroy(r *http.Request) (*http.Cookie, error)
}

// AccountLoader loads the current state of an account.
type AccountLoader interface {
	GetAdminUserByID(ctx context.Context, id int64) (*models.AdminUser, error)
}

// LoadSession wraps the request in an appcontext.Context and attaches the
// session, if any. The account is re-read on every request: when it is gone,
// inactive or frozen the session is destroyed and the request continues
// unauthenticated.
func LoadSession(sessions SessionStore, accounts AccountLoader) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &appcontext.Context{Context: c}

			s, err := sessions.Load(c.Request())
			if err != nil {
				slog.Error("failed to load session", "error", err)
				return next(cc)
			}
			if s == nil {
				return next(cc)
			}

			user, err := accounts.GetAdminUserByID(c.Request().Context(), s.AdminUserID)
			switch {
			case err == nil && user.CanAuthenticate():
				summary := user.Summary()
				cc.Session = s
				cc.Account = &summary
			case err == nil || errors.Is(err, repository.ErrNotFound):
				slog.Info("session_revoked", "user_id", s.AdminUserID)
				cookie, destroyErr := sessions.Destroy(c.Request())
				if destroyErr != nil {
					slog.Error("failed to destroy revoked session", "error", destroyErr)
				} else {
					c.SetCookie(cookie)
				}
			default:
				slog.Error("failed to revalidate session", "user_id", s.AdminUserID, "error", err)
			}

			return next(cc)
		}
	}
}

// RequireAuth rejects requests without a valid session.
func RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if appcontext.AccountFrom(c) == nil {
			return apperror.Unauthorized("Authentication required")
		}
		return next(c)
	}
}

// RequireRole rejects requests whose account does not hold role.
func RequireRole(role models.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			account := appcontext.AccountFrom(c)
			if account == nil {
				return apperror.Unauthorized("Authentication required")
			}
			if account.Role != role {
				slog.Warn("access_denied", "user_id", account.ID, "role", account.Role, "required", role)
				return apperror.Forbidden("Insufficient permissions")
			}
			return next(c)
		}
	}
}
