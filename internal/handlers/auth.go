// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"net/http"

	"codeberg.org/harbourline/intake/internal/appcontext"
	"codeberg.org/harbourline/intake/internal/apperror"
	"codeberg.org/harbourline/intake/internal/services/auth"
	"codeberg.org/harbourline/intake/internal/services/session"
	"github.com/labstack/echo/v4"
)

// AuthHandlers contains handlers for login, logout and the session of the caller.
type AuthHandlers struct {
	auth     *auth.Service
	sessions *session.Manager
}

// NewAuth creates a new AuthHandlers instance.
func NewAuth(svc *auth.Service, sess *session.Manager) *AuthHandlers {
	return &AuthHandlers{
		auth:     svc,
		sessions: sess,
	}
}

// LoginRequest is the request body for logging in.
type LoginRequest struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// Login verifies credentials and establishes a fresh session.
func (h *AuthHandlers) Login(c echo.Context) error {
	var req LoginRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	fields := fieldErrors{}
	fields.required("email", req.Email, "Email is required")
	fields.required("password", req.Password, "Password is required")
	if err := fields.err(); err != nil {
		return err
	}

	account, err := h.auth.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return apperror.Unauthorized("Invalid email or password")
		}
		return apperror.Internal("Login failed", err)
	}

	cookie, err := h.sessions.Regenerate(c.Request(), *account, clientInfo(c))
	if err != nil {
		return apperror.Internal("Failed to create session", err)
	}
	c.SetCookie(cookie)

	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"user":    account,
	})
}

// CheckSession reports whether the caller holds a valid session. It never fails.
func (h *AuthHandlers) CheckSession(c echo.Context) error {
	account := appcontext.AccountFrom(c)
	if account == nil {
		return c.JSON(http.StatusOK, map[string]any{"authenticated": false})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"authenticated": true,
		"user":          account,
	})
}

// Logout destroys the server-side session and clears the cookie.
func (h *AuthHandlers) Logout(c echo.Context) error {
	cookie, err := h.sessions.Destroy(c.Request())
	if err != nil {
		return apperror.Internal("Logout failed", err)
	}
	c.SetCookie(cookie)
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

// ChangePasswordRequest is the request body for changing the own password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

// ChangePassword lets the logged-in account replace its password.
func (h *AuthHandlers) ChangePassword(c echo.Context) error {
	account := appcontext.AccountFrom(c)
	if account == nil {
		return apperror.Unauthorized("Authentication required")
	}

	var req ChangePasswordRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	fields := fieldErrors{}
	fields.required("currentPassword", req.CurrentPassword, "Current password is required")
	fields.required("newPassword", req.NewPassword, "New password is required")
	if req.NewPassword != req.ConfirmPassword {
		fields["confirmPassword"] = "Passwords do not match"
	}
	if err := fields.err(); err != nil {
		return err
	}

	err := h.auth.ChangePassword(c.Request().Context(), account.ID, req.CurrentPassword, req.NewPassword)
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrInvalidCredentials):
		return apperror.Unauthorized("Current password is incorrect")
	case errors.Is(err, auth.ErrSamePassword):
		return apperror.Validation("Validation failed", map[string]string{
			"newPassword": "New password must differ from the current password",
		})
	default:
		if pe, ok := policyError("newPassword", err); ok {
			return pe
		}
		return apperror.Internal("Failed to change password", err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"message": "Password changed successfully",
	})
}
