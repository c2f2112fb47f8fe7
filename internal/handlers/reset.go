// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"codeberg.org/harbourline/intake/internal/apperror"
	"codeberg.org/harbourline/intake/internal/models"
	"codeberg.org/harbourline/intake/internal/services/email"
	"codeberg.org/harbourline/intake/internal/services/reset"
	"codeberg.org/harbourline/intake/internal/services/session"
	"github.com/labstack/echo/v4"
)

// ForgotPasswordMessage is returned for every accepted reset request, whether
// or not a mail was sent.
const ForgotPasswordMessage = "If an account exists for this email, a password reset link has been sent."

const (
	invalidResetTokenMessage = "Invalid or expired reset token"
	usedResetTokenMessage    = "This reset link has already been used"
)

// ResetHandlers contains the password-reset endpoints.
type ResetHandlers struct {
	reset    *reset.Service
	sessions *session.Manager
	mailer   email.Sender
	links    email.Links
}

// NewReset creates a new ResetHandlers instance.
func NewReset(svc *reset.Service, sess *session.Manager, mailer email.Sender, links email.Links) *ResetHandlers {
	return &ResetHandlers{
		reset:    svc,
		sessions: sess,
		mailer:   mailer,
		links:    links,
	}
}

type forgotPasswordRequest struct {
	Email string `json:"email" form:"email"`
}

// ForgotPassword issues a reset link. The reply never reveals whether the
// account exists or the request was throttled.
func (h *ResetHandlers) ForgotPassword(c echo.Context) error {
	var req forgotPasswordRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	fields := fieldErrors{}
	fields.email("email", req.Email)
	if err := fields.err(); err != nil {
		return err
	}

	ctx := c.Request().Context()
	raw, err := h.reset.CreateToken(ctx, req.Email, reset.RequestContext{
		IP:        c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	})
	if err != nil && !errors.Is(err, reset.ErrRateLimited) {
		return apperror.Internal("Failed to process password reset request", err)
	}

	if raw != "" {
		if sendErr := h.mailer.SendResetEmail(ctx, models.NormalizeEmail(req.Email), h.links.Reset(raw), false); sendErr != nil {
			slog.Error("failed to send reset email", "error", sendErr)
		}
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"message": ForgotPasswordMessage,
	})
}

// ValidateResetToken checks a reset link before the password form is shown.
func (h *ResetHandlers) ValidateResetToken(c echo.Context) error {
	v, err := h.reset.Validate(c.Request().Context(), c.QueryParam("token"))
	if err != nil {
		if reset.IsTokenError(err) {
			return c.JSON(http.StatusOK, map[string]any{
				"valid": false,
				"error": resetTokenMessage(err),
			})
		}
		return apperror.Internal("Failed to validate reset token", err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"valid": true,
		"email": v.Account.Email,
	})
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

// ResetPassword consumes a reset token and sets the new password.
func (h *ResetHandlers) ResetPassword(c echo.Context) error {
	var req resetPasswordRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	fields := fieldErrors{}
	fields.required("token", req.Token, "Token is required")
	fields.required("newPassword", req.NewPassword, "New password is required")
	if err := fields.err(); err != nil {
		return err
	}

	if _, err := h.reset.ResetPassword(c.Request().Context(), req.Token, req.NewPassword); err != nil {
		if reset.IsTokenError(err) {
			return apperror.Validation(resetTokenMessage(err), nil)
		}
		if pe, ok := policyError("newPassword", err); ok {
			return pe
		}
		return apperror.Internal("Failed to reset password", err)
	}

	cookie, err := h.sessions.Destroy(c.Request())
	if err != nil {
		slog.Error("failed to destroy caller session after reset", "error", err)
		cookie = h.sessions.Clear()
	}
	c.SetCookie(cookie)

	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"message": "Password has been reset. You can now log in.",
	})
}

func resetTokenMessage(err error) string {
	if errors.Is(err, reset.ErrTokenUsed) {
		return usedResetTokenMessage
	}
	return invalidResetTokenMessage
}
