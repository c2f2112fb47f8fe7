// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"net/http"

	"codeberg.org/harbourline/intake/internal/apperror"
	"codeberg.org/harbourline/intake/internal/services/onboarding"
	"github.com/labstack/echo/v4"
)

const invalidOnboardingMessage = "Invalid or expired onboarding link"

// OnboardingHandlers contains the endpoints used by invited accounts.
type OnboardingHandlers struct {
	onboarding *onboarding.Service
}

// NewOnboarding creates a new OnboardingHandlers instance.
func NewOnboarding(svc *onboarding.Service) *OnboardingHandlers {
	return &OnboardingHandlers{onboarding: svc}
}

type onboardingTokenRequest struct {
	Token string `json:"token" query:"token" form:"token"`
}

// VerifyOnboardingToken checks an onboarding link. The token is read from the
// query string or, for POST, from the body.
func (h *OnboardingHandlers) VerifyOnboardingToken(c echo.Context) error {
	raw := c.QueryParam("token")
	if raw == "" && c.Request().Method == http.MethodPost {
		var req onboardingTokenRequest
		if err := bind(c, &req); err != nil {
			return err
		}
		raw = req.Token
	}

	account, err := h.onboarding.Verify(c.Request().Context(), raw)
	if err != nil {
		if errors.Is(err, onboarding.ErrInvalidToken) {
			return c.JSON(http.StatusOK, map[string]any{
				"valid": false,
				"error": invalidOnboardingMessage,
			})
		}
		return apperror.Internal("Failed to verify onboarding token", err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"valid": true,
		"user":  account,
	})
}

type completeOnboardingRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// CompleteOnboarding sets the first password and activates the account.
func (h *OnboardingHandlers) CompleteOnboarding(c echo.Context) error {
	var req completeOnboardingRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	fields := fieldErrors{}
	fields.required("token", req.Token, "Token is required")
	fields.required("password", req.Password, "Password is required")
	if err := fields.err(); err != nil {
		return err
	}

	account, err := h.onboarding.Complete(c.Request().Context(), req.Token, req.Password)
	if err != nil {
		if errors.Is(err, onboarding.ErrInvalidToken) {
			return apperror.NotFound(invalidOnboardingMessage)
		}
		if pe, ok := policyError("password", err); ok {
			return pe
		}
		return apperror.Internal("Failed to complete onboarding", err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"message": "Account activated. You can now log in.",
		"user":    account,
	})
}
