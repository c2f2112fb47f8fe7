// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"net/mail"
	"strconv"
	"strings"

	"codeberg.org/harbourline/intake/internal/apperror"
	"codeberg.org/harbourline/intake/internal/services/password"
	"codeberg.org/harbourline/intake/internal/services/session"
	"github.com/labstack/echo/v4"
)

// bind decodes the request body, reporting malformed input as a validation error.
func bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return apperror.Validation("Invalid request body", nil)
	}
	return nil
}

// fieldErrors collects per-field validation messages.
type fieldErrors map[string]string

func (f fieldErrors) required(field, value, message string) {
	if strings.TrimSpace(value) == "" {
		f[field] = message
	}
}

func (f fieldErrors) email(field, value string) {
	if strings.TrimSpace(value) == "" {
		f[field] = "Email is required"
		return
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(value)); err != nil {
		f[field] = "Email is invalid"
	}
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return apperror.Validation("Validation failed", f)
}

// policyError converts a password policy rejection into a validation error on field.
func policyError(field string, err error) (*apperror.Error, bool) {
	var pe *password.PolicyError
	if !errors.As(err, &pe) {
		return nil, false
	}
	ae := apperror.Validation("Password does not meet requirements", map[string]string{
		field: strings.Join(pe.Messages(), " "),
	})
	ae.Requirements = pe.Requirements
	return ae, true
}

func clientInfo(c echo.Context) session.ClientInfo {
	return session.ClientInfo{
		IP:        c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	}
}

func idParam(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperror.Validation("Invalid user id", nil)
	}
	return id, nil
}
