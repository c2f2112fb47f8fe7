// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"codeberg.org/harbourline/intake/internal/apperror"
	"github.com/labstack/echo/v4"
)

const maskedMessage = "Internal server error"

// ErrorResponse is the JSON envelope of every failed request.
type ErrorResponse struct {
	Success      bool              `json:"success"`
	Error        string            `json:"error"`
	Errors       map[string]string `json:"errors,omitempty"`
	Requirements []string          `json:"requirements,omitempty"`
}

// ErrorHandler is the echo HTTPErrorHandler. Server errors are logged with
// the request id and masked; client errors are logged at warn level.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	resp := ErrorResponse{Error: maskedMessage}
	cause := err

	var he *echo.HTTPError
	if ae, ok := apperror.As(err); ok {
		status = ae.Status()
		resp.Error = ae.Message
		resp.Errors = ae.Fields
		resp.Requirements = ae.Requirements
		if ae.Err != nil {
			cause = ae.Err
		}
	} else if errors.As(err, &he) {
		status = he.Code
		resp.Error = httpErrorMessage(he)
		if he.Internal != nil {
			cause = he.Internal
		}
	}

	req := c.Request()
	attrs := []any{
		"status", status,
		"method", req.Method,
		"path", req.URL.Path,
		"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
		"error", cause,
	}

	if status >= http.StatusInternalServerError {
		slog.ErrorContext(req.Context(), "request_failed", attrs...)
		// Only messages written for clients survive.
		if _, ok := apperror.As(err); !ok {
			resp.Error = maskedMessage
		}
	} else {
		slog.WarnContext(req.Context(), "request_rejected", attrs...)
	}

	var writeErr error
	if req.Method == http.MethodHead {
		writeErr = c.NoContent(status)
	} else {
		writeErr = c.JSON(status, resp)
	}
	if writeErr != nil {
		slog.Error("failed to write error response", "error", writeErr)
	}
}

func httpErrorMessage(he *echo.HTTPError) string {
	if msg, ok := he.Message.(string); ok && msg != "" {
		return msg
	}
	if text := http.StatusText(he.Code); text != "" {
		return text
	}
	return "Error"
}
