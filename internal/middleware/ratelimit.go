// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	"github.com/labstack/echo/v4"
)

// RateLimitMessage is the error returned once a client exceeds its budget.
const RateLimitMessage = "Too many requests, please try again later"

type clientIPKey struct{}

// RateLimit limits requests per client IP using a sliding window. The key is
// c.RealIP(), so it follows the IPExtractor configured on the echo instance.
func RateLimit(requests int, window time.Duration) echo.MiddlewareFunc {
	limiter := echo.WrapMiddleware(httprate.Limit(
		requests,
		window,
		httprate.WithKeyFuncs(keyByClientIP),
		httprate.WithLimitHandler(rateLimited),
	))

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		limited := limiter(next)
		return func(c echo.Context) error {
			req := c.Request()
			c.SetRequest(req.WithContext(context.WithValue(req.Context(), clientIPKey{}, c.RealIP())))
			return limited(c)
		}
	}
}

func keyByClientIP(r *http.Request) (string, error) {
	if ip, ok := r.Context().Value(clientIPKey{}).(string); ok && ip != "" {
		return ip, nil
	}
	return httprate.KeyByIP(r)
}

func rateLimited(w http.ResponseWriter, r *http.Request) {
	slog.Warn("rate_limited", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   RateLimitMessage,
	})
}
