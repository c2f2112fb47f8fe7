// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"codeberg.org/harbourline/intake/internal/middleware"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func TestRateLimit(t *testing.T) {
	e := echo.New()
	e.POST("/admin/login", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}, middleware.RateLimit(2, time.Minute))

	send := func(ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/admin/login", nil)
		req.RemoteAddr = ip + ":1234"
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("192.0.2.1"))
	assert.Equal(t, http.StatusOK, send("192.0.2.1"))
	assert.Equal(t, http.StatusTooManyRequests, send("192.0.2.1"))
	assert.Equal(t, http.StatusOK, send("192.0.2.2"), "other clients keep their own budget")
}

func TestRateLimit_JSONBody(t *testing.T) {
	e := echo.New()
	e.GET("/", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}, middleware.RateLimit(1, time.Minute))

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"`+middleware.RateLimitMessage+`"}`, rec.Body.String())
}

func TestRateLimit_FollowsIPExtractor(t *testing.T) {
	e := echo.New()
	e.IPExtractor = echo.ExtractIPDirect()
	e.POST("/admin/forgot-password", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}, middleware.RateLimit(2, time.Minute))

	send := func(forwardedFor string) int {
		req := httptest.NewRequest(http.MethodPost, "/admin/forgot-password", nil)
		req.RemoteAddr = "203.0.113.9:1234"
		req.Header.Set(echo.HeaderXForwardedFor, forwardedFor)
		req.Header.Set(echo.HeaderXRealIP, forwardedFor)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1"))
	assert.Equal(t, http.StatusOK, send("10.0.0.2"))
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.3"), "forwarding headers must not mint a fresh budget")
}

func TestRateLimit_TrustedProxy(t *testing.T) {
	e := echo.New()
	e.IPExtractor = echo.ExtractIPFromXFFHeader()
	e.POST("/admin/login", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}, middleware.RateLimit(1, time.Minute))

	send := func(client string) int {
		req := httptest.NewRequest(http.MethodPost, "/admin/login", nil)
		req.RemoteAddr = "127.0.0.1:1234"
		req.Header.Set(echo.HeaderXForwardedFor, client)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("198.51.100.1"))
	assert.Equal(t, http.StatusTooManyRequests, send("198.51.100.1"))
	assert.Equal(t, http.StatusOK, send("198.51.100.2"), "clients behind a trusted proxy keep their own budget")
}
