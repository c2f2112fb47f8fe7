// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"codeberg.org/harbourline/intake/internal/config"
	"codeberg.org/harbourline/intake/internal/models"
	"codeberg.org/harbourline/intake/internal/testutil"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type captureMailer struct {
	mu    sync.Mutex
	links []string
}

func (m *captureMailer) SendResetEmail(_ context.Context, _, link string, _ bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links = append(m.links, link)
	return nil
}

func testConfig(csrf bool) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			BaseURL:     "http://localhost:8080",
			MaxBodySize: 1,
			CSRF:        csrf,
		},
		Session: config.SessionConfig{
			CookieName: "_admin_session",
			MaxAge:     3600,
			Secret:     "0123456789abcdef0123456789abcdef-server",
		},
		Login: config.LoginConfig{
			MaxFailedAttempts: config.DefaultMaxFailedAttempts,
			PerMinuteIP:       100,
			BcryptCost:        bcrypt.MinCost,
		},
	}
}

type harness struct {
	e      *echo.Echo
	svc    *Services
	mailer *captureMailer
}

func newHarness(t *testing.T, csrf bool) *harness {
	t.Helper()
	return newHarnessWith(t, testConfig(csrf))
}

func newHarnessWith(t *testing.T, cfg *config.Config) *harness {
	t.Helper()
	_, repo := testutil.NewTestDB(t)
	mailer := &captureMailer{}

	svc, err := NewServices(cfg, repo, mailer)
	require.NoError(t, err)

	return &harness{e: New(cfg, svc), svc: svc, mailer: mailer}
}

func (h *harness) do(method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := testutil.NewJSONRequest(method, path, body)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.e.ServeHTTP(rec, req)
	return rec
}

func cookieNamed(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestHealthRoute(t *testing.T) {
	h := newHarness(t, true)

	rec := h.do(http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
}

func TestLoginSessionLogout(t *testing.T) {
	h := newHarness(t, false)
	testutil.NewTestAccount(t, h.svc.Repo, "a@b.com", models.RoleUser)

	rec := h.do(http.MethodPost, "/admin/login", `{"email":"a@b.com","password":"`+testutil.TestPassword+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cookie := cookieNamed(rec, "_admin_session")
	require.NotNil(t, cookie)

	rec = h.do(http.MethodGet, "/admin/check-session", "", cookie)
	assert.Contains(t, rec.Body.String(), `"authenticated":true`)

	rec = h.do(http.MethodPost, "/admin/logout", "", cookie)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(http.MethodGet, "/admin/check-session", "", cookie)
	assert.JSONEq(t, `{"authenticated":false}`, rec.Body.String())

	rec = h.do(http.MethodPost, "/admin/logout", "", cookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUserRoutesRequireAdministrator(t *testing.T) {
	h := newHarness(t, false)
	testutil.NewTestAccount(t, h.svc.Repo, "user@b.com", models.RoleUser)
	testutil.NewTestAccount(t, h.svc.Repo, "admin@b.com", models.RoleAdministrator)

	login := func(email string) *http.Cookie {
		rec := h.do(http.MethodPost, "/admin/login", `{"email":"`+email+`","password":"`+testutil.TestPassword+`"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		return cookieNamed(rec, "_admin_session")
	}

	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/admin/users", "").Code)
	assert.Equal(t, http.StatusForbidden, h.do(http.MethodGet, "/admin/users", "", login("user@b.com")).Code)
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/admin/users/", "", login("admin@b.com")).Code)
}

func TestOnboardingToLoginFlow(t *testing.T) {
	h := newHarness(t, false)
	testutil.NewTestAccount(t, h.svc.Repo, "admin@b.com", models.RoleAdministrator)
	rec := h.do(http.MethodPost, "/admin/login", `{"email":"admin@b.com","password":"`+testutil.TestPassword+`"}`)
	admin := cookieNamed(rec, "_admin_session")

	rec = h.do(http.MethodPost, "/admin/users", `{"firstName":"Jane","lastName":"Doe","email":"a@b.com","role":"administrator"}`, admin)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, h.mailer.links, 1)
	_, raw, _ := strings.Cut(h.mailer.links[0], "token=")

	rec = h.do(http.MethodGet, "/verify-onboarding-token?token="+raw, "")
	assert.Contains(t, rec.Body.String(), `"valid":true`)

	rec = h.do(http.MethodPost, "/complete-onboarding", `{"token":"`+raw+`","password":"Str0ng!Pass"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(http.MethodPost, "/admin/login", `{"email":"a@b.com","password":"Str0ng!Pass"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func (h *harness) forgotPassword(email, forwardedFor string) *httptest.ResponseRecorder {
	req := testutil.NewJSONRequest(http.MethodPost, "/admin/forgot-password", `{"email":"`+email+`"}`)
	req.RemoteAddr = "203.0.113.9:1234"
	req.Header.Set(echo.HeaderXForwardedFor, forwardedFor)
	req.Header.Set(echo.HeaderXRealIP, forwardedFor)
	rec := httptest.NewRecorder()
	h.e.ServeHTTP(rec, req)
	return rec
}

func TestForgotPassword_IgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	cfg := testConfig(false)
	cfg.Reset = config.ResetConfig{PerEmailHourly: 100, PerIPHourly: 5, PerMinuteIP: 100}
	h := newHarnessWith(t, cfg)
	testutil.NewTestAccount(t, h.svc.Repo, "a@b.com", models.RoleUser)

	for i := range 12 {
		rec := h.forgotPassword("a@b.com", fmt.Sprintf("10.0.0.%d", i))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	assert.Len(t, h.mailer.links, 5, "the per-IP budget applies to the socket address")

	var ips []string
	require.NoError(t, h.svc.Repo.DB().Select(&ips, "SELECT DISTINCT ip_address FROM admin_password_reset_requests"))
	assert.Equal(t, []string{"203.0.113.9"}, ips)
}

func TestForgotPassword_RouteLimitIgnoresForwardedFor(t *testing.T) {
	cfg := testConfig(false)
	cfg.Reset = config.ResetConfig{PerMinuteIP: 3}
	h := newHarnessWith(t, cfg)

	for i := range 3 {
		rec := h.forgotPassword(fmt.Sprintf("user%d@b.com", i), fmt.Sprintf("10.0.0.%d", i))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := h.forgotPassword("user9@b.com", "10.0.0.9")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestForgotPassword_TrustedProxyForwardsClientIP(t *testing.T) {
	cfg := testConfig(false)
	cfg.Server.TrustedProxies = []string{"203.0.113.0/24"}
	cfg.Reset = config.ResetConfig{PerEmailHourly: 100, PerIPHourly: 5, PerMinuteIP: 100}
	h := newHarnessWith(t, cfg)
	testutil.NewTestAccount(t, h.svc.Repo, "a@b.com", models.RoleUser)

	for i := range 6 {
		rec := h.forgotPassword("a@b.com", fmt.Sprintf("198.51.100.%d", i))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	assert.Len(t, h.mailer.links, 6, "each forwarded client has its own budget")
}

func TestCSRF(t *testing.T) {
	h := newHarness(t, true)
	testutil.NewTestAccount(t, h.svc.Repo, "a@b.com", models.RoleUser)
	body := `{"email":"a@b.com","password":"` + testutil.TestPassword + `"}`

	rec := h.do(http.MethodPost, "/admin/login", body)
	assert.Contains(t, []int{http.StatusBadRequest, http.StatusForbidden}, rec.Code, "missing token")
	assert.Nil(t, cookieNamed(rec, "_admin_session"))

	rec = h.do(http.MethodGet, "/admin/csrf-token", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	csrfCookie := cookieNamed(rec, "_csrf")
	require.NotNil(t, csrfCookie)

	req := testutil.NewJSONRequest(http.MethodPost, "/admin/login", body)
	req.Header.Set(CSRFHeader, resp["csrfToken"])
	req.AddCookie(csrfCookie)
	rec = httptest.NewRecorder()
	h.e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestNewServices_InvalidBlockKey(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	cfg := testConfig(false)
	cfg.Session.BlockKey = "zz"

	_, err := NewServices(cfg, repo, &captureMailer{})

	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("verbose"))
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "info", "json")

	logger.Debug("hidden")
	logger.Info("login_failed", "reason", "invalid_password")

	assert.NotContains(t, buf.String(), "hidden")
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "login_failed", entry["msg"])
	assert.Equal(t, "invalid_password", entry["reason"])
}

func TestLoadTLSConfig(t *testing.T) {
	cfg, err := loadTLSConfig(config.TLSConfig{})
	require.NoError(t, err)
	assert.Nil(t, cfg)

	_, err = loadTLSConfig(config.TLSConfig{CertFile: "/nonexistent/cert.pem", KeyFile: "/nonexistent/key.pem"})
	assert.ErrorContains(t, err, "tls file not found")
}
