// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package session_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"codeberg.org/harbourline/intake/internal/config"
	"codeberg.org/harbourline/intake/internal/models"
	"codeberg.org/harbourline/intake/internal/repository"
	"codeberg.org/harbourline/intake/internal/services/session"
	"codeberg.org/harbourline/intake/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef-test-secret"

// validBlockKey is a valid 32-byte hex-encoded key for encryption testing
const validBlockKey = "fedcba9876543210fedcba9876543210fedcba9876543210fedcba9876543210"

var client = session.ClientInfo{IP: "192.0.2.1", UserAgent: "test"}

func newTestConfig() *config.SessionConfig {
	return &config.SessionConfig{
		CookieName: "_test_session",
		MaxAge:     3600, // 1 hour
		Secret:     testSecret,
	}
}

func newManager(t *testing.T, cfg *config.SessionConfig, secure bool) (*session.Manager, *repository.Repository, models.AccountSummary) {
	t.Helper()
	_, repo := testutil.NewTestDB(t)
	user := testutil.NewTestAccount(t, repo, "a@b.com", models.RoleAdministrator)
	mgr, err := session.NewManager(repo, cfg, secure)
	require.NoError(t, err)
	return mgr, repo, user.Summary()
}

func requestWith(cookie *http.Cookie) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	return req
}

func countSessions(t *testing.T, repo *repository.Repository) int {
	t.Helper()
	var n int
	require.NoError(t, repo.DB().Get(&n, "SELECT count(*) FROM admin_sessions"))
	return n
}

func TestNewManager(t *testing.T) {
	_, repo := testutil.NewTestDB(t)

	mgr, err := session.NewManager(repo, newTestConfig(), false)

	require.NoError(t, err)
	assert.NotNil(t, mgr)
}

func TestNewManager_WithBlockKey(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	cfg := newTestConfig()
	cfg.BlockKey = validBlockKey

	mgr, err := session.NewManager(repo, cfg, true)

	require.NoError(t, err)
	assert.NotNil(t, mgr)
}

func TestNewManager_InvalidBlockKey_NotHex(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	cfg := newTestConfig()
	cfg.BlockKey = "not-hex-encoded"

	_, err := session.NewManager(repo, cfg, false)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid session block key")
}

func TestNewManager_InvalidBlockKey_WrongLength(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	cfg := newTestConfig()
	cfg.BlockKey = "0123456789abcdef" // only 8 bytes

	_, err := session.NewManager(repo, cfg, false)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be 32 bytes")
}

func TestNewManager_DevMode_GeneratesKey(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	cfg := newTestConfig()
	cfg.Secret = ""

	mgr, err := session.NewManager(repo, cfg, false)

	require.NoError(t, err)
	assert.NotNil(t, mgr)
}

func TestCreate(t *testing.T) {
	mgr, repo, account := newManager(t, newTestConfig(), false)

	cookie, err := mgr.Create(context.Background(), account, client)

	require.NoError(t, err)
	assert.Equal(t, "_test_session", cookie.Name)
	assert.NotEmpty(t, cookie.Value)
	assert.Equal(t, "/", cookie.Path)
	assert.Equal(t, 3600, cookie.MaxAge)
	assert.True(t, cookie.HttpOnly)
	assert.False(t, cookie.Secure)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.Equal(t, 1, countSessions(t, repo))
}

func TestCreate_SecureMode(t *testing.T) {
	mgr, _, account := newManager(t, newTestConfig(), true)

	cookie, err := mgr.Create(context.Background(), account, client)

	require.NoError(t, err)
	assert.True(t, cookie.Secure)
}

func TestLoad(t *testing.T) {
	mgr, _, account := newManager(t, newTestConfig(), false)
	cookie, err := mgr.Create(context.Background(), account, client)
	require.NoError(t, err)

	s, err := mgr.Load(requestWith(cookie))

	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, account, s.Account())
	assert.Equal(t, "192.0.2.1", s.IPAddress)
	assert.False(t, s.ExpiresAt.IsZero())
}

func TestLoad_StoresHashedID(t *testing.T) {
	mgr, repo, account := newManager(t, newTestConfig(), false)
	cookie, err := mgr.Create(context.Background(), account, client)
	require.NoError(t, err)

	var id string
	require.NoError(t, repo.DB().Get(&id, "SELECT id FROM admin_sessions"))
	assert.NotContains(t, cookie.Value, id)
	assert.Len(t, id, 64)
}

func TestLoad_NoCookie(t *testing.T) {
	mgr, _, _ := newManager(t, newTestConfig(), false)

	s, err := mgr.Load(requestWith(nil))

	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestLoad_InvalidCookie(t *testing.T) {
	mgr, _, _ := newManager(t, newTestConfig(), false)

	s, err := mgr.Load(requestWith(&http.Cookie{Name: "_test_session", Value: "invalid-cookie-value"}))

	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestLoad_TamperedCookie(t *testing.T) {
	mgr, _, account := newManager(t, newTestConfig(), false)
	cookie, err := mgr.Create(context.Background(), account, client)
	require.NoError(t, err)

	cookie.Value = cookie.Value[:len(cookie.Value)-5] + "XXXXX"

	s, err := mgr.Load(requestWith(cookie))

	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestLoad_DifferentSecret(t *testing.T) {
	mgr1, repo, account := newManager(t, newTestConfig(), false)
	cookie, err := mgr1.Create(context.Background(), account, client)
	require.NoError(t, err)

	cfg2 := newTestConfig()
	cfg2.Secret = "another-secret-that-is-long-enough-to-pass"
	mgr2, err := session.NewManager(repo, cfg2, false)
	require.NoError(t, err)

	s, err := mgr2.Load(requestWith(cookie))

	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestLoad_DeletedServerSide(t *testing.T) {
	mgr, repo, account := newManager(t, newTestConfig(), false)
	cookie, err := mgr.Create(context.Background(), account, client)
	require.NoError(t, err)

	require.NoError(t, repo.DeleteSessionsForAdminUser(context.Background(), account.ID))

	s, err := mgr.Load(requestWith(cookie))

	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestDestroy(t *testing.T) {
	mgr, repo, account := newManager(t, newTestConfig(), false)
	cookie, err := mgr.Create(context.Background(), account, client)
	require.NoError(t, err)

	cleared, err := mgr.Destroy(requestWith(cookie))
	require.NoError(t, err)
	assert.Equal(t, -1, cleared.MaxAge)
	assert.Zero(t, countSessions(t, repo))

	// Idempotent
	_, err = mgr.Destroy(requestWith(cookie))
	require.NoError(t, err)
	_, err = mgr.Destroy(requestWith(nil))
	require.NoError(t, err)
}

func TestRegenerate(t *testing.T) {
	mgr, repo, account := newManager(t, newTestConfig(), false)
	old, err := mgr.Create(context.Background(), account, client)
	require.NoError(t, err)

	fresh, err := mgr.Regenerate(requestWith(old), account, client)
	require.NoError(t, err)

	assert.NotEqual(t, old.Value, fresh.Value)
	assert.Equal(t, 1, countSessions(t, repo))

	s, err := mgr.Load(requestWith(old))
	require.NoError(t, err)
	assert.Nil(t, s, "the pre-login session must be gone")

	s, err = mgr.Load(requestWith(fresh))
	require.NoError(t, err)
	assert.NotNil(t, s)
}

func TestClear(t *testing.T) {
	mgr, _, _ := newManager(t, newTestConfig(), false)

	cookie := mgr.Clear()

	assert.Equal(t, "_test_session", cookie.Name)
	assert.Empty(t, cookie.Value)
	assert.Equal(t, "/", cookie.Path)
	assert.Equal(t, -1, cookie.MaxAge)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
}

func TestClear_SecureMode(t *testing.T) {
	mgr, _, _ := newManager(t, newTestConfig(), true)

	cookie := mgr.Clear()

	assert.True(t, cookie.Secure)
}
