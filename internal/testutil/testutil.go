// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package testutil provides test helpers and fixtures.
package testutil

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"codeberg.org/harbourline/intake/internal/database"
	"codeberg.org/harbourline/intake/internal/models"
	"codeberg.org/harbourline/intake/internal/repository"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"github.com/vinovest/sqlx"
	"golang.org/x/crypto/bcrypt"
)

// TestPassword satisfies the password policy and is used by account fixtures.
const TestPassword = "Str0ng!Pass"

// NewTestDB creates an in-memory SQLite database for tests.
// Returns both the database connection and the repository for convenience.
func NewTestDB(t *testing.T) (*sqlx.DB, *repository.Repository) {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	repo := repository.New(db)
	return db, repo
}

// HashPassword hashes with the minimum bcrypt cost to keep tests fast.
func HashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

// NewTestAccount creates an active, onboarded account with TestPassword.
func NewTestAccount(t *testing.T, repo *repository.Repository, email string, role models.Role) *models.AdminUser {
	t.Helper()
	hash := HashPassword(t, TestPassword)
	user := &models.AdminUser{
		Email:        email,
		FirstName:    "Test",
		LastName:     "Admin",
		PasswordHash: &hash,
		Role:         role,
		IsActive:     true,
	}
	require.NoError(t, repo.CreateAdminUser(context.Background(), user))
	return user
}

// NewPendingAccount creates an inactive account that still has to complete onboarding.
func NewPendingAccount(t *testing.T, repo *repository.Repository, email, tokenHash string, expiresAt time.Time) *models.AdminUser {
	t.Helper()
	expiry := expiresAt.UTC()
	user := &models.AdminUser{
		Email:                 email,
		FirstName:             "New",
		LastName:              "Admin",
		Role:                  models.RoleUser,
		OnboardingToken:       &tokenHash,
		OnboardingTokenExpiry: &expiry,
	}
	require.NoError(t, repo.CreateAdminUser(context.Background(), user))
	return user
}

// GetAccount reloads an account from the database.
func GetAccount(t *testing.T, repo *repository.Repository, id int64) *models.AdminUser {
	t.Helper()
	user, err := repo.GetAdminUserByID(context.Background(), id)
	require.NoError(t, err)
	return user
}

// NewEchoContext creates an Echo context for handler tests.
func NewEchoContext(e *echo.Echo, method, path string, body io.Reader) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return c, rec
}

// NewJSONRequest creates a JSON request carrying body.
func NewJSONRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}
