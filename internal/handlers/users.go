// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"codeberg.org/harbourline/intake/internal/appcontext"
	"codeberg.org/harbourline/intake/internal/apperror"
	"codeberg.org/harbourline/intake/internal/models"
	"codeberg.org/harbourline/intake/internal/repository"
	"codeberg.org/harbourline/intake/internal/services/email"
	"codeberg.org/harbourline/intake/internal/services/onboarding"
	"github.com/labstack/echo/v4"
)

// UserStore is the account access needed by user management.
type UserStore interface {
	ListAdminUsers(ctx context.Context) ([]models.AdminUser, error)
	GetAdminUserByID(ctx context.Context, id int64) (*models.AdminUser, error)
	UnfreezeAdminUser(ctx context.Context, id int64, now time.Time) error
	SetAdminUserActive(ctx context.Context, id int64, active bool, now time.Time) error
	DeleteSessionsForAdminUser(ctx context.Context, adminUserID int64) error
}

// UserHandlers contains the administrator-only account management endpoints.
type UserHandlers struct {
	store      UserStore
	onboarding *onboarding.Service
	mailer     email.Sender
	links      email.Links
}

// NewUsers creates a new UserHandlers instance.
func NewUsers(store UserStore, svc *onboarding.Service, mailer email.Sender, links email.Links) *UserHandlers {
	return &UserHandlers{
		store:      store,
		onboarding: svc,
		mailer:     mailer,
		links:      links,
	}
}

type userResponse struct {
	models.AdminUser
	Name      string `json:"name"`
	Onboarded bool   `json:"onboarded"`
}

func newUserResponse(u *models.AdminUser) userResponse {
	return userResponse{AdminUser: *u, Name: u.Name(), Onboarded: u.HasPassword()}
}

// List returns every admin account, newest first.
func (h *UserHandlers) List(c echo.Context) error {
	users, err := h.store.ListAdminUsers(c.Request().Context())
	if err != nil {
		return apperror.Internal("Failed to list users", err)
	}

	out := make([]userResponse, 0, len(users))
	for i := range users {
		out = append(out, newUserResponse(&users[i]))
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"users":   out,
	})
}

// CreateUserRequest is the request body for inviting a new admin account.
type CreateUserRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Role      string `json:"role"`
}

// Create stores an inactive account and mails its onboarding link.
func (h *UserHandlers) Create(c echo.Context) error {
	var req CreateUserRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	fields := fieldErrors{}
	fields.email("email", req.Email)
	role := models.RoleUser
	if strings.TrimSpace(req.Role) != "" {
		parsed, ok := models.ParseRole(req.Role)
		if !ok {
			fields["role"] = "Role is invalid"
		}
		role = parsed
	}
	if err := fields.err(); err != nil {
		return err
	}

	ctx := c.Request().Context()
	inv, err := h.onboarding.CreateUser(ctx, onboarding.CreateUserParams{
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Email:     req.Email,
		Role:      role,
	})
	if err != nil {
		if errors.Is(err, onboarding.ErrEmailExists) {
			return apperror.Conflict("An account with this email already exists")
		}
		return apperror.Internal("Failed to create user", err)
	}

	return c.JSON(http.StatusCreated, map[string]any{
		"success":             true,
		"user":                newUserResponse(inv.Account),
		"onboardingExpiresAt": inv.ExpiresAt,
		"emailSent":           h.sendOnboarding(ctx, inv),
	})
}

// Unfreeze clears the freeze state and the failed-login counter.
func (h *UserHandlers) Unfreeze(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}

	if err := h.store.UnfreezeAdminUser(c.Request().Context(), id, time.Now().UTC()); err != nil {
		return notFoundOr(err, "Failed to unfreeze user")
	}

	slog.Info("admin_user_unfrozen", "user_id", id, "by", actorID(c))
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

// ResendOnboarding issues a new onboarding link for an account that has not onboarded.
func (h *UserHandlers) ResendOnboarding(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	inv, err := h.onboarding.Resend(ctx, id)
	if err != nil {
		if errors.Is(err, onboarding.ErrAlreadyOnboarded) {
			return apperror.Conflict("User has already completed onboarding")
		}
		return notFoundOr(err, "Failed to resend onboarding")
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success":             true,
		"onboardingExpiresAt": inv.ExpiresAt,
		"emailSent":           h.sendOnboarding(ctx, inv),
	})
}

// Deactivate disables an account and drops its sessions.
func (h *UserHandlers) Deactivate(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	if id == actorID(c) {
		return apperror.Validation("You cannot deactivate your own account", nil)
	}

	ctx := c.Request().Context()
	if err := h.store.SetAdminUserActive(ctx, id, false, time.Now().UTC()); err != nil {
		return notFoundOr(err, "Failed to deactivate user")
	}
	if err := h.store.DeleteSessionsForAdminUser(ctx, id); err != nil {
		return apperror.Internal("Failed to deactivate user", err)
	}

	slog.Info("admin_user_deactivated", "user_id", id, "by", actorID(c))
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

// Activate re-enables an account that has completed onboarding.
func (h *UserHandlers) Activate(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	user, err := h.store.GetAdminUserByID(ctx, id)
	if err != nil {
		return notFoundOr(err, "Failed to activate user")
	}
	if !user.HasPassword() {
		return apperror.Validation("User has not completed onboarding", nil)
	}

	if err := h.store.SetAdminUserActive(ctx, id, true, time.Now().UTC()); err != nil {
		return notFoundOr(err, "Failed to activate user")
	}

	slog.Info("admin_user_activated", "user_id", id, "by", actorID(c))
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

func (h *UserHandlers) sendOnboarding(ctx context.Context, inv *onboarding.Invitation) bool {
	err := h.mailer.SendResetEmail(ctx, inv.Account.Email, h.links.Onboarding(inv.Token), true)
	if err != nil {
		slog.Error("failed to send onboarding email", "user_id", inv.Account.ID, "error", err)
		return false
	}
	return true
}

func notFoundOr(err error, message string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperror.NotFound("User not found")
	}
	return apperror.Internal(message, err)
}

func actorID(c echo.Context) int64 {
	if account := appcontext.AccountFrom(c); account != nil {
		return account.ID
	}
	return 0
}
