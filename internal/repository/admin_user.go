// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"codeberg.org/harbourline/intake/internal/models"
)

const adminUserColumns = `id, email, first_name, last_name, password_hash, role, is_active, is_frozen,
	frozen_at, failed_login_attempts, onboarding_token, onboarding_token_expiry,
	last_login_at, last_password_reset_at, created_at, updated_at`

// CreateAdminUser inserts a new account and sets its ID.
// The email is normalized before it is stored.
func (r *Repository) CreateAdminUser(ctx context.Context, user *models.AdminUser) error {
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = user.CreatedAt
	user.Email = models.NormalizeEmail(user.Email)

	query := r.db.Rebind(`INSERT INTO admin_users
		(email, first_name, last_name, password_hash, role, is_active, is_frozen,
		 failed_login_attempts, onboarding_token, onboarding_token_expiry, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`)

	err := r.db.GetContext(ctx, &user.ID, query,
		user.Email, user.FirstName, user.LastName, user.PasswordHash, user.Role,
		user.IsActive, user.IsFrozen, user.FailedLoginAttempts,
		user.OnboardingToken, user.OnboardingTokenExpiry, user.CreatedAt, user.UpdatedAt)
	return wrapError(err)
}

// GetAdminUserByID retrieves an account by ID.
func (r *Repository) GetAdminUserByID(ctx context.Context, id int64) (*models.AdminUser, error) {
	var user models.AdminUser
	query := r.db.Rebind(`SELECT ` + adminUserColumns + ` FROM admin_users WHERE id = ?`)
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		return nil, wrapError(err)
	}
	return &user, nil
}

// GetAdminUserByEmail retrieves an account by its normalized email.
func (r *Repository) GetAdminUserByEmail(ctx context.Context, email string) (*models.AdminUser, error) {
	var user models.AdminUser
	query := r.db.Rebind(`SELECT ` + adminUserColumns + ` FROM admin_users WHERE email = ?`)
	if err := r.db.GetContext(ctx, &user, query, models.NormalizeEmail(email)); err != nil {
		return nil, wrapError(err)
	}
	return &user, nil
}

// GetAdminUserByOnboardingToken retrieves a not yet onboarded account holding
// an unexpired onboarding token with the given hash.
func (r *Repository) GetAdminUserByOnboardingToken(ctx context.Context, tokenHash string, now time.Time) (*models.AdminUser, error) {
	var user models.AdminUser
	query := r.db.Rebind(`SELECT ` + adminUserColumns + ` FROM admin_users
		WHERE onboarding_token = ? AND onboarding_token_expiry > ? AND password_hash IS NULL`)
	if err := r.db.GetContext(ctx, &user, query, tokenHash, now); err != nil {
		return nil, wrapError(err)
	}
	return &user, nil
}

// ListAdminUsers returns all accounts, newest first.
func (r *Repository) ListAdminUsers(ctx context.Context) ([]models.AdminUser, error) {
	var users []models.AdminUser
	query := `SELECT ` + adminUserColumns + ` FROM admin_users ORDER BY created_at DESC, id DESC`
	if err := r.db.SelectContext(ctx, &users, query); err != nil {
		return nil, err
	}
	return users, nil
}

// IncrementFailedLoginAttempts atomically increments the counter and returns the new value.
func (r *Repository) IncrementFailedLoginAttempts(ctx context.Context, id int64, now time.Time) (int, error) {
	var attempts int
	query := r.db.Rebind(`UPDATE admin_users
		SET failed_login_attempts = failed_login_attempts + 1, updated_at = ?
		WHERE id = ?
		RETURNING failed_login_attempts`)
	if err := r.db.GetContext(ctx, &attempts, query, now, id); err != nil {
		return 0, wrapError(err)
	}
	return attempts, nil
}

// FreezeAdminUser locks the account. An already frozen account keeps its original frozen_at.
func (r *Repository) FreezeAdminUser(ctx context.Context, id int64, now time.Time) error {
	query := r.db.Rebind(`UPDATE admin_users
		SET is_frozen = ?, frozen_at = COALESCE(frozen_at, ?), updated_at = ?
		WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, query, true, now, now, id)
	if err != nil {
		return err
	}
	return requireRows(res)
}

// UnfreezeAdminUser clears the freeze state and the failed-attempt counter.
func (r *Repository) UnfreezeAdminUser(ctx context.Context, id int64, now time.Time) error {
	query := r.db.Rebind(`UPDATE admin_users
		SET is_frozen = ?, frozen_at = NULL, failed_login_attempts = 0, updated_at = ?
		WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, query, false, now, id)
	if err != nil {
		return err
	}
	return requireRows(res)
}

// RecordSuccessfulLogin resets the counter, clears any freeze and stamps last_login_at.
func (r *Repository) RecordSuccessfulLogin(ctx context.Context, id int64, now time.Time) error {
	query := r.db.Rebind(`UPDATE admin_users
		SET failed_login_attempts = 0, is_frozen = ?, frozen_at = NULL, last_login_at = ?, updated_at = ?
		WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, query, false, now, now, id)
	if err != nil {
		return err
	}
	return requireRows(res)
}

// UpdateAdminPassword replaces the password hash.
func (r *Repository) UpdateAdminPassword(ctx context.Context, id int64, passwordHash string, now time.Time) error {
	query := r.db.Rebind(`UPDATE admin_users SET password_hash = ?, updated_at = ? WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, query, passwordHash, now, id)
	if err != nil {
		return err
	}
	return requireRows(res)
}

// CompleteOnboarding sets the first password, activates the account and clears
// the onboarding token in one conditional update. It returns ErrNotFound when
// the token is unknown, expired or already used.
func (r *Repository) CompleteOnboarding(ctx context.Context, tokenHash, passwordHash string, now time.Time) (int64, error) {
	var id int64
	query := r.db.Rebind(`UPDATE admin_users
		SET password_hash = ?, is_active = ?, onboarding_token = NULL, onboarding_token_expiry = NULL, updated_at = ?
		WHERE onboarding_token = ? AND onboarding_token_expiry > ? AND password_hash IS NULL
		RETURNING id`)
	if err := r.db.GetContext(ctx, &id, query, passwordHash, true, now, tokenHash, now); err != nil {
		return 0, wrapError(err)
	}
	return id, nil
}

// SetOnboardingToken replaces the onboarding token of an account that has no password yet.
func (r *Repository) SetOnboardingToken(ctx context.Context, id int64, tokenHash string, expiresAt, now time.Time) error {
	query := r.db.Rebind(`UPDATE admin_users
		SET onboarding_token = ?, onboarding_token_expiry = ?, updated_at = ?
		WHERE id = ? AND password_hash IS NULL`)
	res, err := r.db.ExecContext(ctx, query, tokenHash, expiresAt, now, id)
	if err != nil {
		return wrapError(err)
	}
	return requireRows(res)
}

// SetAdminUserActive toggles is_active.
func (r *Repository) SetAdminUserActive(ctx context.Context, id int64, active bool, now time.Time) error {
	query := r.db.Rebind(`UPDATE admin_users SET is_active = ?, updated_at = ? WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, query, active, now, id)
	if err != nil {
		return err
	}
	return requireRows(res)
}
