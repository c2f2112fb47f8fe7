// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import (
	"strings"
	"time"
)

// Role is the coarse capability tag of an admin account.
type Role string

const (
	RoleAdministrator Role = "administrator"
	RoleUser          Role = "user"
)

// ParseRole normalizes a role name. Unknown roles are rejected.
func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleAdministrator, "admin":
		return RoleAdministrator, true
	case RoleUser, "reviewer":
		return RoleUser, true
	}
	return "", false
}

// NormalizeEmail lowercases and trims an email address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// AdminUser is an account allowed into the admin area.
type AdminUser struct { //nolint:govet // fieldalignment: readability over optimization
	ID                    int64      `db:"id" json:"id"`
	Email                 string     `db:"email" json:"email"`
	FirstName             string     `db:"first_name" json:"firstName"`
	LastName              string     `db:"last_name" json:"lastName"`
	PasswordHash          *string    `db:"password_hash" json:"-"`
	Role                  Role       `db:"role" json:"role"`
	IsActive              bool       `db:"is_active" json:"isActive"`
	IsFrozen              bool       `db:"is_frozen" json:"isFrozen"`
	FrozenAt              *time.Time `db:"frozen_at" json:"frozenAt,omitempty"`
	FailedLoginAttempts   int        `db:"failed_login_attempts" json:"failedLoginAttempts"`
	OnboardingToken       *string    `db:"onboarding_token" json:"-"` // SHA256 hash
	OnboardingTokenExpiry *time.Time `db:"onboarding_token_expiry" json:"-"`
	LastLoginAt           *time.Time `db:"last_login_at" json:"lastLoginAt,omitempty"`
	LastPasswordResetAt   *time.Time `db:"last_password_reset_at" json:"lastPasswordResetAt,omitempty"`
	CreatedAt             time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt             time.Time  `db:"updated_at" json:"updatedAt"`
}

// Name returns the display name.
func (u *AdminUser) Name() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// HasPassword reports whether onboarding has set a password.
func (u *AdminUser) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// CanAuthenticate reports whether the account state allows a session.
func (u *AdminUser) CanAuthenticate() bool {
	return u.IsActive && !u.IsFrozen
}

// Summary returns the identity projection stored in sessions and returned to clients.
func (u *AdminUser) Summary() AccountSummary {
	return AccountSummary{
		ID:    u.ID,
		Name:  u.Name(),
		Email: u.Email,
		Role:  u.Role,
	}
}

// AccountSummary is the minimal identity of an admin account. It never carries credentials.
type AccountSummary struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}
