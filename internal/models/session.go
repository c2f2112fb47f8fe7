// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

// Session is a server-side admin session. ID is the SHA256 hash of the
// identifier carried in the cookie.
type Session struct { //nolint:govet // fieldalignment: readability over optimization
	ID          string    `db:"id"`
	AdminUserID int64     `db:"admin_user_id"`
	UserEmail   string    `db:"user_email"`
	UserName    string    `db:"user_name"`
	UserRole    Role      `db:"user_role"`
	IPAddress   string    `db:"ip_address"`
	UserAgent   string    `db:"user_agent"`
	CreatedAt   time.Time `db:"created_at"`
	ExpiresAt   time.Time `db:"expires_at"`
}

// Account returns the identity projection stored in the session.
func (s *Session) Account() AccountSummary {
	return AccountSummary{
		ID:    s.AdminUserID,
		Name:  s.UserName,
		Email: s.UserEmail,
		Role:  s.UserRole,
	}
}
