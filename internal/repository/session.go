// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"codeberg.org/harbourline/intake/internal/models"
)

// CreateSession persists a server-side session.
func (r *Repository) CreateSession(ctx context.Context, s *models.Session) error {
	query := r.db.Rebind(`INSERT INTO admin_sessions
		(id, admin_user_id, user_email, user_name, user_role, ip_address, user_agent, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.AdminUserID, s.UserEmail, s.UserName, s.UserRole, s.IPAddress, s.UserAgent, s.CreatedAt, s.ExpiresAt)
	return wrapError(err)
}

// GetSession retrieves an unexpired session by its hashed ID.
func (r *Repository) GetSession(ctx context.Context, id string, now time.Time) (*models.Session, error) {
	var s models.Session
	query := r.db.Rebind(`SELECT id, admin_user_id, user_email, user_name, user_role, ip_address, user_agent, created_at, expires_at
		FROM admin_sessions WHERE id = ? AND expires_at > ?`)
	if err := r.db.GetContext(ctx, &s, query, id, now); err != nil {
		return nil, wrapError(err)
	}
	return &s, nil
}

// DeleteSession removes a session. Deleting a missing session is not an error.
func (r *Repository) DeleteSession(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM admin_sessions WHERE id = ?`), id)
	return err
}

// DeleteSessionsForAdminUser removes every session of an account.
func (r *Repository) DeleteSessionsForAdminUser(ctx context.Context, adminUserID int64) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM admin_sessions WHERE admin_user_id = ?`), adminUserID)
	return err
}

// DeleteExpiredSessions removes sessions past their expiry.
func (r *Repository) DeleteExpiredSessions(ctx context.Context, now time.Time) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM admin_sessions WHERE expires_at <= ?`), now)
	return err
}
