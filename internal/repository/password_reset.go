// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"codeberg.org/harbourline/intake/internal/database"
	"codeberg.org/harbourline/intake/internal/models"
	"github.com/vinovest/sqlx"
)

// CreatePasswordResetToken stores a hashed reset token and sets its ID.
func (r *Repository) CreatePasswordResetToken(ctx context.Context, token *models.PasswordResetToken) error {
	query := r.db.Rebind(`INSERT INTO admin_password_reset_tokens
		(admin_user_id, token_hash, issued_ip, issued_user_agent, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id`)
	err := r.db.GetContext(ctx, &token.ID, query,
		token.AdminUserID, token.TokenHash, token.IssuedIP, token.IssuedUserAgent, token.CreatedAt, token.ExpiresAt)
	return wrapError(err)
}

// GetPasswordResetTokenByHash retrieves a reset token by hash, consumed or not.
func (r *Repository) GetPasswordResetTokenByHash(ctx context.Context, tokenHash string) (*models.PasswordResetToken, error) {
	var token models.PasswordResetToken
	query := r.db.Rebind(`SELECT id, admin_user_id, token_hash, issued_ip, issued_user_agent, created_at, expires_at, consumed_at
		FROM admin_password_reset_tokens WHERE token_hash = ?`)
	if err := r.db.GetContext(ctx, &token, query, tokenHash); err != nil {
		return nil, wrapError(err)
	}
	return &token, nil
}

// DeletePasswordResetToken deletes a token by ID.
func (r *Repository) DeletePasswordResetToken(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM admin_password_reset_tokens WHERE id = ?`), id)
	return err
}

// DeleteExpiredPasswordResetTokens deletes expired tokens that were never consumed.
func (r *Repository) DeleteExpiredPasswordResetTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		r.db.Rebind(`DELETE FROM admin_password_reset_tokens WHERE expires_at < ? AND consumed_at IS NULL`), now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RecordPasswordResetRequest stores one reset request event for rate limiting.
func (r *Repository) RecordPasswordResetRequest(ctx context.Context, email, ip string, now time.Time) error {
	return recordResetRequest(ctx, r.db, email, ip, now)
}

// CountPasswordResetRequestsByEmail counts reset requests for email since the given time.
func (r *Repository) CountPasswordResetRequestsByEmail(ctx context.Context, email string, since time.Time) (int, error) {
	return countResetRequests(ctx, r.db, "email", models.NormalizeEmail(email), since)
}

// CountPasswordResetRequestsByIP counts reset requests from ip since the given time.
func (r *Repository) CountPasswordResetRequestsByIP(ctx context.Context, ip string, since time.Time) (int, error) {
	return countResetRequests(ctx, r.db, "ip_address", ip, since)
}

// ResetRequestBudget describes one reset request and the limits it is checked against.
type ResetRequestBudget struct {
	Email    string
	IP       string // empty skips the per-IP limit
	Since    time.Time
	Now      time.Time
	PerEmail int
	PerIP    int
}

// Reset request limit dimensions reported by ReservePasswordResetRequest.
const (
	LimitedByEmail = "email"
	LimitedByIP    = "ip"
)

// ReservePasswordResetRequest counts the requests inside the window and
// records the new one in a single transaction. It returns the exhausted
// dimension, or "" when the request was recorded. Rejected requests are not
// stored.
func (r *Repository) ReservePasswordResetRequest(ctx context.Context, b ResetRequestBudget) (string, error) {
	email := models.NormalizeEmail(b.Email)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	// SQLite opens transactions with BEGIN IMMEDIATE; PostgreSQL needs explicit locks.
	if tx.DriverName() == database.DriverPostgres {
		keys := []string{"reset:email:" + email}
		if b.IP != "" {
			keys = append(keys, "reset:ip:"+b.IP)
		}
		for _, key := range keys {
			if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
				return "", err
			}
		}
	}

	byEmail, err := countResetRequests(ctx, tx, "email", email, b.Since)
	if err != nil {
		return "", err
	}
	if byEmail >= b.PerEmail {
		return LimitedByEmail, nil
	}

	if b.IP != "" {
		byIP, err := countResetRequests(ctx, tx, "ip_address", b.IP, b.Since)
		if err != nil {
			return "", err
		}
		if byIP >= b.PerIP {
			return LimitedByIP, nil
		}
	}

	if err := recordResetRequest(ctx, tx, email, b.IP, b.Now); err != nil {
		return "", err
	}
	return "", tx.Commit()
}

func recordResetRequest(ctx context.Context, q sqlx.ExtContext, email, ip string, now time.Time) error {
	_, err := q.ExecContext(ctx,
		q.Rebind(`INSERT INTO admin_password_reset_requests (email, ip_address, created_at) VALUES (?, ?, ?)`),
		models.NormalizeEmail(email), ip, now)
	return err
}

// column is a fixed column name, never user input.
func countResetRequests(ctx context.Context, q sqlx.ExtContext, column, value string, since time.Time) (int, error) {
	var count int
	err := sqlx.GetContext(ctx, q, &count,
		q.Rebind(`SELECT count(*) FROM admin_password_reset_requests WHERE `+column+` = ? AND created_at > ?`),
		value, since)
	return count, err
}

// DeletePasswordResetRequestsBefore drops request events older than before.
func (r *Repository) DeletePasswordResetRequestsBefore(ctx context.Context, before time.Time) error {
	_, err := r.db.ExecContext(ctx,
		r.db.Rebind(`DELETE FROM admin_password_reset_requests WHERE created_at < ?`), before)
	return err
}

// ConsumePasswordResetToken marks the token used, stores the new password hash,
// clears lockout state and drops every session of the account, all in one
// transaction. It returns ErrNotFound when the token was consumed concurrently.
func (r *Repository) ConsumePasswordResetToken(ctx context.Context, tokenID, adminUserID int64, passwordHash string, now time.Time) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE admin_password_reset_tokens
		SET consumed_at = ?
		WHERE id = ? AND admin_user_id = ? AND consumed_at IS NULL`),
		now, tokenID, adminUserID)
	if err != nil {
		return err
	}
	if err := requireRows(res); err != nil {
		return err
	}

	res, err = tx.ExecContext(ctx, tx.Rebind(`UPDATE admin_users
		SET password_hash = ?, failed_login_attempts = 0, is_frozen = ?, frozen_at = NULL,
			last_password_reset_at = ?, updated_at = ?
		WHERE id = ?`),
		passwordHash, false, now, now, adminUserID)
	if err != nil {
		return err
	}
	if err := requireRows(res); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM admin_sessions WHERE admin_user_id = ?`), adminUserID); err != nil {
		return err
	}

	return tx.Commit()
}
