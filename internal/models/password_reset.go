// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

// PasswordResetToken stores a hashed single-use password reset token.
type PasswordResetToken struct { //nolint:govet // fieldalignment: readability over optimization
	ID              int64      `db:"id" json:"id"`
	AdminUserID     int64      `db:"admin_user_id" json:"adminUserId"`
	TokenHash       string     `db:"token_hash" json:"-"` // SHA256 hash
	IssuedIP        string     `db:"issued_ip" json:"issuedIp"`
	IssuedUserAgent string     `db:"issued_user_agent" json:"issuedUserAgent"`
	CreatedAt       time.Time  `db:"created_at" json:"createdAt"`
	ExpiresAt       time.Time  `db:"expires_at" json:"expiresAt"`
	ConsumedAt      *time.Time `db:"consumed_at" json:"consumedAt,omitempty"`
}

// IsConsumed reports whether the token was already used.
func (t *PasswordResetToken) IsConsumed() bool {
	return t.ConsumedAt != nil
}
