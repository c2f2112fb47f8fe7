// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package reset implements the password reset token lifecycle.
package reset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"codeberg.org/harbourline/intake/internal/config"
	"codeberg.org/harbourline/intake/internal/models"
	"codeberg.org/harbourline/intake/internal/repository"
	"codeberg.org/harbourline/intake/internal/services/password"
	"codeberg.org/harbourline/intake/internal/services/token"
)

var (
	ErrRateLimited     = errors.New("too many password reset requests")
	ErrTokenInvalid    = errors.New("invalid reset token")
	ErrTokenUsed       = errors.New("reset token already used")
	ErrTokenExpired    = errors.New("reset token expired")
	ErrAccountInactive = errors.New("account is inactive")
	ErrAccountFrozen   = errors.New("account is frozen")
)

// RequestContext identifies where a reset request came from.
type RequestContext struct {
	IP        string
	UserAgent string
}

// Store is the slice of the account store the reset flow needs.
type Store interface {
	GetAdminUserByID(ctx context.Context, id int64) (*models.AdminUser, error)
	GetAdminUserByEmail(ctx context.Context, email string) (*models.AdminUser, error)
	CreatePasswordResetToken(ctx context.Context, t *models.PasswordResetToken) error
	GetPasswordResetTokenByHash(ctx context.Context, tokenHash string) (*models.PasswordResetToken, error)
	DeletePasswordResetToken(ctx context.Context, id int64) error
	DeleteExpiredPasswordResetTokens(ctx context.Context, now time.Time) (int64, error)
	ReservePasswordResetRequest(ctx context.Context, b repository.ResetRequestBudget) (string, error)
	DeletePasswordResetRequestsBefore(ctx context.Context, before time.Time) error
	ConsumePasswordResetToken(ctx context.Context, tokenID, adminUserID int64, passwordHash string, now time.Time) error
}

// Validation is a reset token that passed every check, with its account.
type Validation struct {
	Token   *models.PasswordResetToken
	Account *models.AdminUser
}

type Service struct {
	store  Store
	hasher *password.Hasher
	policy *password.Policy
	cfg    config.ResetConfig
	now    func() time.Time
}

// NewService creates the reset service. Zero values in cfg fall back to the defaults.
func NewService(store Store, cfg *config.ResetConfig, hasher *password.Hasher, policy *password.Policy) *Service {
	c := *cfg
	if c.TokenTTL <= 0 {
		c.TokenTTL = config.DefaultResetTokenTTL
	}
	if c.PerEmailHourly <= 0 {
		c.PerEmailHourly = config.DefaultResetPerEmail
	}
	if c.PerIPHourly <= 0 {
		c.PerIPHourly = config.DefaultResetPerIP
	}
	if c.Window <= 0 {
		c.Window = config.DefaultResetWindow
	}
	return &Service{
		store:  store,
		hasher: hasher,
		policy: policy,
		cfg:    c,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CreateToken issues a reset token for email. It returns an empty token and
// no error when the account does not exist or is inactive, and ErrRateLimited
// when the email or IP exceeded its budget. Callers report the same generic
// outcome in every case.
func (s *Service) CreateToken(ctx context.Context, email string, rc RequestContext) (string, error) {
	email = models.NormalizeEmail(email)
	now := s.now()
	since := now.Add(-s.cfg.Window)

	if _, err := s.store.DeleteExpiredPasswordResetTokens(ctx, now); err != nil {
		return "", fmt.Errorf("failed to purge expired tokens: %w", err)
	}
	if err := s.store.DeletePasswordResetRequestsBefore(ctx, since); err != nil {
		return "", fmt.Errorf("failed to purge reset requests: %w", err)
	}

	limitedBy, err := s.store.ReservePasswordResetRequest(ctx, repository.ResetRequestBudget{
		Email:    email,
		IP:       rc.IP,
		Since:    since,
		Now:      now,
		PerEmail: s.cfg.PerEmailHourly,
		PerIP:    s.cfg.PerIPHourly,
	})
	if err != nil {
		return "", fmt.Errorf("failed to record reset request: %w", err)
	}
	if limitedBy != "" {
		slog.Warn("reset_rate_limited", "email", email, "ip", rc.IP, "dimension", limitedBy)
		return "", ErrRateLimited
	}

	user, err := s.store.GetAdminUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			slog.Info("reset_requested", "email", email, "outcome", "unknown_account")
			return "", nil
		}
		return "", fmt.Errorf("failed to get user: %w", err)
	}
	if !user.IsActive {
		slog.Info("reset_requested", "user_id", user.ID, "outcome", "inactive_account")
		return "", nil
	}

	raw, hash, err := token.GenerateWithHash()
	if err != nil {
		return "", err
	}

	t := &models.PasswordResetToken{
		AdminUserID:     user.ID,
		TokenHash:       hash,
		IssuedIP:        rc.IP,
		IssuedUserAgent: rc.UserAgent,
		CreatedAt:       now,
		ExpiresAt:       now.Add(s.cfg.TokenTTL),
	}
	if err := s.store.CreatePasswordResetToken(ctx, t); err != nil {
		return "", fmt.Errorf("failed to store reset token: %w", err)
	}

	slog.Info("reset_requested", "user_id", user.ID, "outcome", "token_issued", "ip", rc.IP)
	return raw, nil
}

// Validate checks a raw reset token without consuming it. Expired tokens are
// deleted as a side effect.
func (s *Service) Validate(ctx context.Context, rawToken string) (*Validation, error) {
	if rawToken == "" {
		return nil, ErrTokenInvalid
	}

	t, err := s.store.GetPasswordResetTokenByHash(ctx, token.Hash(rawToken))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, fmt.Errorf("failed to get reset token: %w", err)
	}

	if t.IsConsumed() {
		return nil, ErrTokenUsed
	}

	if token.Expired(t.ExpiresAt, s.now()) {
		if err := s.store.DeletePasswordResetToken(ctx, t.ID); err != nil {
			slog.Error("failed to delete expired reset token", "token_id", t.ID, "error", err)
		}
		return nil, ErrTokenExpired
	}

	user, err := s.store.GetAdminUserByID(ctx, t.AdminUserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if !user.IsActive {
		return nil, ErrAccountInactive
	}
	if user.IsFrozen {
		return nil, ErrAccountFrozen
	}

	return &Validation{Token: t, Account: user}, nil
}

// ResetPassword validates the token, applies the password policy and consumes
// the token together with the credential update in one transaction. Every
// session of the account is dropped.
func (s *Service) ResetPassword(ctx context.Context, rawToken, newPassword string) (*models.AccountSummary, error) {
	v, err := s.Validate(ctx, rawToken)
	if err != nil {
		return nil, err
	}

	user := v.Account
	if err := s.policy.Check(newPassword, user.Email, user.FirstName, user.LastName); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return nil, err
	}

	if err := s.store.ConsumePasswordResetToken(ctx, v.Token.ID, user.ID, hash, s.now()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTokenUsed
		}
		return nil, fmt.Errorf("failed to consume reset token: %w", err)
	}

	slog.Info("password_reset", "user_id", user.ID)
	summary := user.Summary()
	return &summary, nil
}

// IsTokenError reports whether err is one of the token rejection reasons.
func IsTokenError(err error) bool {
	return errors.Is(err, ErrTokenInvalid) ||
		errors.Is(err, ErrTokenUsed) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrAccountInactive) ||
		errors.Is(err, ErrAccountFrozen)
}
