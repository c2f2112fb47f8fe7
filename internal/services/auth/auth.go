// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth

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
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSamePassword       = errors.New("new password must differ from the current password")
)

// Store is the slice of the account store the login state machine needs.
type Store interface {
	GetAdminUserByID(ctx context.Context, id int64) (*models.AdminUser, error)
	GetAdminUserByEmail(ctx context.Context, email string) (*models.AdminUser, error)
	IncrementFailedLoginAttempts(ctx context.Context, id int64, now time.Time) (int, error)
	FreezeAdminUser(ctx context.Context, id int64, now time.Time) error
	RecordSuccessfulLogin(ctx context.Context, id int64, now time.Time) error
	UpdateAdminPassword(ctx context.Context, id int64, passwordHash string, now time.Time) error
}

type Service struct {
	store             Store
	hasher            *password.Hasher
	policy            *password.Policy
	maxFailedAttempts int
	now               func() time.Time
}

func NewService(store Store, cfg *config.LoginConfig, hasher *password.Hasher, policy *password.Policy) *Service {
	maxFailed := cfg.MaxFailedAttempts
	if maxFailed <= 0 {
		maxFailed = config.DefaultMaxFailedAttempts
	}
	return &Service{
		store:             store,
		hasher:            hasher,
		policy:            policy,
		maxFailedAttempts: maxFailed,
		now:               func() time.Time { return time.Now().UTC() },
	}
}

// Login authenticates an admin account. Every rejection returns
// ErrInvalidCredentials; the specific reason is only logged.
func (s *Service) Login(ctx context.Context, email, pw string) (*models.AccountSummary, error) {
	email = models.NormalizeEmail(email)

	user, err := s.store.GetAdminUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Constant-time: always perform a bcrypt comparison
			s.hasher.CompareDummy(pw)
			slog.Warn("login_failed", "email", email, "reason", "user_not_found")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if !user.HasPassword() {
		s.hasher.CompareDummy(pw)
		slog.Warn("login_failed", "user_id", user.ID, "reason", "not_onboarded")
		return nil, ErrInvalidCredentials
	}

	if err := s.hasher.Compare(*user.PasswordHash, pw); err != nil {
		if !errors.Is(err, password.ErrMismatch) {
			return nil, err
		}
		return nil, s.recordFailure(ctx, user)
	}

	// Checked after verification so a locked account costs the same as a wrong password.
	if !user.IsActive {
		slog.Warn("login_failed", "user_id", user.ID, "reason", "inactive")
		return nil, ErrInvalidCredentials
	}
	if user.IsFrozen {
		slog.Warn("login_failed", "user_id", user.ID, "reason", "frozen")
		return nil, ErrInvalidCredentials
	}

	if err := s.store.RecordSuccessfulLogin(ctx, user.ID, s.now()); err != nil {
		return nil, fmt.Errorf("failed to record login: %w", err)
	}

	slog.Info("login_success", "user_id", user.ID, "email", email)
	summary := user.Summary()
	return &summary, nil
}

// recordFailure bumps the counter and freezes the account once the
// post-increment value reaches the limit.
func (s *Service) recordFailure(ctx context.Context, user *models.AdminUser) error {
	now := s.now()
	attempts, err := s.store.IncrementFailedLoginAttempts(ctx, user.ID, now)
	if err != nil {
		return fmt.Errorf("failed to record failed login: %w", err)
	}

	if attempts >= s.maxFailedAttempts {
		if err := s.store.FreezeAdminUser(ctx, user.ID, now); err != nil {
			return fmt.Errorf("failed to freeze account: %w", err)
		}
		slog.Warn("account_frozen", "user_id", user.ID, "failed_attempts", attempts)
	}

	slog.Warn("login_failed", "user_id", user.ID, "reason", "invalid_password", "failed_attempts", attempts)
	return ErrInvalidCredentials
}

// ChangePassword changes the password of a logged-in account that knows its current password.
func (s *Service) ChangePassword(ctx context.Context, userID int64, currentPassword, newPassword string) error {
	user, err := s.store.GetAdminUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidCredentials
		}
		return fmt.Errorf("failed to get user: %w", err)
	}

	if !user.HasPassword() {
		return ErrInvalidCredentials
	}
	if err := s.hasher.Compare(*user.PasswordHash, currentPassword); err != nil {
		if errors.Is(err, password.ErrMismatch) {
			slog.Warn("change_password_failed", "user_id", userID, "reason", "invalid_current_password")
			return ErrInvalidCredentials
		}
		return err
	}

	if currentPassword == newPassword {
		return ErrSamePassword
	}
	if err := s.policy.Check(newPassword, user.Email, user.FirstName, user.LastName); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := s.store.UpdateAdminPassword(ctx, userID, hash, s.now()); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	slog.Info("password_changed", "user_id", userID)
	return nil
}

// Account returns the current state of an account, used to revalidate sessions.
func (s *Service) Account(ctx context.Context, id int64) (*models.AdminUser, error) {
	return s.store.GetAdminUserByID(ctx, id)
}
