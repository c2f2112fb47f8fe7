// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package onboarding creates admin accounts and lets them set their first password.
package onboarding

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
	ErrEmailExists      = errors.New("an account with this email already exists")
	ErrInvalidToken     = errors.New("invalid or expired onboarding token")
	ErrAlreadyOnboarded = errors.New("account has already completed onboarding")
)

// Store is the slice of the account store onboarding needs.
type Store interface {
	CreateAdminUser(ctx context.Context, user *models.AdminUser) error
	GetAdminUserByID(ctx context.Context, id int64) (*models.AdminUser, error)
	GetAdminUserByOnboardingToken(ctx context.Context, tokenHash string, now time.Time) (*models.AdminUser, error)
	CompleteOnboarding(ctx context.Context, tokenHash, passwordHash string, now time.Time) (int64, error)
	SetOnboardingToken(ctx context.Context, id int64, tokenHash string, expiresAt, now time.Time) error
}

// CreateUserParams holds the fields of a new admin account.
type CreateUserParams struct {
	FirstName string
	LastName  string
	Email     string
	Role      models.Role
}

// Invitation is a freshly issued onboarding token. Token is the raw value and
// is only available here.
type Invitation struct {
	Account   *models.AdminUser
	Token     string
	ExpiresAt time.Time
}

type Service struct {
	store  Store
	hasher *password.Hasher
	policy *password.Policy
	ttl    time.Duration
	now    func() time.Time
}

func NewService(store Store, cfg *config.OnboardingConfig, hasher *password.Hasher, policy *password.Policy) *Service {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = config.DefaultOnboardingTTL
	}
	return &Service{
		store:  store,
		hasher: hasher,
		policy: policy,
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CreateUser stores an inactive account without password and returns its onboarding token.
func (s *Service) CreateUser(ctx context.Context, p CreateUserParams) (*Invitation, error) {
	role := p.Role
	if role == "" {
		role = models.RoleUser
	}

	raw, hash, err := token.GenerateWithHash()
	if err != nil {
		return nil, err
	}

	now := s.now()
	expiresAt := now.Add(s.ttl)
	user := &models.AdminUser{
		Email:                 models.NormalizeEmail(p.Email),
		FirstName:             p.FirstName,
		LastName:              p.LastName,
		Role:                  role,
		OnboardingToken:       &hash,
		OnboardingTokenExpiry: &expiresAt,
		CreatedAt:             now,
	}

	if err := s.store.CreateAdminUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("admin_user_created", "user_id", user.ID, "email", user.Email, "role", user.Role)
	return &Invitation{Account: user, Token: raw, ExpiresAt: expiresAt}, nil
}

// Verify checks an onboarding token without consuming it.
func (s *Service) Verify(ctx context.Context, rawToken string) (*models.AccountSummary, error) {
	user, err := s.lookup(ctx, rawToken)
	if err != nil {
		return nil, err
	}
	summary := user.Summary()
	return &summary, nil
}

// Complete sets the first password and activates the account. The token is
// cleared in the same conditional update, so it works exactly once.
func (s *Service) Complete(ctx context.Context, rawToken, newPassword string) (*models.AccountSummary, error) {
	user, err := s.lookup(ctx, rawToken)
	if err != nil {
		return nil, err
	}

	if err := s.policy.Check(newPassword, user.Email, user.FirstName, user.LastName); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return nil, err
	}

	if _, err := s.store.CompleteOnboarding(ctx, token.Hash(rawToken), hash, s.now()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to complete onboarding: %w", err)
	}

	slog.Info("onboarding_completed", "user_id", user.ID)
	summary := user.Summary()
	return &summary, nil
}

// Resend replaces the onboarding token of an account that has not onboarded yet.
func (s *Service) Resend(ctx context.Context, userID int64) (*Invitation, error) {
	user, err := s.store.GetAdminUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.HasPassword() {
		return nil, ErrAlreadyOnboarded
	}

	raw, hash, err := token.GenerateWithHash()
	if err != nil {
		return nil, err
	}

	now := s.now()
	expiresAt := now.Add(s.ttl)
	if err := s.store.SetOnboardingToken(ctx, user.ID, hash, expiresAt, now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAlreadyOnboarded
		}
		return nil, fmt.Errorf("failed to store onboarding token: %w", err)
	}

	user.OnboardingToken = &hash
	user.OnboardingTokenExpiry = &expiresAt
	slog.Info("onboarding_token_reissued", "user_id", user.ID)
	return &Invitation{Account: user, Token: raw, ExpiresAt: expiresAt}, nil
}

func (s *Service) lookup(ctx context.Context, rawToken string) (*models.AdminUser, error) {
	if rawToken == "" {
		return nil, ErrInvalidToken
	}
	user, err := s.store.GetAdminUserByOnboardingToken(ctx, token.Hash(rawToken), s.now())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to look up onboarding token: %w", err)
	}
	return user, nil
}
