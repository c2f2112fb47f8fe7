// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"codeberg.org/harbourline/intake/internal/config"
	"codeberg.org/harbourline/intake/internal/models"
	"codeberg.org/harbourline/intake/internal/services/onboarding"
	"codeberg.org/harbourline/intake/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestBootstrapAdmin(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	cfg := &config.Config{
		Server:     config.ServerConfig{BaseURL: "https://intake.example.com"},
		Login:      config.LoginConfig{BcryptCost: bcrypt.MinCost},
		Onboarding: config.OnboardingConfig{TokenTTL: config.DefaultOnboardingTTL},
	}
	var out bytes.Buffer

	err := bootstrapAdmin(context.Background(), &out, cfg, repo, onboarding.CreateUserParams{
		Email: "Root@Example.com",
		Role:  models.RoleAdministrator,
	})

	require.NoError(t, err)
	assert.Contains(t, out.String(), "root@example.com")
	assert.Contains(t, out.String(), "https://intake.example.com/admin/onboarding?token=")

	user, err := repo.GetAdminUserByEmail(context.Background(), "root@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdministrator, user.Role)
	assert.False(t, user.IsActive)

	err = bootstrapAdmin(context.Background(), &out, cfg, repo, onboarding.CreateUserParams{Email: "root@example.com"})
	assert.ErrorIs(t, err, onboarding.ErrEmailExists)
}

func TestNewCommand(t *testing.T) {
	cmd := newCommand()

	var names []string
	for _, sub := range cmd.Commands {
		names = append(names, sub.Name)
	}

	assert.Equal(t, "serve,create-admin,migrate", strings.Join(names, ","))
	assert.NotNil(t, cmd.Action)
}
