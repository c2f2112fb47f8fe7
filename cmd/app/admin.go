// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"codeberg.org/harbourline/intake/internal/config"
	"codeberg.org/harbourline/intake/internal/database"
	"codeberg.org/harbourline/intake/internal/models"
	"codeberg.org/harbourline/intake/internal/repository"
	"codeberg.org/harbourline/intake/internal/services/email"
	"codeberg.org/harbourline/intake/internal/services/onboarding"
	"codeberg.org/harbourline/intake/internal/services/password"
	"github.com/urfave/cli/v3"
	"github.com/vinovest/sqlx"
)

func createAdmin(ctx context.Context, cmd *cli.Command) error {
	cfg := config.NewFromCLI(cmd)

	db, err := database.Open(cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer closeDB(db)

	return bootstrapAdmin(ctx, os.Stdout, cfg, repository.New(db), onboarding.CreateUserParams{
		FirstName: cmd.String("first-name"),
		LastName:  cmd.String("last-name"),
		Email:     cmd.String("email"),
		Role:      models.RoleAdministrator,
	})
}

// bootstrapAdmin creates the account and writes its onboarding link to w.
func bootstrapAdmin(ctx context.Context, w io.Writer, cfg *config.Config, repo *repository.Repository, p onboarding.CreateUserParams) error {
	svc := onboarding.NewService(repo, &cfg.Onboarding, password.NewHasher(cfg.Login.BcryptCost), password.DefaultPolicy())

	inv, err := svc.CreateUser(ctx, p)
	if err != nil {
		return fmt.Errorf("failed to create administrator: %w", err)
	}

	links := email.Links{BaseURL: cfg.Server.BaseURL}
	_, err = fmt.Fprintf(w, "Created administrator %s (id %d)\nOnboarding link (valid until %s):\n%s\n",
		inv.Account.Email, inv.Account.ID, inv.ExpiresAt.Format("2006-01-02 15:04 MST"), links.Onboarding(inv.Token))
	return err
}

func migrateDown(_ context.Context, cmd *cli.Command) error {
	return withDB(cmd, database.MigrateDown)
}

func migrateReset(_ context.Context, cmd *cli.Command) error {
	return withDB(cmd, database.MigrateReset)
}

func withDB(cmd *cli.Command, fn func(*sqlx.DB) error) error {
	cfg := config.NewFromCLI(cmd)

	db, err := database.Open(cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer closeDB(db)

	if err := fn(db); err != nil {
		return err
	}
	slog.Info("migrations rolled back", "database", database.DriverFor(cfg.Database.URL))
	return nil
}

func closeDB(db *sqlx.DB) {
	if err := db.Close(); err != nil {
		slog.Error("failed to close database", "error", err)
	}
}
