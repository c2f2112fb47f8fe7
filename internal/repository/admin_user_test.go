// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"codeberg.org/harbourline/intake/internal/models"
	"codeberg.org/harbourline/intake/internal/repository"
	"codeberg.org/harbourline/intake/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAdminUser(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	user := &models.AdminUser{Email: "  Jane@Example.COM ", FirstName: "Jane", LastName: "Doe", Role: models.RoleAdministrator}
	err := repo.CreateAdminUser(ctx, user)

	require.NoError(t, err)
	assert.NotZero(t, user.ID)
	assert.Equal(t, "jane@example.com", user.Email)

	stored, err := repo.GetAdminUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", stored.Email)
	assert.Nil(t, stored.PasswordHash)
	assert.False(t, stored.IsActive)
	assert.False(t, stored.IsFrozen)
	assert.Zero(t, stored.FailedLoginAttempts)
}

func TestCreateAdminUser_DuplicateEmail(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	require.NoError(t, repo.CreateAdminUser(ctx, &models.AdminUser{Email: "a@b.com", Role: models.RoleUser}))

	err := repo.CreateAdminUser(ctx, &models.AdminUser{Email: "A@B.com", Role: models.RoleUser})

	assert.ErrorIs(t, err, repository.ErrDuplicate)
}

func TestGetAdminUserByEmail(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	created := testutil.NewTestAccount(t, repo, "a@b.com", models.RoleUser)

	found, err := repo.GetAdminUserByEmail(ctx, " A@B.COM")

	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	require.NotNil(t, found.PasswordHash)
}

func TestGetAdminUserByEmail_NotFound(t *testing.T) {
	_, repo := testutil.NewTestDB(t)

	_, err := repo.GetAdminUserByEmail(context.Background(), "missing@example.com")

	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestGetAdminUserByOnboardingToken(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	pending := testutil.NewPendingAccount(t, repo, "new@example.com", "valid-hash", now.Add(time.Hour))
	testutil.NewPendingAccount(t, repo, "old@example.com", "expired-hash", now.Add(-time.Hour))

	found, err := repo.GetAdminUserByOnboardingToken(ctx, "valid-hash", now)
	require.NoError(t, err)
	assert.Equal(t, pending.ID, found.ID)

	_, err = repo.GetAdminUserByOnboardingToken(ctx, "expired-hash", now)
	require.ErrorIs(t, err, repository.ErrNotFound)

	_, err = repo.GetAdminUserByOnboardingToken(ctx, "unknown", now)
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestListAdminUsers(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	testutil.NewTestAccount(t, repo, "one@example.com", models.RoleUser)
	testutil.NewTestAccount(t, repo, "two@example.com", models.RoleAdministrator)

	users, err := repo.ListAdminUsers(context.Background())

	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "two@example.com", users[0].Email)
}

func TestIncrementFailedLoginAttempts(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	user := testutil.NewTestAccount(t, repo, "a@b.com", models.RoleUser)
	now := time.Now().UTC()

	for want := 1; want <= 3; want++ {
		got, err := repo.IncrementFailedLoginAttempts(ctx, user.ID, now)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestIncrementFailedLoginAttempts_Concurrent(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	user := testutil.NewTestAccount(t, repo, "a@b.com", models.RoleUser)
	now := time.Now().UTC()

	const n = 10
	var wg sync.WaitGroup
	results := make(chan int, n)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := repo.IncrementFailedLoginAttempts(ctx, user.ID, now)
			assert.NoError(t, err)
			results <- got
		}()
	}
	wg.Wait()
	close(results)

	seen := map[int]bool{}
	for v := range results {
		seen[v] = true
	}
	assert.Len(t, seen, n, "every increment must observe a distinct value")
	assert.Equal(t, n, testutil.GetAccount(t, repo, user.ID).FailedLoginAttempts)
}

func TestIncrementFailedLoginAttempts_NotFound(t *testing.T) {
	_, repo := testutil.NewTestDB(t)

	_, err := repo.IncrementFailedLoginAttempts(context.Background(), 999, time.Now().UTC())

	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestFreezeAndUnfreezeAdminUser(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	user := testutil.NewTestAccount(t, repo, "a@b.com", models.RoleUser)
	now := time.Now().UTC()

	_, err := repo.IncrementFailedLoginAttempts(ctx, user.ID, now)
	require.NoError(t, err)
	require.NoError(t, repo.FreezeAdminUser(ctx, user.ID, now))

	frozen := testutil.GetAccount(t, repo, user.ID)
	assert.True(t, frozen.IsFrozen)
	require.NotNil(t, frozen.FrozenAt)
	assert.WithinDuration(t, now, *frozen.FrozenAt, time.Second)

	require.NoError(t, repo.UnfreezeAdminUser(ctx, user.ID, now))

	unfrozen := testutil.GetAccount(t, repo, user.ID)
	assert.False(t, unfrozen.IsFrozen)
	assert.Nil(t, unfrozen.FrozenAt)
	assert.Zero(t, unfrozen.FailedLoginAttempts)
}

func TestUnfreezeAdminUser_NotFound(t *testing.T) {
	_, repo := testutil.NewTestDB(t)

	err := repo.UnfreezeAdminUser(context.Background(), 999, time.Now().UTC())

	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestRecordSuccessfulLogin(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	user := testutil.NewTestAccount(t, repo, "a@b.com", models.RoleUser)
	now := time.Now().UTC()

	_, err := repo.IncrementFailedLoginAttempts(ctx, user.ID, now)
	require.NoError(t, err)
	require.NoError(t, repo.FreezeAdminUser(ctx, user.ID, now))

	require.NoError(t, repo.RecordSuccessfulLogin(ctx, user.ID, now))

	stored := testutil.GetAccount(t, repo, user.ID)
	assert.Zero(t, stored.FailedLoginAttempts)
	assert.False(t, stored.IsFrozen)
	assert.Nil(t, stored.FrozenAt)
	require.NotNil(t, stored.LastLoginAt)
	assert.WithinDuration(t, now, *stored.LastLoginAt, time.Second)
}

func TestUpdateAdminPassword(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	user := testutil.NewTestAccount(t, repo, "a@b.com", models.RoleUser)

	require.NoError(t, repo.UpdateAdminPassword(ctx, user.ID, "new-hash", time.Now().UTC()))

	stored := testutil.GetAccount(t, repo, user.ID)
	require.NotNil(t, stored.PasswordHash)
	assert.Equal(t, "new-hash", *stored.PasswordHash)
}

func TestCompleteOnboarding(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()
	pending := testutil.NewPendingAccount(t, repo, "new@example.com", "token-hash", now.Add(time.Hour))

	id, err := repo.CompleteOnboarding(ctx, "token-hash", "pw-hash", now)

	require.NoError(t, err)
	assert.Equal(t, pending.ID, id)

	stored := testutil.GetAccount(t, repo, pending.ID)
	assert.True(t, stored.IsActive)
	require.NotNil(t, stored.PasswordHash)
	assert.Equal(t, "pw-hash", *stored.PasswordHash)
	assert.Nil(t, stored.OnboardingToken)
	assert.Nil(t, stored.OnboardingTokenExpiry)

	_, err = repo.CompleteOnboarding(ctx, "token-hash", "other", now)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestCompleteOnboarding_Expired(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	now := time.Now().UTC()
	testutil.NewPendingAccount(t, repo, "new@example.com", "token-hash", now.Add(-time.Minute))

	_, err := repo.CompleteOnboarding(context.Background(), "token-hash", "pw-hash", now)

	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSetOnboardingToken(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()
	pending := testutil.NewPendingAccount(t, repo, "new@example.com", "old-hash", now.Add(-time.Hour))
	active := testutil.NewTestAccount(t, repo, "done@example.com", models.RoleUser)

	require.NoError(t, repo.SetOnboardingToken(ctx, pending.ID, "new-hash", now.Add(time.Hour), now))

	found, err := repo.GetAdminUserByOnboardingToken(ctx, "new-hash", now)
	require.NoError(t, err)
	assert.Equal(t, pending.ID, found.ID)

	err = repo.SetOnboardingToken(ctx, active.ID, "x", now.Add(time.Hour), now)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSetAdminUserActive(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	user := testutil.NewTestAccount(t, repo, "a@b.com", models.RoleUser)

	require.NoError(t, repo.SetAdminUserActive(ctx, user.ID, false, time.Now().UTC()))
	assert.False(t, testutil.GetAccount(t, repo, user.ID).IsActive)

	require.NoError(t, repo.SetAdminUserActive(ctx, user.ID, true, time.Now().UTC()))
	assert.True(t, testutil.GetAccount(t, repo, user.ID).IsActive)

	assert.ErrorIs(t, repo.SetAdminUserActive(ctx, 999, true, time.Now().UTC()), repository.ErrNotFound)
}
