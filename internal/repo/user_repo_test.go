package repo

import (
	"context"
	"testing"

	"github.com/bookstore/services/storefront/internal/db"
	"github.com/bookstore/services/storefront/internal/db/dbtest"
	"github.com/bookstore/services/storefront/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUserRepo(t *testing.T) (*UserRepository, *db.DB) {
	database := dbtest.Open(t)
	return NewUserRepository(database, logger.NewTestLogger("test")), database
}

func testUser(username, email string) *db.User {
	return &db.User{
		Username:     username,
		Email:        email,
		PasswordHash: "hash",
		Role:         db.RoleUser,
	}
}

func TestCreateUserRejectsTakenUsernameOrEmail(t *testing.T) {
	repo, _ := newUserRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.CreateUser(ctx, testUser("alice", "alice@example.com")))

	assert.ErrorIs(t, repo.CreateUser(ctx, testUser("alice", "other@example.com")), ErrUserAlreadyExists)
	assert.ErrorIs(t, repo.CreateUser(ctx, testUser("bob", "alice@example.com")), ErrUserAlreadyExists)

	users, err := repo.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestFindByLogin(t *testing.T) {
	repo, _ := newUserRepo(t)
	ctx := context.Background()

	u := testUser("alice", "alice@example.com")
	require.NoError(t, repo.CreateUser(ctx, u))

	byName, err := repo.FindByLogin(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byName.ID)

	byEmail, err := repo.FindByLogin(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)

	_, err = repo.FindByLogin(ctx, "nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUpdateProfile(t *testing.T) {
	repo, _ := newUserRepo(t)
	ctx := context.Background()

	alice := testUser("alice", "alice@example.com")
	bob := testUser("bob", "bob@example.com")
	require.NoError(t, repo.CreateUser(ctx, alice))
	require.NoError(t, repo.CreateUser(ctx, bob))

	updated, err := repo.UpdateProfile(ctx, alice.ID, ProfileUpdate{
		Email:         "alice@new.example.com",
		ProfilePicURL: "https://img.example.com/a.png",
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", updated.Username)
	assert.Equal(t, "alice@new.example.com", updated.Email)
	assert.Equal(t, "https://img.example.com/a.png", updated.ProfilePicURL)

	_, err = repo.UpdateProfile(ctx, alice.ID, ProfileUpdate{Username: "bob"})
	assert.ErrorIs(t, err, ErrUserAlreadyExists)

	// Re-submitting one's own username is not a conflict.
	_, err = repo.UpdateProfile(ctx, alice.ID, ProfileUpdate{Username: "alice"})
	assert.NoError(t, err)

	_, err = repo.UpdateProfile(ctx, 999, ProfileUpdate{Username: "ghost"})
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestDeleteUser(t *testing.T) {
	repo, _ := newUserRepo(t)
	ctx := context.Background()

	u := testUser("alice", "alice@example.com")
	require.NoError(t, repo.CreateUser(ctx, u))

	require.NoError(t, repo.DeleteUser(ctx, u.ID))

	_, err := repo.GetUser(ctx, u.ID)
	assert.ErrorIs(t, err, ErrUserNotFound)

	assert.ErrorIs(t, repo.DeleteUser(ctx, u.ID), ErrUserNotFound)
}
