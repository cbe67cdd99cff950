package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forensic-testing/fts-intake/pkg/apperrors"
	"github.com/forensic-testing/fts-intake/pkg/models"
)

func newUser(email, role string, at time.Time) *models.User {
	return &models.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: "$2a$04$hash",
		Role:         role,
		IsActive:     true,
		CreatedAt:    at,
		UpdatedAt:    at,
	}
}

func TestSQLiteUserRepository_CreateAndLookup(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteUserRepository(newSQLiteDB(t))

	u := newUser("admin@forensic-testing.co.uk", models.RoleAdmin, baseTime)
	require.NoError(t, repo.Create(ctx, u))

	byID, err := repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Email, byID.Email)
	assert.Equal(t, models.RoleAdmin, byID.Role)
	assert.True(t, byID.IsActive)
	assert.Equal(t, "$2a$04$hash", byID.PasswordHash)

	byEmail, err := repo.GetByEmail(ctx, "  ADMIN@forensic-testing.co.uk ")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)

	_, err = repo.GetByEmail(ctx, "nobody@forensic-testing.co.uk")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestSQLiteUserRepository_DuplicateEmail(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteUserRepository(newSQLiteDB(t))

	require.NoError(t, repo.Create(ctx, newUser("a@forensic-testing.co.uk", models.RoleUser, baseTime)))
	err := repo.Create(ctx, newUser("a@forensic-testing.co.uk", models.RoleUser, baseTime))

	assert.True(t, errors.Is(err, apperrors.ErrConflict))
	assert.Equal(t, "email_taken", apperrors.CodeOf(err, ""))
}

func TestSQLiteUserRepository_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteUserRepository(newSQLiteDB(t))

	older := newUser("old@forensic-testing.co.uk", models.RoleUser, baseTime)
	newer := newUser("new@forensic-testing.co.uk", models.RoleUser, baseTime.Add(time.Hour))
	require.NoError(t, repo.Create(ctx, older))
	require.NoError(t, repo.Create(ctx, newer))

	users, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, newer.ID, users[0].ID)
	assert.Equal(t, older.ID, users[1].ID)
}

func TestSQLiteUserRepository_UpdatesAndDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteUserRepository(newSQLiteDB(t))

	u := newUser("u@forensic-testing.co.uk", models.RoleUser, baseTime)
	require.NoError(t, repo.Create(ctx, u))

	later := baseTime.Add(time.Hour)
	require.NoError(t, repo.UpdateRole(ctx, u.ID, models.RoleAdmin, later))
	require.NoError(t, repo.UpdatePassword(ctx, u.ID, "$2a$04$other", later))

	got, err := repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, got.Role)
	assert.Equal(t, "$2a$04$other", got.PasswordHash)
	assert.True(t, later.Equal(got.UpdatedAt))

	require.NoError(t, repo.Delete(ctx, u.ID))
	assert.True(t, errors.Is(repo.Delete(ctx, u.ID), apperrors.ErrNotFound))
	assert.True(t, errors.Is(repo.UpdateRole(ctx, u.ID, models.RoleUser, later), apperrors.ErrNotFound))
	assert.True(t, errors.Is(repo.UpdatePassword(ctx, u.ID, "x", later), apperrors.ErrNotFound))
}
