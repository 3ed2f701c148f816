// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository_test

import (
	"context"
	"testing"
	"time"

	"codeberg.org/oliverandrich/careerhub/internal/models"
	"codeberg.org/oliverandrich/careerhub/internal/repository"
	"codeberg.org/oliverandrich/careerhub/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newToken(identifier, hash string, expiresAt time.Time) *models.VerificationToken {
	return &models.VerificationToken{
		Identifier: identifier,
		TokenHash:  hash,
		ExpiresAt:  expiresAt,
		CreatedAt:  expiresAt.Add(-time.Hour),
	}
}

func TestUpsertVerificationToken(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	expiresAt := time.Now().Add(time.Hour)

	require.NoError(t, repo.UpsertVerificationToken(ctx, newToken("a@b.com", "hash1", expiresAt)))
	require.NoError(t, repo.UpsertVerificationToken(ctx, newToken("a@b.com", "hash2", expiresAt)))

	token, err := repo.GetVerificationToken(ctx, "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, "hash2", token.TokenHash)
	assert.WithinDuration(t, expiresAt, token.ExpiresAt, time.Second)
}

func TestConsumeVerificationToken(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	require.NoError(t, repo.UpsertVerificationToken(ctx, newToken("a@b.com", "hash1", time.Now().Add(time.Hour))))

	ok, err := repo.ConsumeVerificationToken(ctx, "a@b.com", "other")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.ConsumeVerificationToken(ctx, "a@b.com", "hash1")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = repo.GetVerificationToken(ctx, "a@b.com")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestDeleteExpiredVerificationTokens(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, repo.UpsertVerificationToken(ctx, newToken("old@b.com", "h1", now.Add(-time.Minute))))
	require.NoError(t, repo.UpsertVerificationToken(ctx, newToken("new@b.com", "h2", now.Add(time.Hour))))

	n, err := repo.DeleteExpiredVerificationTokens(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = repo.GetVerificationToken(ctx, "new@b.com")
	require.NoError(t, err)
}

func TestRedeemVerificationToken(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	user := testutil.NewTestUser(t, repo, "a@b.com", true)
	require.NoError(t, repo.UpsertVerificationToken(ctx, newToken("a@b.com", "h1", time.Now().Add(time.Hour))))

	ok, err := repo.RedeemVerificationToken(ctx, "a@b.com", "other", "new-hash")
	require.NoError(t, err)
	assert.False(t, ok)
	stored, err := repo.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.PasswordHash, stored.PasswordHash, "wrong hash leaves the password alone")

	ok, err = repo.RedeemVerificationToken(ctx, "a@b.com", "h1", "new-hash")
	require.NoError(t, err)
	assert.True(t, ok)

	stored, err = repo.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", stored.PasswordHash)
	_, err = repo.GetVerificationToken(ctx, "a@b.com")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	ok, err = repo.RedeemVerificationToken(ctx, "a@b.com", "h1", "third-hash")
	require.NoError(t, err)
	assert.False(t, ok, "a token can only be redeemed once")
}

func TestRedeemVerificationToken_UnknownUserKeepsToken(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	require.NoError(t, repo.UpsertVerificationToken(ctx, newToken("ghost@b.com", "h1", time.Now().Add(time.Hour))))

	ok, err := repo.RedeemVerificationToken(ctx, "ghost@b.com", "h1", "new-hash")

	require.ErrorIs(t, err, repository.ErrNotFound)
	assert.False(t, ok)
	_, err = repo.GetVerificationToken(ctx, "ghost@b.com")
	assert.NoError(t, err, "rolled back")
}
