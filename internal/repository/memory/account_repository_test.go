package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otc-service/internal/models"
	"otc-service/internal/repository"
)

func TestAccountRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewAccountRepository()

	account := &models.Account{Name: "Bob", Email: "bob@example.com", Role: models.RoleStudent, PasswordHash: "h1"}
	require.NoError(t, repo.Create(ctx, account))
	assert.NotEmpty(t, account.ID)
	assert.False(t, account.CreatedAt.IsZero())

	err := repo.Create(ctx, &models.Account{Email: "bob@example.com"})
	assert.ErrorIs(t, err, repository.ErrAccountExists)

	got, err := repo.GetByEmail(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, account.ID, got.ID)
	assert.Equal(t, "h1", got.PasswordHash)

	require.NoError(t, repo.UpdatePassword(ctx, "bob@example.com", "h2"))
	got, err = repo.GetByEmail(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, "h2", got.PasswordHash)

	_, err = repo.GetByEmail(ctx, "carol@example.com")
	assert.ErrorIs(t, err, repository.ErrAccountMissing)
	assert.ErrorIs(t, repo.UpdatePassword(ctx, "carol@example.com", "h"), repository.ErrAccountMissing)
}
