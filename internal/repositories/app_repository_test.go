package repositories

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codemother/internal/apperrors"
	"codemother/internal/models"
)

func TestAppRepository_CRUD(t *testing.T) {
	ctx := context.Background()
	repo := NewAppRepository(openTestDB(t))

	app := &models.App{Name: "Portfolio", InitPrompt: "portfolio site", CodeGenType: models.GenerationHTML, UserID: 4, Version: 1}
	require.NoError(t, repo.Create(ctx, app))
	require.NotZero(t, app.ID)

	got, err := repo.GetByID(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, "Portfolio", got.Name)

	got.DeployKey = "ab12cd"
	require.NoError(t, repo.Update(ctx, got))
	exists, err := repo.ExistsDeployKey(ctx, "ab12cd")
	require.NoError(t, err)
	assert.True(t, exists)

	list, err := repo.ListByUser(ctx, 4, 10, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, repo.Delete(ctx, app.ID))
	_, err = repo.GetByID(ctx, app.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
