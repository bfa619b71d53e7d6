package mocks

import (
	"context"

	"codemother/internal/models"
)

type AppRepositoryMock struct {
	CreateFunc          func(ctx context.Context, app *models.App) error
	GetByIDFunc         func(ctx context.Context, id uint) (*models.App, error)
	ListByUserFunc      func(ctx context.Context, userID uint, limit, offset int) ([]models.App, error)
	UpdateFunc          func(ctx context.Context, app *models.App) error
	DeleteFunc          func(ctx context.Context, id uint) error
	ExistsDeployKeyFunc func(ctx context.Context, key string) (bool, error)
}

func (m *AppRepositoryMock) Create(ctx context.Context, app *models.App) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, app)
	}
	return nil
}

func (m *AppRepositoryMock) GetByID(ctx context.Context, id uint) (*models.App, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *AppRepositoryMock) ListByUser(ctx context.Context, userID uint, limit, offset int) ([]models.App, error) {
	if m.ListByUserFunc != nil {
		return m.ListByUserFunc(ctx, userID, limit, offset)
	}
	return []models.App{}, nil
}

func (m *AppRepositoryMock) Update(ctx context.Context, app *models.App) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, app)
	}
	return nil
}

func (m *AppRepositoryMock) Delete(ctx context.Context, id uint) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return nil
}

func (m *AppRepositoryMock) ExistsDeployKey(ctx context.Context, key string) (bool, error) {
	if m.ExistsDeployKeyFunc != nil {
		return m.ExistsDeployKeyFunc(ctx, key)
	}
	return false, nil
}
