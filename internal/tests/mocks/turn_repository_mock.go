package mocks

import (
	"context"

	"codemother/internal/models"
)

type TurnRepositoryMock struct {
	AppendFunc      func(ctx context.Context, turn *models.Turn) error
	AppendBatchFunc func(ctx context.Context, turns []models.Turn) error
	QueryFunc       func(ctx context.Context, appID uint, offset, limit int) ([]models.Turn, error)
	CountFunc       func(ctx context.Context, appID uint) (int64, error)
	ListDisplayFunc func(ctx context.Context, appID uint, beforeSequence int64, limit int) ([]models.Turn, error)
	DeleteByAppFunc func(ctx context.Context, appID uint) error
}

func (m *TurnRepositoryMock) Append(ctx context.Context, turn *models.Turn) error {
	if m.AppendFunc != nil {
		return m.AppendFunc(ctx, turn)
	}
	return nil
}

func (m *TurnRepositoryMock) AppendBatch(ctx context.Context, turns []models.Turn) error {
	if m.AppendBatchFunc != nil {
		return m.AppendBatchFunc(ctx, turns)
	}
	return nil
}

func (m *TurnRepositoryMock) Query(ctx context.Context, appID uint, offset, limit int) ([]models.Turn, error) {
	if m.QueryFunc != nil {
		return m.QueryFunc(ctx, appID, offset, limit)
	}
	return []models.Turn{}, nil
}

func (m *TurnRepositoryMock) Count(ctx context.Context, appID uint) (int64, error) {
	if m.CountFunc != nil {
		return m.CountFunc(ctx, appID)
	}
	return 0, nil
}

func (m *TurnRepositoryMock) ListDisplay(ctx context.Context, appID uint, beforeSequence int64, limit int) ([]models.Turn, error) {
	if m.ListDisplayFunc != nil {
		return m.ListDisplayFunc(ctx, appID, beforeSequence, limit)
	}
	return []models.Turn{}, nil
}

func (m *TurnRepositoryMock) DeleteByApp(ctx context.Context, appID uint) error {
	if m.DeleteByAppFunc != nil {
		return m.DeleteByAppFunc(ctx, appID)
	}
	return nil
}
