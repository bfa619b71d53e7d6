package repositories

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"codemother/internal/apperrors"
	"codemother/internal/models"
)

type AppRepository interface {
	Create(ctx context.Context, app *models.App) error
	GetByID(ctx context.Context, id uint) (*models.App, error)
	ListByUser(ctx context.Context, userID uint, limit, offset int) ([]models.App, error)
	Update(ctx context.Context, app *models.App) error
	Delete(ctx context.Context, id uint) error
	ExistsDeployKey(ctx context.Context, key string) (bool, error)
}

type appRepository struct {
	db *gorm.DB
}

func NewAppRepository(db *gorm.DB) AppRepository {
	return &appRepository{db: db}
}

func (r *appRepository) Create(ctx context.Context, app *models.App) error {
	return r.db.WithContext(ctx).Create(app).Error
}

func (r *appRepository) GetByID(ctx context.Context, id uint) (*models.App, error) {
	var app models.App
	if err := r.db.WithContext(ctx).First(&app, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound(fmt.Sprintf("app %d", id))
		}
		return nil, err
	}
	return &app, nil
}

func (r *appRepository) ListByUser(ctx context.Context, userID uint, limit, offset int) ([]models.App, error) {
	var apps []models.App
	q := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	if err := q.Find(&apps).Error; err != nil {
		return nil, err
	}
	return apps, nil
}

func (r *appRepository) Update(ctx context.Context, app *models.App) error {
	return r.db.WithContext(ctx).Save(app).Error
}

func (r *appRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.App{}, id).Error
}

func (r *appRepository) ExistsDeployKey(ctx context.Context, key string) (bool, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.App{}).Where("deploy_key = ?", key).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}
