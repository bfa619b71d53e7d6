package repositories

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"codemother/internal/models"
)

// TurnRepository is the append-only history store keyed by (appID, sequence).
// Query and Count only see memory-eligible turns; ListDisplay serves the conversation log.
type TurnRepository interface {
	Append(ctx context.Context, turn *models.Turn) error
	AppendBatch(ctx context.Context, turns []models.Turn) error
	Query(ctx context.Context, appID uint, offset, limit int) ([]models.Turn, error)
	Count(ctx context.Context, appID uint) (int64, error)
	ListDisplay(ctx context.Context, appID uint, beforeSequence int64, limit int) ([]models.Turn, error)
	DeleteByApp(ctx context.Context, appID uint) error
}

type turnRepository struct {
	db *gorm.DB
}

func NewTurnRepository(db *gorm.DB) TurnRepository {
	return &turnRepository{db: db}
}

func (r *turnRepository) Append(ctx context.Context, turn *models.Turn) error {
	if turn == nil {
		return fmt.Errorf("turn is required")
	}
	batch := []models.Turn{*turn}
	if err := r.AppendBatch(ctx, batch); err != nil {
		return err
	}
	*turn = batch[0]
	return nil
}

// AppendBatch writes every turn in one transaction; sequences are assigned contiguously
// per app in slice order. Nothing is written if any row fails.
func (r *turnRepository) AppendBatch(ctx context.Context, turns []models.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	for i := range turns {
		if turns[i].AppID == 0 {
			return fmt.Errorf("turn %d: appID is required", i)
		}
		if turns[i].Kind == "" {
			return fmt.Errorf("turn %d: kind is required", i)
		}
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		next := make(map[uint]int64)
		now := time.Now().UTC()
		for i := range turns {
			t := &turns[i]
			seq, ok := next[t.AppID]
			if !ok {
				var maxSeq int64
				if err := tx.Model(&models.Turn{}).
					Where("app_id = ?", t.AppID).
					Select("COALESCE(MAX(sequence), 0)").
					Scan(&maxSeq).Error; err != nil {
					return fmt.Errorf("sequence lookup: %w", err)
				}
				seq = maxSeq
			}
			seq++
			next[t.AppID] = seq

			t.ID = 0
			t.Sequence = seq
			if t.Scope == "" {
				t.Scope = models.ScopeShared
			}
			if t.CreatedAt.IsZero() {
				t.CreatedAt = now
			}
			if err := tx.Create(t).Error; err != nil {
				return fmt.Errorf("create turn: %w", err)
			}
		}
		return nil
	})
}

func (r *turnRepository) Query(ctx context.Context, appID uint, offset, limit int) ([]models.Turn, error) {
	var turns []models.Turn
	q := r.db.WithContext(ctx).
		Where("app_id = ? AND scope IN ?", appID, models.MemoryScopes).
		Order("sequence DESC")
	if offset > 0 {
		q = q.Offset(offset)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&turns).Error; err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	return turns, nil
}

func (r *turnRepository) Count(ctx context.Context, appID uint) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.Turn{}).
		Where("app_id = ? AND scope IN ?", appID, models.MemoryScopes).
		Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count turns: %w", err)
	}
	return n, nil
}

// ListDisplay pages the conversation log backwards from beforeSequence (0 = newest).
func (r *turnRepository) ListDisplay(ctx context.Context, appID uint, beforeSequence int64, limit int) ([]models.Turn, error) {
	var turns []models.Turn
	q := r.db.WithContext(ctx).
		Where("app_id = ? AND scope IN ?", appID, models.DisplayScopes)
	if beforeSequence > 0 {
		q = q.Where("sequence < ?", beforeSequence)
	}
	q = q.Order("sequence DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&turns).Error; err != nil {
		return nil, fmt.Errorf("list display turns: %w", err)
	}
	return turns, nil
}

func (r *turnRepository) DeleteByApp(ctx context.Context, appID uint) error {
	if err := r.db.WithContext(ctx).Where("app_id = ?", appID).Delete(&models.Turn{}).Error; err != nil {
		return fmt.Errorf("delete turns: %w", err)
	}
	return nil
}
