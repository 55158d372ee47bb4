package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/worksheet-grader/internal/models"
)

// WorksheetResultRepository persists graded worksheets.
type WorksheetResultRepository interface {
	Create(ctx context.Context, result *models.WorksheetResult) error
	FindByRunID(ctx context.Context, runID string) (models.WorksheetResult, error)
	ListByToken(ctx context.Context, tokenNo string, limit, offset int) ([]models.WorksheetResult, int64, error)
}

type worksheetResultRepository struct {
	db *gorm.DB
}

// NewWorksheetResultRepository constructs a repository backed by GORM.
func NewWorksheetResultRepository(db *gorm.DB) WorksheetResultRepository {
	return &worksheetResultRepository{db: db}
}

func (r *worksheetResultRepository) Create(ctx context.Context, result *models.WorksheetResult) error {
	return r.db.WithContext(ctx).Create(result).Error
}

func (r *worksheetResultRepository) FindByRunID(ctx context.Context, runID string) (models.WorksheetResult, error) {
	var result models.WorksheetResult
	if err := r.db.WithContext(ctx).Where("run_id = ?", runID).First(&result).Error; err != nil {
		return models.WorksheetResult{}, err
	}
	return result, nil
}

func (r *worksheetResultRepository) ListByToken(ctx context.Context, tokenNo string, limit, offset int) ([]models.WorksheetResult, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	query := r.db.WithContext(ctx).Model(&models.WorksheetResult{}).Where("token_no = ?", tokenNo)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var results []models.WorksheetResult
	if err := query.
		Order("created_at DESC").
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&results).Error; err != nil {
		return nil, 0, err
	}

	return results, total, nil
}
