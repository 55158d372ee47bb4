package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/worksheet-grader/internal/models"
)

// ErrorLogFilter narrows error log queries.
type ErrorLogFilter struct {
	Since *time.Time
	Stage string
}

// ErrorLogRepository stores failed grading runs.
type ErrorLogRepository interface {
	Create(ctx context.Context, entry *models.ErrorLog) error
	List(ctx context.Context, filter ErrorLogFilter) ([]models.ErrorLog, error)
}

type errorLogRepository struct {
	db *gorm.DB
}

// NewErrorLogRepository constructs a repository backed by GORM.
func NewErrorLogRepository(db *gorm.DB) ErrorLogRepository {
	return &errorLogRepository{db: db}
}

func (r *errorLogRepository) Create(ctx context.Context, entry *models.ErrorLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *errorLogRepository) List(ctx context.Context, filter ErrorLogFilter) ([]models.ErrorLog, error) {
	query := r.db.WithContext(ctx).Model(&models.ErrorLog{})
	if filter.Since != nil {
		query = query.Where("created_at >= ?", *filter.Since)
	}
	if filter.Stage != "" {
		query = query.Where("stage = ?", filter.Stage)
	}

	var entries []models.ErrorLog
	if err := query.Order("created_at ASC").Order("id ASC").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
