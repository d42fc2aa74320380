package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/edukita/assessment-engine/internal/models"
)

// OverrideRepository persists instructor-granted exceptions. Overrides are
// append-only: there is no update or delete.
type OverrideRepository interface {
	Create(ctx context.Context, override *models.Override) error
	ListActive(ctx context.Context, assignmentID, studentID uint, reference time.Time) ([]models.Override, error)
}

type overrideRepository struct {
	db *gorm.DB
}

// NewOverrideRepository instantiates the repository.
func NewOverrideRepository(db *gorm.DB) OverrideRepository {
	return &overrideRepository{db: db}
}

func (r *overrideRepository) Create(ctx context.Context, override *models.Override) error {
	return r.db.WithContext(ctx).Create(override).Error
}

func (r *overrideRepository) ListActive(ctx context.Context, assignmentID, studentID uint, reference time.Time) ([]models.Override, error) {
	var overrides []models.Override
	if err := r.db.WithContext(ctx).
		Where("assignment_id = ? AND student_id = ?", assignmentID, studentID).
		Where("expires_at IS NULL OR expires_at > ?", reference).
		Order("created_at DESC").
		Find(&overrides).Error; err != nil {
		return nil, err
	}

	return overrides, nil
}
