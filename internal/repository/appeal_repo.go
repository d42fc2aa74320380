package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/edukita/assessment-engine/internal/models"
)

// AppealRepository defines data operations for appeals.
type AppealRepository interface {
	GetByID(ctx context.Context, id uint) (models.Appeal, error)
	GetBySubmission(ctx context.Context, submissionID uint) (models.Appeal, error)
	Create(ctx context.Context, appeal *models.Appeal) error
	// Decide finalizes a pending appeal as a single conditional write.
	// It reports false when the appeal was already decided.
	Decide(ctx context.Context, appeal *models.Appeal) (bool, error)
}

type appealRepository struct {
	db *gorm.DB
}

// NewAppealRepository instantiates the repository.
func NewAppealRepository(db *gorm.DB) AppealRepository {
	return &appealRepository{db: db}
}

func (r *appealRepository) GetByID(ctx context.Context, id uint) (models.Appeal, error) {
	var appeal models.Appeal
	if err := r.db.WithContext(ctx).First(&appeal, id).Error; err != nil {
		return models.Appeal{}, err
	}

	return appeal, nil
}

func (r *appealRepository) GetBySubmission(ctx context.Context, submissionID uint) (models.Appeal, error) {
	var appeal models.Appeal
	if err := r.db.WithContext(ctx).
		Where("submission_id = ?", submissionID).
		First(&appeal).Error; err != nil {
		return models.Appeal{}, err
	}

	return appeal, nil
}

func (r *appealRepository) Create(ctx context.Context, appeal *models.Appeal) error {
	return r.db.WithContext(ctx).Create(appeal).Error
}

func (r *appealRepository) Decide(ctx context.Context, appeal *models.Appeal) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Appeal{}).
		Where("id = ? AND status = ?", appeal.ID, models.AppealStatusPending).
		Updates(map[string]interface{}{
			"status":          appeal.Status,
			"decision_reason": appeal.DecisionReason,
			"decided_by":      appeal.DecidedBy,
			"decided_at":      appeal.DecidedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected == 1, nil
}
