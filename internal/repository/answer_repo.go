package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/edukita/assessment-engine/internal/models"
)

// AnswerRepository defines data operations for answers.
type AnswerRepository interface {
	ListBySubmission(ctx context.Context, submissionID uint) ([]models.Answer, error)
	// ListAutoGradedByQuestion pages auto-graded answers for one question using
	// keyset pagination, so cascade memory stays bounded regardless of history size.
	ListAutoGradedByQuestion(ctx context.Context, questionID, afterID uint, limit int) ([]models.Answer, error)
	Upsert(ctx context.Context, answer *models.Answer) error
	Update(ctx context.Context, answer *models.Answer) error
	UpdateScore(ctx context.Context, id uint, score float64, autoGraded bool, gradedBy *uint) error
}

type answerRepository struct {
	db *gorm.DB
}

// NewAnswerRepository instantiates the repository.
func NewAnswerRepository(db *gorm.DB) AnswerRepository {
	return &answerRepository{db: db}
}

func (r *answerRepository) ListBySubmission(ctx context.Context, submissionID uint) ([]models.Answer, error) {
	var answers []models.Answer
	if err := r.db.WithContext(ctx).
		Preload("Question").
		Where("submission_id = ?", submissionID).
		Order("id ASC").
		Find(&answers).Error; err != nil {
		return nil, err
	}

	return answers, nil
}

func (r *answerRepository) ListAutoGradedByQuestion(ctx context.Context, questionID, afterID uint, limit int) ([]models.Answer, error) {
	var answers []models.Answer
	if err := r.db.WithContext(ctx).
		Where("question_id = ? AND is_auto_graded = ? AND id > ?", questionID, true, afterID).
		Order("id ASC").
		Limit(limit).
		Find(&answers).Error; err != nil {
		return nil, err
	}

	return answers, nil
}

// Upsert writes answer content keyed on the unique (submission, question) pair.
func (r *answerRepository) Upsert(ctx context.Context, answer *models.Answer) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "submission_id"}, {Name: "question_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"content", "updated_at"}),
	}).Create(answer).Error
}

func (r *answerRepository) Update(ctx context.Context, answer *models.Answer) error {
	return r.db.WithContext(ctx).Save(answer).Error
}

func (r *answerRepository) UpdateScore(ctx context.Context, id uint, score float64, autoGraded bool, gradedBy *uint) error {
	return r.db.WithContext(ctx).Model(&models.Answer{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"score":          score,
			"is_auto_graded": autoGraded,
			"graded_by":      gradedBy,
		}).Error
}
