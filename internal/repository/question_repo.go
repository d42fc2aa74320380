package repository

import (
	"context"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/edukita/assessment-engine/internal/models"
)

// QuestionRepository defines data operations for questions.
type QuestionRepository interface {
	GetByID(ctx context.Context, id uint) (models.Question, error)
	ListByAssignment(ctx context.Context, assignmentID uint) ([]models.Question, error)
	Create(ctx context.Context, question *models.Question) error
	UpdateAnswerKey(ctx context.Context, id uint, key datatypes.JSON) error
}

type questionRepository struct {
	db *gorm.DB
}

// NewQuestionRepository instantiates the repository.
func NewQuestionRepository(db *gorm.DB) QuestionRepository {
	return &questionRepository{db: db}
}

func (r *questionRepository) GetByID(ctx context.Context, id uint) (models.Question, error) {
	var question models.Question
	if err := r.db.WithContext(ctx).First(&question, id).Error; err != nil {
		return models.Question{}, err
	}

	return question, nil
}

func (r *questionRepository) ListByAssignment(ctx context.Context, assignmentID uint) ([]models.Question, error) {
	var questions []models.Question
	if err := r.db.WithContext(ctx).
		Where("assignment_id = ?", assignmentID).
		Order("position ASC").
		Find(&questions).Error; err != nil {
		return nil, err
	}

	return questions, nil
}

func (r *questionRepository) Create(ctx context.Context, question *models.Question) error {
	return r.db.WithContext(ctx).Create(question).Error
}

func (r *questionRepository) UpdateAnswerKey(ctx context.Context, id uint, key datatypes.JSON) error {
	return r.db.WithContext(ctx).Model(&models.Question{}).
		Where("id = ?", id).
		Update("answer_key", key).Error
}
