package models

import (
	"time"

	"gorm.io/datatypes"
)

// Answer holds the submitted content for one question of one submission.
// The (submission, question) pair is unique.
type Answer struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	SubmissionID uint           `gorm:"not null;uniqueIndex:idx_answer_submission_question" json:"submission_id"`
	QuestionID   uint           `gorm:"not null;uniqueIndex:idx_answer_submission_question" json:"question_id"`
	Content      datatypes.JSON `json:"content"`
	Score        *float64       `json:"score"`
	IsAutoGraded bool           `gorm:"not null;default:false" json:"is_auto_graded"`
	GradedBy     *uint          `json:"graded_by"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	Question     Question       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"question"`
}

// IsScored reports whether the answer carries a score from any source.
func (a Answer) IsScored() bool {
	return a.Score != nil
}
