package models

import (
	"time"

	"gorm.io/datatypes"
)

// QuestionKind enumerates the closed set of supported question types.
type QuestionKind string

const (
	// QuestionKindMultipleChoice is a single-select question scored by exact match.
	QuestionKindMultipleChoice QuestionKind = "multiple_choice"
	// QuestionKindCheckbox is a multi-select question scored by set match.
	QuestionKindCheckbox QuestionKind = "checkbox"
	// QuestionKindEssay is a free-text question that always requires a human score.
	QuestionKindEssay QuestionKind = "essay"
	// QuestionKindFileUpload is a file-based question that always requires a human score.
	QuestionKindFileUpload QuestionKind = "file_upload"
)

// Valid reports whether the kind belongs to the closed set.
func (k QuestionKind) Valid() bool {
	switch k {
	case QuestionKindMultipleChoice, QuestionKindCheckbox, QuestionKindEssay, QuestionKindFileUpload:
		return true
	}
	return false
}

// AutoGradable reports whether a score can be derived from the answer key alone.
func (k QuestionKind) AutoGradable() bool {
	return k == QuestionKindMultipleChoice || k == QuestionKindCheckbox
}

// Question belongs to an assignment and carries a kind-specific answer key.
type Question struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	AssignmentID uint           `gorm:"not null;index" json:"assignment_id"`
	Prompt       string         `gorm:"type:text;not null" json:"prompt"`
	Kind         QuestionKind   `gorm:"size:32;not null" json:"kind"`
	AnswerKey    datatypes.JSON `json:"answer_key"`
	Weight       float64        `gorm:"not null;default:1" json:"weight"`
	MaxScore     float64        `gorm:"not null" json:"max_score"`
	Position     int            `gorm:"not null;default:0" json:"position"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}
