package models

import "time"

// GradeSource identifies how a grade's current score was produced.
const (
	GradeSourceAuto     = "auto"
	GradeSourceManual   = "manual"
	GradeSourceOverride = "override"
)

// Grade is the release-facing scoring record, tied 1:1 to a submission.
// OriginalScore is preserved the first time an instructor overrides the score
// and never touched again.
type Grade struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	SubmissionID   uint       `gorm:"not null;uniqueIndex" json:"submission_id"`
	Score          float64    `gorm:"not null" json:"score"`
	OriginalScore  *float64   `json:"original_score"`
	IsOverride     bool       `gorm:"not null;default:false" json:"is_override"`
	IsDraft        bool       `gorm:"not null;default:false" json:"is_draft"`
	OverrideReason string     `gorm:"type:text" json:"override_reason"`
	Feedback       string     `gorm:"type:text" json:"feedback"`
	SourceKind     string     `gorm:"size:16;not null" json:"source_kind"`
	SourceID       *uint      `json:"source_id"`
	GradedBy       *uint      `json:"graded_by"`
	ReleasedAt     *time.Time `json:"released_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// IsReleased reports whether the grade is visible to the student.
func (g Grade) IsReleased() bool {
	return g.ReleasedAt != nil
}
