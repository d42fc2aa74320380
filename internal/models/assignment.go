package models

import (
	"time"

	"gorm.io/datatypes"
)

// ReviewMode controls when students may see graded results.
const (
	ReviewModeAfterRelease = "after_release"
	ReviewModeImmediate    = "immediate"
)

// Assignment owns the scoring configuration for a set of questions.
type Assignment struct {
	ID                   uint           `gorm:"primaryKey" json:"id"`
	Title                string         `gorm:"size:255;not null" json:"title"`
	Description          string         `gorm:"type:text" json:"description"`
	MaxScore             float64        `gorm:"not null;default:100" json:"max_score"`
	MaxAttempts          int            `gorm:"not null;default:0" json:"max_attempts"`
	CooldownSeconds      int            `gorm:"not null;default:0" json:"cooldown_seconds"`
	DueDate              time.Time      `gorm:"not null" json:"due_date"`
	LateToleranceMinutes int            `gorm:"not null;default:0" json:"late_tolerance_minutes"`
	ReviewMode           string         `gorm:"size:32;not null;default:after_release" json:"review_mode"`
	RandomizeQuestions   bool           `gorm:"not null;default:false" json:"randomize_questions"`
	Prerequisites        datatypes.JSON `json:"prerequisites"`
	CreatedBy            uint           `gorm:"not null" json:"created_by"`
	ArchivedAt           *time.Time     `json:"archived_at"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
	Questions            []Question     `json:"questions"`
}

// IsArchived reports whether the assignment has been retired.
func (a Assignment) IsArchived() bool {
	return a.ArchivedAt != nil
}

// Cooldown returns the configured wait between attempts.
func (a Assignment) Cooldown() time.Duration {
	return time.Duration(a.CooldownSeconds) * time.Second
}

// EffectiveDeadline is the due date extended by the configured tolerance.
func (a Assignment) EffectiveDeadline() time.Time {
	return a.DueDate.Add(time.Duration(a.LateToleranceMinutes) * time.Minute)
}

// IsPastDue returns true when the effective deadline has already passed.
func (a Assignment) IsPastDue(reference time.Time) bool {
	return reference.After(a.EffectiveDeadline())
}
