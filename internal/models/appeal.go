package models

import (
	"time"

	"gorm.io/datatypes"
)

// Appeal statuses. Once decided an appeal is immutable.
const (
	AppealStatusPending  = "pending"
	AppealStatusApproved = "approved"
	AppealStatusDenied   = "denied"
)

// Appeal is a student request to reconsider a submission rejected for lateness.
type Appeal struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	SubmissionID   uint           `gorm:"not null;uniqueIndex" json:"submission_id"`
	StudentID      uint           `gorm:"not null" json:"student_id"`
	Reason         string         `gorm:"type:text;not null" json:"reason"`
	Documents      datatypes.JSON `json:"documents"`
	Status         string         `gorm:"size:16;not null;default:pending" json:"status"`
	DecisionReason string         `gorm:"type:text" json:"decision_reason"`
	DecidedBy      *uint          `json:"decided_by"`
	DecidedAt      *time.Time     `json:"decided_at"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Decided reports whether the appeal has been approved or denied.
func (a Appeal) Decided() bool {
	return a.DecidedAt != nil
}
