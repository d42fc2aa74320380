package models

import (
	"time"

	"gorm.io/datatypes"
)

// Submission lifecycle states, in creation order. No backward transitions exist.
const (
	SubmissionStateInProgress    = "in_progress"
	SubmissionStateSubmitted     = "submitted"
	SubmissionStateAutoGraded    = "auto_graded"
	SubmissionStatePendingManual = "pending_manual_grading"
	SubmissionStateGraded        = "graded"
	SubmissionStateReleased      = "released"
)

var submissionTransitions = map[string][]string{
	SubmissionStateInProgress:    {SubmissionStateSubmitted},
	SubmissionStateSubmitted:     {SubmissionStateAutoGraded, SubmissionStatePendingManual},
	SubmissionStateAutoGraded:    {SubmissionStateGraded, SubmissionStateReleased},
	SubmissionStatePendingManual: {SubmissionStateGraded},
	SubmissionStateGraded:        {SubmissionStateReleased},
	SubmissionStateReleased:      {},
}

// CanTransition reports whether from -> to is a legal forward lifecycle move.
func CanTransition(from, to string) bool {
	for _, next := range submissionTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Submission is one student attempt at an assignment. QuestionSet snapshots
// the questions presented so later randomization changes stay auditable.
type Submission struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	AssignmentID   uint           `gorm:"not null;index:idx_submission_attempt" json:"assignment_id"`
	StudentID      uint           `gorm:"not null;index:idx_submission_attempt" json:"student_id"`
	AttemptNumber  int            `gorm:"not null;default:1" json:"attempt_number"`
	QuestionSet    datatypes.JSON `json:"question_set"`
	State          string         `gorm:"size:32;not null" json:"state"`
	Score          *float64       `json:"score"`
	SubmittedAt    *time.Time     `json:"submitted_at"`
	LateRejectedAt *time.Time     `json:"late_rejected_at"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	Assignment     Assignment     `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"assignment"`
}

// IsTerminal reports whether the submission reached its final state.
func (s Submission) IsTerminal() bool {
	return s.State == SubmissionStateReleased
}

// AppealEligible reports whether the submission was rejected for lateness and
// may therefore carry an appeal.
func (s Submission) AppealEligible() bool {
	return s.LateRejectedAt != nil
}
