package dto

import "time"

// GrantOverrideRequest creates an exception for one student on one assignment.
// The value fields are type-specific and validated in the service.
type GrantOverrideRequest struct {
	AssignmentID          uint       `json:"assignment_id" validate:"required,gt=0"`
	StudentID             uint       `json:"student_id" validate:"required,gt=0"`
	Type                  string     `json:"type" validate:"required,oneof=prerequisite deadline attempts"`
	Reason                string     `json:"reason" validate:"required,min=3"`
	AdditionalAttempts    int        `json:"additional_attempts,omitempty"`
	ExtendedDeadline      *time.Time `json:"extended_deadline,omitempty"`
	BypassedPrerequisites []uint     `json:"bypassed_prerequisites,omitempty"`
	ExpiresAt             *time.Time `json:"expires_at,omitempty"`
}
