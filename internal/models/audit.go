package models

import (
	"time"

	"gorm.io/datatypes"
)

// AuditAction is the closed taxonomy of grading-relevant actions. Adding a
// new kind is a deliberate change here, never free text at call sites.
type AuditAction string

const (
	AuditActionSubmissionCreated AuditAction = "submission_created"
	AuditActionStateTransition   AuditAction = "state_transition"
	AuditActionGrading           AuditAction = "grading"
	AuditActionAnswerKeyChanged  AuditAction = "answer_key_changed"
	AuditActionGradeOverride     AuditAction = "grade_override"
	AuditActionAppealDecision    AuditAction = "appeal_decision"
	AuditActionOverrideGranted   AuditAction = "override_granted"
)

// Valid reports whether the action belongs to the closed taxonomy.
func (a AuditAction) Valid() bool {
	switch a {
	case AuditActionSubmissionCreated, AuditActionStateTransition, AuditActionGrading,
		AuditActionAnswerKeyChanged, AuditActionGradeOverride, AuditActionAppealDecision,
		AuditActionOverrideGranted:
		return true
	}
	return false
}

// AuditLogEntry is immutable and append-only. The store interface exposes no
// update or delete for it.
type AuditLogEntry struct {
	ID           uint              `gorm:"primaryKey" json:"id"`
	Action       AuditAction       `gorm:"size:64;not null;index" json:"action"`
	ActorID      uint              `gorm:"not null;index" json:"actor_id"`
	ActorType    string            `gorm:"size:32;not null" json:"actor_type"`
	SubjectType  string            `gorm:"size:64;not null" json:"subject_type"`
	SubjectID    *uint             `gorm:"index" json:"subject_id"`
	AssignmentID *uint             `gorm:"index" json:"assignment_id"`
	StudentID    *uint             `gorm:"index" json:"student_id"`
	Context      datatypes.JSONMap `gorm:"type:json" json:"context"`
	CreatedAt    time.Time         `gorm:"index" json:"created_at"`
}
