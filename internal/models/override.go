package models

import (
	"time"

	"gorm.io/datatypes"
)

// OverrideType enumerates the exceptions an instructor may grant.
type OverrideType string

const (
	OverrideTypePrerequisite OverrideType = "prerequisite"
	OverrideTypeDeadline     OverrideType = "deadline"
	OverrideTypeAttempts     OverrideType = "attempts"
)

// Valid reports whether the type belongs to the closed set.
func (t OverrideType) Valid() bool {
	switch t {
	case OverrideTypePrerequisite, OverrideTypeDeadline, OverrideTypeAttempts:
		return true
	}
	return false
}

// OverrideValue is the type-specific payload stored on an override.
type OverrideValue struct {
	AdditionalAttempts    int        `json:"additional_attempts,omitempty"`
	ExtendedDeadline      *time.Time `json:"extended_deadline,omitempty"`
	BypassedPrerequisites []uint     `json:"bypassed_prerequisites,omitempty"`
}

// Override grants a named exception to one student on one assignment.
// Records are append-only: an override is superseded or expires, never edited.
type Override struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	AssignmentID uint           `gorm:"not null;index:idx_override_lookup" json:"assignment_id"`
	StudentID    uint           `gorm:"not null;index:idx_override_lookup" json:"student_id"`
	Type         OverrideType   `gorm:"size:32;not null;index:idx_override_lookup" json:"type"`
	Reason       string         `gorm:"type:text;not null" json:"reason"`
	Value        datatypes.JSON `json:"value"`
	GrantedBy    uint           `gorm:"not null" json:"granted_by"`
	ExpiresAt    *time.Time     `json:"expires_at"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Active reports whether the override is in force at the reference time.
func (o Override) Active(reference time.Time) bool {
	return o.ExpiresAt == nil || o.ExpiresAt.After(reference)
}
