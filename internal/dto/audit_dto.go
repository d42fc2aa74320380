package dto

import "time"

// AuditSearchRequest narrows an audit trail query. Results are always sorted
// newest-first; pagination is the caller's responsibility via Page/PageSize.
type AuditSearchRequest struct {
	Action        string     `json:"action,omitempty"`
	Actions       []string   `json:"actions,omitempty"`
	ActorID       *uint      `json:"actor_id,omitempty"`
	ActorType     string     `json:"actor_type,omitempty"`
	SubjectID     *uint      `json:"subject_id,omitempty"`
	SubjectType   string     `json:"subject_type,omitempty"`
	AssignmentID  *uint      `json:"assignment_id,omitempty"`
	StudentID     *uint      `json:"student_id,omitempty"`
	ContextSearch string     `json:"context_search,omitempty"`
	StartDate     *time.Time `json:"start_date,omitempty"`
	EndDate       *time.Time `json:"end_date,omitempty"`
	Page          int        `json:"page,omitempty"`
	PageSize      int        `json:"page_size,omitempty"`
}
