package service

import (
	"errors"
	"fmt"
)

// Sentinel errors reported to callers. None of these are retryable.
var (
	// ErrAssignmentNotFound indicates the assignment was not located.
	ErrAssignmentNotFound = errors.New("assignment not found")
	// ErrQuestionNotFound indicates the question was not located.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrSubmissionNotFound indicates the submission was not located.
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrGradeNotFound indicates no grade exists for the submission yet.
	ErrGradeNotFound = errors.New("grade not found")
	// ErrAppealNotFound indicates the appeal was not located.
	ErrAppealNotFound = errors.New("appeal not found")
	// ErrInvalidTransition indicates an illegal lifecycle move. Persisted
	// state is never mutated when this is returned.
	ErrInvalidTransition = errors.New("invalid submission state transition")
	// ErrAlreadyDecided indicates the appeal was already approved or denied.
	ErrAlreadyDecided = errors.New("appeal already decided")
	// ErrReasonRequired indicates a mandatory reason was empty.
	ErrReasonRequired = errors.New("a non-empty reason is required")
	// ErrDraftGrade indicates a draft grade cannot be released.
	ErrDraftGrade = errors.New("draft grade cannot be released")
	// ErrGradeOverridden indicates an instructor override is in place and
	// blocks later grading passes.
	ErrGradeOverridden = errors.New("grade has an instructor override")
	// ErrMissingAnswers indicates required answers are absent at submit time.
	ErrMissingAnswers = errors.New("submission is missing required answers")
	// ErrZeroMaxScore indicates a question with max score zero entered scoring.
	ErrZeroMaxScore = errors.New("question max score must be greater than zero")
	// ErrNotAppealEligible indicates the submission was not rejected for lateness.
	ErrNotAppealEligible = errors.New("submission is not eligible for appeal")
	// ErrBulkAllFailed indicates every item of a bulk operation failed.
	ErrBulkAllFailed = errors.New("all items in bulk operation failed")
	// ErrAssignmentArchived indicates the assignment no longer accepts attempts.
	ErrAssignmentArchived = errors.New("assignment is archived")
)

// NotEligibleError denies a new attempt, carrying the specific reason
// (attempt ceiling, cooldown, deadline, or prerequisite) for the caller.
type NotEligibleError struct {
	Reason string
}

func (e *NotEligibleError) Error() string {
	return fmt.Sprintf("not eligible: %s", e.Reason)
}

// NotEligible constructs a NotEligibleError with a formatted reason.
func NotEligible(format string, args ...interface{}) error {
	return &NotEligibleError{Reason: fmt.Sprintf(format, args...)}
}

// IsNotEligible reports whether err is an eligibility denial.
func IsNotEligible(err error) bool {
	var target *NotEligibleError
	return errors.As(err, &target)
}
