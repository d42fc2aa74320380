package dto

// AppealSubmitRequest opens an appeal against a late-rejected submission.
type AppealSubmitRequest struct {
	SubmissionID uint     `json:"submission_id" validate:"required,gt=0"`
	StudentID    uint     `json:"student_id" validate:"required,gt=0"`
	Reason       string   `json:"reason" validate:"required,min=3"`
	Documents    []string `json:"documents,omitempty" validate:"omitempty,dive,min=1"`
}
