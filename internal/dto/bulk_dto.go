package dto

// BulkValidation is the outcome of a validate-only pass; nothing is mutated.
type BulkValidation struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// BulkResult accumulates per-item outcomes of a bulk execution. One item's
// failure never aborts the batch.
type BulkResult struct {
	Success int      `json:"success"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors"`
}

// BulkFeedbackItem targets one submission with feedback text.
type BulkFeedbackItem struct {
	SubmissionID uint   `json:"submission_id" validate:"required,gt=0"`
	Feedback     string `json:"feedback" validate:"required,min=3"`
}
