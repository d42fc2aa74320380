package dto

// ManualGradeRequest carries per-question scores and feedback from an instructor.
type ManualGradeRequest struct {
	Scores   map[uint]float64 `json:"scores" validate:"required,min=1"`
	Feedback string           `json:"feedback" validate:"omitempty,min=3"`
}

// DraftGradeRequest saves partial scores without finalizing the grade.
type DraftGradeRequest struct {
	Scores   map[uint]float64 `json:"scores" validate:"required,min=1"`
	Feedback string           `json:"feedback"`
}

// OverrideGradeRequest replaces a grade score with an instructor correction.
type OverrideGradeRequest struct {
	Score  float64 `json:"score" validate:"gte=0,lte=100"`
	Reason string  `json:"reason" validate:"required,min=3"`
}
