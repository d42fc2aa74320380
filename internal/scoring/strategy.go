package scoring

import (
	"fmt"

	"github.com/edukita/assessment-engine/internal/models"
)

// Result is the outcome of scoring a single answer.
type Result struct {
	Points      float64
	MaxPoints   float64
	NeedsManual bool
}

// Strategy scores one answer against its question's answer key.
type Strategy interface {
	Score(question models.Question, content []byte) (Result, error)
}

// ForKind resolves the strategy for a question kind. The set is closed;
// an unknown kind is an error, never a silent fallback.
func ForKind(kind models.QuestionKind) (Strategy, error) {
	switch kind {
	case models.QuestionKindMultipleChoice:
		return multipleChoiceStrategy{}, nil
	case models.QuestionKindCheckbox:
		return checkboxStrategy{}, nil
	case models.QuestionKindEssay, models.QuestionKindFileUpload:
		return manualStrategy{}, nil
	default:
		return nil, fmt.Errorf("no scoring strategy for question kind %q", kind)
	}
}
