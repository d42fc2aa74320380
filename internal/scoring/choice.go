package scoring

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/edukita/assessment-engine/internal/models"
)

type choiceKey struct {
	Correct string `json:"correct"`
}

type choiceContent struct {
	Selected string `json:"selected"`
}

type multiKey struct {
	Correct []string `json:"correct"`
}

type multiContent struct {
	Selected []string `json:"selected"`
}

// multipleChoiceStrategy awards full points on an exact match with the key.
type multipleChoiceStrategy struct{}

func (multipleChoiceStrategy) Score(question models.Question, content []byte) (Result, error) {
	res := Result{MaxPoints: question.MaxScore}

	var key choiceKey
	if err := json.Unmarshal(question.AnswerKey, &key); err != nil {
		return res, fmt.Errorf("invalid multiple choice answer key: %w", err)
	}

	if len(content) == 0 {
		return res, nil
	}

	var answer choiceContent
	if err := json.Unmarshal(content, &answer); err != nil {
		return res, fmt.Errorf("invalid multiple choice answer content: %w", err)
	}

	if strings.TrimSpace(answer.Selected) == strings.TrimSpace(key.Correct) {
		res.Points = question.MaxScore
	}

	return res, nil
}

// checkboxStrategy awards full points only when the selected set equals the key set.
type checkboxStrategy struct{}

func (checkboxStrategy) Score(question models.Question, content []byte) (Result, error) {
	res := Result{MaxPoints: question.MaxScore}

	var key multiKey
	if err := json.Unmarshal(question.AnswerKey, &key); err != nil {
		return res, fmt.Errorf("invalid checkbox answer key: %w", err)
	}

	if len(content) == 0 {
		return res, nil
	}

	var answer multiContent
	if err := json.Unmarshal(content, &answer); err != nil {
		return res, fmt.Errorf("invalid checkbox answer content: %w", err)
	}

	if setsEqual(key.Correct, answer.Selected) {
		res.Points = question.MaxScore
	}

	return res, nil
}

// manualStrategy marks essay and file-upload answers for human review.
type manualStrategy struct{}

func (manualStrategy) Score(question models.Question, _ []byte) (Result, error) {
	return Result{MaxPoints: question.MaxScore, NeedsManual: true}, nil
}

func setsEqual(a, b []string) bool {
	left := toSet(a)
	right := toSet(b)
	if len(left) != len(right) {
		return false
	}
	for v := range left {
		if _, ok := right[v]; !ok {
			return false
		}
	}
	return true
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[strings.TrimSpace(v)] = struct{}{}
	}
	return set
}
