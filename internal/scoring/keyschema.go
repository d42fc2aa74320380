package scoring

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/edukita/assessment-engine/internal/models"
)

const multipleChoiceKeySchema = `{
	"type": "object",
	"properties": {
		"correct": {"type": "string", "minLength": 1}
	},
	"required": ["correct"],
	"additionalProperties": false
}`

const checkboxKeySchema = `{
	"type": "object",
	"properties": {
		"correct": {
			"type": "array",
			"items": {"type": "string", "minLength": 1},
			"minItems": 1,
			"uniqueItems": true
		}
	},
	"required": ["correct"],
	"additionalProperties": false
}`

const rubricKeySchema = `{
	"type": "object",
	"properties": {
		"guidelines": {"type": "string"},
		"rubric": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"criterion": {"type": "string", "minLength": 1},
					"points": {"type": "number", "minimum": 0}
				},
				"required": ["criterion", "points"]
			}
		}
	},
	"additionalProperties": false
}`

var keySchemas = map[models.QuestionKind]*jsonschema.Schema{
	models.QuestionKindMultipleChoice: mustCompileKeySchema("multiple_choice.json", multipleChoiceKeySchema),
	models.QuestionKindCheckbox:       mustCompileKeySchema("checkbox.json", checkboxKeySchema),
	models.QuestionKindEssay:          mustCompileKeySchema("essay.json", rubricKeySchema),
	models.QuestionKindFileUpload:     mustCompileKeySchema("file_upload.json", rubricKeySchema),
}

func mustCompileKeySchema(name, source string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, strings.NewReader(source)); err != nil {
		panic(fmt.Sprintf("scoring: add key schema %s: %v", name, err))
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("scoring: compile key schema %s: %v", name, err))
	}
	return schema
}

// ValidateKey checks an answer key against the schema for its question kind.
func ValidateKey(kind models.QuestionKind, key []byte) error {
	schema, ok := keySchemas[kind]
	if !ok {
		return fmt.Errorf("no answer key schema for question kind %q", kind)
	}

	if len(bytes.TrimSpace(key)) == 0 {
		if kind.AutoGradable() {
			return fmt.Errorf("answer key is required for %s questions", kind)
		}
		return nil
	}

	var value interface{}
	if err := json.Unmarshal(key, &value); err != nil {
		return fmt.Errorf("answer key is not valid JSON: %w", err)
	}

	if err := schema.Validate(value); err != nil {
		return fmt.Errorf("answer key does not match %s schema: %w", kind, err)
	}

	return nil
}
