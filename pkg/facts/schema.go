package facts

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// QuestionFileSchema is the JSON schema of an importable questions file.
const QuestionFileSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"properties": {
		"questions": {
			"type": "array",
			"items": {"type": "string"}
		},
		"used_questions": {
			"type": "array",
			"items": {"type": "string"}
		}
	},
	"anyOf": [
		{"required": ["questions"]},
		{"required": ["used_questions"]}
	]
}`

var questionSchemaLoader = gojsonschema.NewStringLoader(QuestionFileSchema)

func validateQuestionFile(data []byte) error {
	result, err := gojsonschema.Validate(questionSchemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("failed to decode questions: %w", err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, desc.String())
	}
	return fmt.Errorf("invalid questions file: %s", strings.Join(msgs, "; "))
}
