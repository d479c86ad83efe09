package analysis

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
)

// Model output is untrusted input. Both completions are validated against a
// compiled schema before any field is read.

const verdictSchemaJSON = `{
  "type": "object",
  "required": ["side", "fair_value", "confidence"],
  "properties": {
    "side": {"type": "string", "enum": ["YES", "NO", "SKIP", "yes", "no", "skip"]},
    "fair_value": {"type": "number", "minimum": 0, "maximum": 1},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "reasoning": {"type": "string"}
  }
}`

const exitSchemaJSON = `{
  "type": "object",
  "required": ["should_exit"],
  "properties": {
    "should_exit": {"type": "boolean"},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "reasoning": {"type": "string"}
  }
}`

var (
	verdictSchema = jsonschema.MustCompileString("verdict.json", verdictSchemaJSON)
	exitSchema    = jsonschema.MustCompileString("exit.json", exitSchemaJSON)
)

func validateVerdictJSON(raw string) error {
	return validateAgainst(verdictSchema, raw)
}

func validateExitJSON(raw string) error {
	return validateAgainst(exitSchema, raw)
}

func validateAgainst(schema *jsonschema.Schema, raw string) error {
	if !gjson.Valid(raw) {
		return fmt.Errorf("not valid json")
	}
	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return err
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("schema violation: %v", err)
	}
	return nil
}
