package schema

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const metaSchemaURL = "forge://schema/workflow-io.json"

// metaSchemaJSON constrains user-supplied schema documents to the restricted
// dialect: a top-level type, flat properties with a type and an optional
// description, and a required name list. Unknown keys are rejected so typos
// like "requried" surface at registration time instead of silently passing.
const metaSchemaJSON = `{
  "type": "object",
  "properties": {
    "type": {
      "enum": ["object", "string", "number", "integer", "boolean", "array"]
    },
    "properties": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "properties": {
          "type": {
            "enum": ["string", "number", "integer", "boolean", "object", "array"]
          },
          "description": {"type": "string"}
        },
        "required": ["type"],
        "additionalProperties": false
      }
    },
    "required": {
      "type": "array",
      "items": {"type": "string"}
    }
  },
  "required": ["type"],
  "additionalProperties": false
}`

var metaSchema = mustCompileMeta()

func mustCompileMeta() *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(metaSchemaJSON))
	if err != nil {
		panic(fmt.Sprintf("schema: decode meta-schema: %v", err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(metaSchemaURL, doc); err != nil {
		panic(fmt.Sprintf("schema: register meta-schema: %v", err))
	}
	compiled, err := c.Compile(metaSchemaURL)
	if err != nil {
		panic(fmt.Sprintf("schema: compile meta-schema: %v", err))
	}
	return compiled
}

// ValidateDocument checks that raw is valid JSON conforming to the dialect.
func ValidateDocument(raw []byte) error {
	inst, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return fmt.Errorf("parse schema document: %w", err)
	}
	if err := metaSchema.Validate(inst); err != nil {
		return fmt.Errorf("schema document outside supported dialect: %w", err)
	}
	return nil
}
