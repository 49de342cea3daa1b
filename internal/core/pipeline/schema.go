package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const entitiesSchemaJSON = `{
	"type": "array",
	"items": {
		"type": "object",
		"required": ["entity_type", "entity_value", "confidence_score"],
		"properties": {
			"entity_type": {"type": "string", "minLength": 1},
			"entity_value": {"type": ["string", "number"]},
			"confidence_score": {"type": "number"},
			"metadata": {"type": ["object", "null"]}
		}
	}
}`

const reasoningSchemaJSON = `{
	"type": "object",
	"required": ["summary", "key_findings"],
	"properties": {
		"summary": {"type": "string", "minLength": 1},
		"key_findings": {"type": "array", "items": {"type": "string"}}
	}
}`

var (
	entitiesSchema  = mustCompileSchema("entities.json", entitiesSchemaJSON)
	reasoningSchema = mustCompileSchema("reasoning.json", reasoningSchemaJSON)
)

func mustCompileSchema(name, source string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, strings.NewReader(source)); err != nil {
		panic(fmt.Sprintf("add schema %s: %v", name, err))
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("compile schema %s: %v", name, err))
	}
	return schema
}

// decodeAndValidate unmarshals raw JSON into a generic value and validates it.
func decodeAndValidate(schema *jsonschema.Schema, raw string) (any, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("no json found in response")
	}
	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return nil, fmt.Errorf("unmarshal json: %w", err)
	}
	if err := schema.Validate(value); err != nil {
		return nil, fmt.Errorf("json does not match schema: %w", err)
	}
	return value, nil
}
