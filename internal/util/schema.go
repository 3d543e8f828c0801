package util

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// CreateSchema creates a JSON schema from a Go struct using reflection.
// Field descriptions come from the `jsonschema:"description=..."` tag; fields
// without omitempty are required.
func CreateSchema(structType any) map[string]any {
	r := &jsonschema.Reflector{
		ExpandedStruct:            true,
		DoNotReference:            true,
		AllowAdditionalProperties: true,
	}

	s := r.Reflect(structType)

	data, err := json.Marshal(s)
	if err != nil {
		return emptyObjectSchema()
	}

	var schema map[string]any
	if err := json.Unmarshal(data, &schema); err != nil {
		return emptyObjectSchema()
	}

	delete(schema, "$schema")
	delete(schema, "$id")

	if _, ok := schema["type"]; !ok {
		schema["type"] = "object"
	}
	if _, ok := schema["properties"]; !ok {
		schema["properties"] = map[string]any{}
	}

	return schema
}

func emptyObjectSchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
}

// SchemaJSON renders a schema for inclusion in prompts.
func SchemaJSON(schema map[string]any) string {
	b, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}
