package tool

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// SchemaValidator checks a value against a JSON schema.
type SchemaValidator interface {
	Validate(schema map[string]any, v any) error
}

// JSONSchemaValidator is the default SchemaValidator. Compiled schemas are
// cached by their canonical JSON encoding, so tools sharing a schema share
// one compiled form.
type JSONSchemaValidator struct {
	mu    sync.RWMutex
	cache map[string]*jsonschema.Schema
}

// NewJSONSchemaValidator returns a validator with an empty cache.
func NewJSONSchemaValidator() *JSONSchemaValidator {
	return &JSONSchemaValidator{cache: map[string]*jsonschema.Schema{}}
}

// Validate implements SchemaValidator. A nil or empty schema accepts any value.
func (v *JSONSchemaValidator) Validate(schema map[string]any, value any) error {
	if len(schema) == 0 {
		return nil
	}

	compiled, err := v.compile(schema)
	if err != nil {
		return err
	}

	inst, err := toJSONValue(value)
	if err != nil {
		return fmt.Errorf("arguments are not JSON: %w", err)
	}

	return compiled.Validate(inst)
}

func (v *JSONSchemaValidator) compile(schema map[string]any) (*jsonschema.Schema, error) {
	// encoding/json sorts map keys, which makes the encoding canonical.
	key, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}

	v.mu.RLock()
	compiled, ok := v.cache[string(key)]
	v.mu.RUnlock()

	if ok {
		return compiled, nil
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(key))
	if err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("tool.json", doc); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}

	compiled, err = c.Compile("tool.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	v.mu.Lock()
	v.cache[string(key)] = compiled
	v.mu.Unlock()

	return compiled, nil
}

// CacheSize reports the number of compiled schemas.
func (v *JSONSchemaValidator) CacheSize() int {
	v.mu.RLock()
	defer v.mu.RUnlock()

	return len(v.cache)
}

// toJSONValue normalizes Go values (ints, structs, typed slices) into the
// generic form the compiled schema validates.
func toJSONValue(value any) (any, error) {
	b, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}

	return jsonschema.UnmarshalJSON(bytes.NewReader(b))
}

var _ SchemaValidator = (*JSONSchemaValidator)(nil)
