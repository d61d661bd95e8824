package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Validator checks argument objects against one compiled schema. It is safe
// for concurrent use.
type Validator struct {
	raw    json.RawMessage
	schema *jsonschema.Schema
}

// Compile parses and compiles raw. An empty schema accepts any object.
func Compile(raw json.RawMessage) (*Validator, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return &Validator{}, nil
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("schema resource: %w", err)
	}
	s, err := c.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Validator{raw: raw, schema: s}, nil
}

// Schema returns the source the validator was compiled from.
func (v *Validator) Schema() json.RawMessage {
	return v.raw
}

// ValidationError reports arguments that do not match the schema.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid arguments: " + e.Reason
}

// Validate checks args, treating absent or null arguments as the empty
// object.
func (v *Validator) Validate(args json.RawMessage) error {
	args = orEmptyObject(args)

	var doc interface{}
	if err := json.Unmarshal(args, &doc); err != nil {
		return &ValidationError{Reason: "arguments are not valid JSON"}
	}
	if _, ok := doc.(map[string]interface{}); !ok {
		return &ValidationError{Reason: "arguments must be an object"}
	}
	if v.schema == nil {
		return nil
	}

	if err := v.schema.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return &ValidationError{Reason: describe(ve)}
		}
		return &ValidationError{Reason: err.Error()}
	}
	return nil
}

// describe flattens the leaf causes of a validation failure.
func describe(ve *jsonschema.ValidationError) string {
	if len(ve.Causes) == 0 {
		loc := ve.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		return fmt.Sprintf("%s: %s", loc, ve.Message)
	}
	parts := make([]string, 0, len(ve.Causes))
	for _, c := range ve.Causes {
		parts = append(parts, describe(c))
	}
	return strings.Join(parts, "; ")
}

// Decode unmarshals args into a T, treating absent arguments as the empty
// object.
func Decode[T any](args json.RawMessage) (T, error) {
	var out T
	if err := json.Unmarshal(orEmptyObject(args), &out); err != nil {
		return out, &ValidationError{Reason: err.Error()}
	}
	return out, nil
}

func orEmptyObject(args json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(args)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return json.RawMessage("{}")
	}
	return args
}
