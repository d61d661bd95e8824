// Package schema derives JSON Schemas from Go types and validates tool
// arguments against them.
package schema

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/invopop/jsonschema"
)

var (
	// named structs are expanded at the root
	namedReflector = &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	// ExpandedStruct looks the root up by type name, which unnamed types
	// lack
	inlineReflector = &jsonschema.Reflector{
		DoNotReference: true,
	}
)

func reflectSchema(v interface{}) (s *jsonschema.Schema, err error) {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return nil, fmt.Errorf("cannot reflect schema of %T", v)
	}

	r := inlineReflector
	if t.Kind() == reflect.Struct && t.Name() != "" {
		r = namedReflector
	}
	defer func() {
		if p := recover(); p != nil {
			s, err = nil, fmt.Errorf("cannot reflect schema of %T: %v", v, p)
		}
	}()
	if s = r.ReflectFromType(t); s == nil {
		return nil, fmt.Errorf("cannot reflect schema of %T", v)
	}
	return s, nil
}

// Reflect returns the input schema of T, which should be a struct. Fields
// without omitempty are required; unknown properties are rejected.
func Reflect[T any]() json.RawMessage {
	raw, err := ReflectValue(new(T))
	if err != nil {
		// T is not an object type.
		panic(err)
	}
	return raw
}

// ReflectValue is Reflect for a value known only at run time.
func ReflectValue(v interface{}) (json.RawMessage, error) {
	s, err := reflectSchema(v)
	if err != nil {
		return nil, err
	}
	s.Version = ""
	if s.Type != "object" {
		return nil, fmt.Errorf("input schema of %T must be an object, got %q", v, s.Type)
	}

	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return raw, nil
}

// Properties lists the top-level property names of a reflected struct in
// declaration order.
func Properties(v interface{}) []string {
	s, err := reflectSchema(v)
	if err != nil || s.Properties == nil {
		return nil
	}
	var names []string
	for el := s.Properties.Oldest(); el != nil; el = el.Next() {
		names = append(names, el.Key)
	}
	return names
}
