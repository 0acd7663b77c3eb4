package generations

import (
	"encoding/json"
	"fmt"
	"maps"
)

// Schema describes a structured-output request (response_schema).
// When the wire document has no "parameters" object, the document itself is the JSON Schema.
type Schema struct {
	Name        string
	Description string
	Strict      *bool          // nil means strict
	Parameters  map[string]any // JSON Schema
}

// IsStrict reports the strict flag, defaulting to true.
func (s *Schema) IsStrict() bool {
	return s == nil || s.Strict == nil || *s.Strict
}

// Document returns a copy of the JSON Schema document.
func (s *Schema) Document() map[string]any {
	if s == nil || s.Parameters == nil {
		return nil
	}
	return maps.Clone(s.Parameters)
}

// UnmarshalJSON accepts both {name, strict, parameters: {...}} and a bare JSON Schema.
func (s *Schema) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("%w: response_schema: %w", ErrInvalidArgument, err)
	}
	*s = SchemaFromDocument(m)
	return nil
}

// MarshalJSON encodes the wrapped form.
func (s Schema) MarshalJSON() ([]byte, error) {
	doc := map[string]any{"parameters": s.Parameters}
	if s.Name != "" {
		doc["name"] = s.Name
	}
	if s.Description != "" {
		doc["description"] = s.Description
	}
	if s.Strict != nil {
		doc["strict"] = *s.Strict
	}
	return json.Marshal(doc)
}

// SchemaFromDocument builds a Schema from a generic response_schema document.
func SchemaFromDocument(m map[string]any) Schema {
	var s Schema
	s.Name, _ = m["name"].(string)
	s.Description, _ = m["description"].(string)
	if strict, ok := m["strict"].(bool); ok {
		s.Strict = &strict
	}
	if params, ok := m["parameters"].(map[string]any); ok {
		s.Parameters = params
	} else {
		s.Parameters = m
	}
	return s
}
