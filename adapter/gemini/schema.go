package gemini

import (
	"github.com/skosovsky/generations/internal/cast"

	"google.golang.org/genai"
)

// toGenaiSchema converts a portable JSON Schema into the genai dialect.
// Objects keep properties and required; arrays without items default to string items;
// primitives keep type, description and string enums. Unknown keywords are dropped.
func toGenaiSchema(m map[string]any) *genai.Schema {
	if m == nil {
		return nil
	}
	t, _ := m["type"].(string)
	s := &genai.Schema{Type: jsonSchemaTypeToGenai(t)}
	if desc, ok := m["description"].(string); ok {
		s.Description = desc
	}
	switch t {
	case "object":
		s.Properties = make(map[string]*genai.Schema)
		if props, ok := m["properties"].(map[string]any); ok {
			for k, v := range props {
				if sub, ok := v.(map[string]any); ok {
					s.Properties[k] = toGenaiSchema(sub)
				}
			}
		}
		if req, ok := cast.ToStringSlice(m["required"]); ok {
			s.Required = req
		}
	case "array":
		items, ok := m["items"].(map[string]any)
		if !ok {
			items = map[string]any{"type": "string"}
		}
		s.Items = toGenaiSchema(items)
	default:
		if enum, ok := cast.ToStringSlice(m["enum"]); ok {
			s.Enum = enum
		}
	}
	return s
}

func jsonSchemaTypeToGenai(t string) genai.Type {
	switch t {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeUnspecified
	}
}
