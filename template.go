package generations

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/skosovsky/generations/internal/cast"
)

// placeholderRe matches ${identifier} tokens.
var placeholderRe = regexp.MustCompile(`\$\{(\w+)\}`)

// ReservedKeys are overwritten wholesale from data before substitution.
var ReservedKeys = []string{"message", "prev", "model", "temperature", "system"}

// Integrate returns a copy of template with data injected. template is never mutated.
//
// Reserved keys present in data replace the template values. ${name} tokens in every string leaf
// are looked up in data: missing names leave the token intact, scalars are substituted, objects and
// arrays have their own placeholders resolved and are then JSON-encoded. system and message string
// arrays are joined with "\n" first, and so are the content arrays of prev items. model and
// temperature are never scanned. A placeholder that refers back to a value being expanded is kept
// as-is. A nil template is rejected with a ValidationError.
func Integrate(template, data map[string]any) (map[string]any, error) {
	if template == nil {
		return nil, &ValidationError{Field: "template", Err: ErrInvalidTemplate}
	}
	result, _ := cast.Clone(template).(map[string]any)
	for _, key := range ReservedKeys {
		if v, ok := data[key]; ok {
			result[key] = cast.Clone(v)
		}
	}
	in := &integrator{data: data, active: make(map[string]bool)}
	for key, val := range result {
		switch key {
		case "model", "temperature":
		case "system", "message":
			result[key] = in.walk(joinLines(val))
		case "prev":
			result[key] = in.walk(joinContents(val))
		default:
			result[key] = in.walk(val)
		}
	}
	return result, nil
}

type integrator struct {
	data   map[string]any
	active map[string]bool // names currently being expanded
}

func (in *integrator) walk(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = in.walk(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = in.walk(e)
		}
		return out
	case []string:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = in.substitute(e)
		}
		return out
	case string:
		return in.substitute(x)
	default:
		return v
	}
}

func (in *integrator) substitute(s string) string {
	return placeholderRe.ReplaceAllStringFunc(s, func(token string) string {
		name := token[2 : len(token)-1]
		val, ok := in.data[name]
		if !ok || in.active[name] {
			return token
		}
		switch val.(type) {
		case map[string]any, []any, []string:
			in.active[name] = true
			resolved := in.walk(val)
			delete(in.active, name)
			return encodeJSON(resolved)
		default:
			return scalarText(val)
		}
	})
}

// joinContents joins the content arrays of prev items.
func joinContents(v any) any {
	items, ok := v.([]any)
	if !ok {
		return v
	}
	out := make([]any, len(items))
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			out[i] = item
			continue
		}
		if c, ok := m["content"]; ok {
			m["content"] = joinLines(c)
		}
		out[i] = m
	}
	return out
}

func joinLines(v any) any {
	switch x := v.(type) {
	case []string:
		return strings.Join(x, "\n")
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			switch e := e.(type) {
			case nil:
			case map[string]any, []any:
				parts[i] = encodeJSON(e)
			default:
				parts[i] = scalarText(e)
			}
		}
		return strings.Join(parts, "\n")
	default:
		return v
	}
}

func scalarText(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case json.Number:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// encodeJSON encodes without HTML escaping so substituted text stays readable.
func encodeJSON(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Sprint(v)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
