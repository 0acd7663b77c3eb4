package generations

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"
)

// ToolKind tags the Tool union.
type ToolKind int

// Tool kinds.
const (
	// ToolBuiltin is a backend capability identified by a type tag (google_search, web_search_20250305, ...).
	ToolBuiltin ToolKind = iota
	// ToolFunction is a caller-defined function declaration.
	ToolFunction
)

// Well-known builtin tags.
const (
	ToolGoogleSearch  = "google_search"
	ToolCodeExecution = "code_execution"
	ToolWebSearch     = "web_search_20250305"
	ToolTextEditor    = "text_editor_20250429"
	ToolBash          = "bash_20250124"
)

// knownPredefined are builtin tags routed to the native request API regardless of spelling.
var knownPredefined = []string{ToolTextEditor, ToolBash, ToolWebSearch}

// Tool is a tagged union: a builtin capability or a function declaration.
// Use BuiltinTool and FunctionTool to construct one.
type Tool struct {
	Kind        ToolKind
	Type        string         // builtin tag; "function" for function tools
	Name        string         // function name, optional builtin name
	Description string         // function description
	Parameters  map[string]any // function JSON Schema
	Options     map[string]any // extra builtin fields (e.g. max_uses), passed through
	Nested      bool           // decoded from the {"<tag>": {...}} form; never predefined
}

// BuiltinTool returns a builtin tool for tag with optional pass-through options.
func BuiltinTool(tag string, options map[string]any) Tool {
	t := Tool{Kind: ToolBuiltin, Type: tag, Options: options}
	if name, ok := options["name"].(string); ok {
		t.Name = name
	}
	return t
}

// FunctionTool returns a function declaration tool.
func FunctionTool(name, description string, parameters map[string]any) Tool {
	return Tool{Kind: ToolFunction, Type: "function", Name: name, Description: description, Parameters: parameters}
}

// IsPredefined reports whether t is a backend built-in that needs the native request API:
// a flat-form, non-function type tag containing "_" or one of the known predefined tags.
// Only the top-level "type" field marks a tool as predefined, so nested records such as
// {"google_search": {}} never do.
func (t Tool) IsPredefined() bool {
	if t.Kind != ToolBuiltin || t.Nested || t.Type == "" || t.Type == "function" {
		return false
	}
	return strings.Contains(t.Type, "_") || slices.Contains(knownPredefined, t.Type)
}

// Document returns the tool in the flat Anthropic wire form ({type, name, ...}).
func (t Tool) Document() map[string]any {
	if t.Kind == ToolFunction {
		doc := map[string]any{"name": t.Name, "input_schema": map[string]any{"type": "object"}}
		if t.Parameters != nil {
			doc["input_schema"] = t.Parameters
		}
		if t.Description != "" {
			doc["description"] = t.Description
		}
		return doc
	}
	doc := make(map[string]any, len(t.Options)+2)
	for k, v := range t.Options {
		doc[k] = v
	}
	doc["type"] = t.Type
	if t.Name != "" {
		doc["name"] = t.Name
	}
	if t.Type == ToolWebSearch {
		if _, ok := doc["name"]; !ok {
			doc["name"] = "web_search"
		}
		if _, ok := doc["max_uses"]; !ok {
			doc["max_uses"] = 5
		}
	}
	return doc
}

// Tools is a tool list decoded from any of the accepted wire forms.
type Tools []Tool

// HasPredefined reports whether any tool needs the native request API.
func (ts Tools) HasPredefined() bool {
	return slices.ContainsFunc(ts, Tool.IsPredefined)
}

// Functions returns only the function tools.
func (ts Tools) Functions() Tools {
	var out Tools
	for _, t := range ts {
		if t.Kind == ToolFunction {
			out = append(out, t)
		}
	}
	return out
}

// Has reports whether a builtin with tag is present.
func (ts Tools) Has(tag string) bool {
	return slices.ContainsFunc(ts, func(t Tool) bool { return t.Kind == ToolBuiltin && t.Type == tag })
}

// UnmarshalJSON decodes a JSON array of tool records. See ParseTools.
func (ts *Tools) UnmarshalJSON(data []byte) error {
	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: tools: %w", ErrInvalidArgument, err)
	}
	parsed, err := ParseTools(raw)
	if err != nil {
		return err
	}
	*ts = parsed
	return nil
}

// MarshalJSON encodes the tools in the wire form they were decoded from: nested builtins as
// {"<tag>": {...}}, everything else flat.
func (ts Tools) MarshalJSON() ([]byte, error) {
	docs := make([]map[string]any, 0, len(ts))
	for _, t := range ts {
		if t.Nested {
			opts := t.Options
			if opts == nil {
				opts = map[string]any{}
			}
			docs = append(docs, map[string]any{t.Type: opts})
			continue
		}
		doc := t.Document()
		if t.Kind == ToolFunction {
			doc["type"] = "function"
		}
		docs = append(docs, doc)
	}
	return json.Marshal(docs)
}

// ParseTools decodes generic tool records. Accepted forms:
//
//	{"type": "function", "name": ..., "description": ..., "input_schema"|"parameters": {...}}
//	{"type": "<tag>", ...options}
//	{"functionDeclarations": [{"name", "description", "parameters"}, ...]}
//	{"<tag>": {...options}}   e.g. {"google_search": {}}, {"web_search_20250305": {"max_uses": 3}}
func ParseTools(records []any) (Tools, error) {
	var out Tools
	for i, rec := range records {
		m, ok := rec.(map[string]any)
		if !ok {
			return nil, &ValidationError{Field: fmt.Sprintf("tools[%d]", i), Err: ErrInvalidArgument}
		}
		tools, err := parseTool(m)
		if err != nil {
			return nil, &ValidationError{Field: fmt.Sprintf("tools[%d]", i), Err: err}
		}
		out = append(out, tools...)
	}
	return out, nil
}

func parseTool(m map[string]any) ([]Tool, error) {
	if typ, ok := m["type"].(string); ok && typ != "" {
		if typ == "function" {
			return []Tool{functionFromRecord(m)}, nil
		}
		opts := make(map[string]any, len(m))
		for k, v := range m {
			if k != "type" {
				opts[k] = v
			}
		}
		return []Tool{BuiltinTool(typ, opts)}, nil
	}
	if decls, ok := m["functionDeclarations"].([]any); ok {
		out := make([]Tool, 0, len(decls))
		for _, d := range decls {
			dm, ok := d.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: function declaration must be an object", ErrInvalidArgument)
			}
			out = append(out, functionFromRecord(dm))
		}
		return out, nil
	}
	if len(m) == 0 {
		return nil, fmt.Errorf("%w: empty tool record", ErrInvalidArgument)
	}
	// Nested forms: every key is a builtin tag, sorted for a stable order.
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Tool, 0, len(keys))
	for _, k := range keys {
		opts, _ := m[k].(map[string]any)
		t := BuiltinTool(k, opts)
		t.Nested = true
		out = append(out, t)
	}
	return out, nil
}

func functionFromRecord(m map[string]any) Tool {
	name, _ := m["name"].(string)
	desc, _ := m["description"].(string)
	params, ok := m["input_schema"].(map[string]any)
	if !ok {
		params, _ = m["parameters"].(map[string]any)
	}
	// OpenAI-style {"type": "function", "function": {...}}.
	if fn, ok := m["function"].(map[string]any); ok && name == "" {
		return functionFromRecord(fn)
	}
	return FunctionTool(name, desc, params)
}
