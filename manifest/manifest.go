// Package manifest parses prompt template documents. A document is YAML (or JSON, which is valid
// YAML) with a template argument bag and the variables it expects:
//
//	id: summarize
//	version: "1"
//	provider: openai
//	variables:
//	  required: [topic]
//	  defaults: {tone: neutral}
//	template:
//	  system: "Write in a ${tone} tone."
//	  message: "Summarize ${topic}"
//
// Render merges defaults under the caller data, checks required names and runs generations.Integrate.
package manifest

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/skosovsky/generations"
	"github.com/skosovsky/generations/internal/cast"
)

// fileManifest is the on-disk shape.
type fileManifest struct {
	ID          string                  `yaml:"id"`
	Version     string                  `yaml:"version"`
	Description string                  `yaml:"description"`
	Provider    string                  `yaml:"provider"`
	Metadata    struct{ Tags []string } `yaml:"metadata"`
	Variables   struct {
		Required []string       `yaml:"required"`
		Defaults map[string]any `yaml:"defaults"`
	} `yaml:"variables"`
	Template map[string]any `yaml:"template"`
}

// Document is a parsed template document. It is immutable after parsing; Render never changes it.
type Document struct {
	ID          string
	Version     string
	Description string
	Tags        []string
	// Provider is the default provider of the document, empty when unset.
	Provider generations.Provider
	Required []string
	Defaults map[string]any
	Template map[string]any
}

// ParseBytes parses a YAML or JSON template document.
func ParseBytes(data []byte) (*Document, error) {
	var m fileManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %w", generations.ErrInvalidManifest, err)
	}
	return build(&m)
}

// ParseFile reads and parses a document file.
func ParseFile(path string) (*Document, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is validated by caller
	if err != nil {
		return nil, fmt.Errorf("manifest: read file: %w", err)
	}
	return ParseBytes(data)
}

// ParseFS reads and parses a document from fs.FS (e.g. embed.FS).
func ParseFS(fsys fs.FS, name string) (*Document, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("manifest: read fs: %w", err)
	}
	return ParseBytes(data)
}

func build(m *fileManifest) (*Document, error) {
	if m.ID == "" {
		return nil, fmt.Errorf("%w: missing id", generations.ErrInvalidManifest)
	}
	if len(m.Template) == 0 {
		return nil, fmt.Errorf("%w: missing template", generations.ErrInvalidManifest)
	}
	tpl, err := normalize(m.Template)
	if err != nil {
		return nil, err
	}
	defaults, err := normalize(m.Variables.Defaults)
	if err != nil {
		return nil, err
	}
	doc := &Document{
		ID:          m.ID,
		Version:     m.Version,
		Description: m.Description,
		Tags:        m.Metadata.Tags,
		Required:    m.Variables.Required,
		Defaults:    defaults,
		Template:    tpl,
	}
	if m.Provider != "" {
		p, err := generations.ParseProvider(m.Provider)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", generations.ErrInvalidManifest, err)
		}
		doc.Provider = p
	}
	return doc, nil
}

// normalize converts YAML-decoded values into their JSON-decoded form (float64 numbers,
// map[string]any objects) so documents behave the same as request bodies.
func normalize(m map[string]any) (map[string]any, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", generations.ErrInvalidManifest, err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: %w", generations.ErrInvalidManifest, err)
	}
	return out, nil
}

// Missing returns the required names absent from data and the defaults, in declaration order.
func (d *Document) Missing(data map[string]any) []string {
	var out []string
	for _, name := range d.Required {
		if _, ok := data[name]; ok {
			continue
		}
		if _, ok := d.Defaults[name]; ok {
			continue
		}
		out = append(out, name)
	}
	return out
}

// Render integrates data into the template. Caller data wins over defaults.
// A missing required name fails with a ValidationError naming it.
func (d *Document) Render(data map[string]any) (map[string]any, error) {
	if missing := d.Missing(data); len(missing) > 0 {
		return nil, &generations.ValidationError{
			Field: missing[0],
			Err:   fmt.Errorf("%w: template %q", generations.ErrMissingArgument, d.ID),
		}
	}
	merged := make(map[string]any, len(d.Defaults)+len(data))
	for k, v := range d.Defaults {
		merged[k] = cast.Clone(v)
	}
	for k, v := range data {
		merged[k] = v
	}
	return generations.Integrate(d.Template, merged)
}

// Request renders data and decodes the result into a generate request.
func (d *Document) Request(data map[string]any) (*generations.GenerateRequest, error) {
	doc, err := d.Render(data)
	if err != nil {
		return nil, err
	}
	return generations.DecodeGenerateRequest(doc)
}

// HasTag reports whether the document carries tag.
func (d *Document) HasTag(tag string) bool {
	return slices.Contains(d.Tags, tag)
}
