package fileregistry

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"slices"
	"strings"
	"sync"

	"github.com/skosovsky/generations"
	"github.com/skosovsky/generations/manifest"
)

var extensions = []string{".yaml", ".yml", ".json"}

// Registry loads template documents from a file system (lazy, cached). It is safe for concurrent use.
// Resolves name+env to {name}.{env}.{yaml,yml,json} with fallback to {name}.{yaml,yml,json}.
type Registry struct {
	fsys  fs.FS
	mu    sync.RWMutex
	cache map[string]*manifest.Document
}

// New creates a Registry over fsys.
func New(fsys fs.FS) *Registry {
	return &Registry{
		fsys:  fsys,
		cache: make(map[string]*manifest.Document),
	}
}

// NewDir creates a Registry that reads documents from dir.
func NewDir(dir string) *Registry {
	return New(os.DirFS(dir))
}

// validateName rejects names that could leave the registry root.
func validateName(name, env string) error {
	bad := func(v string) bool { return strings.ContainsAny(v, `/\.`) || !fs.ValidPath(v) }
	if name == "" || bad(name) {
		return &generations.ValidationError{Field: "name", Err: fmt.Errorf("%w: %q", generations.ErrInvalidArgument, name)}
	}
	if env != "" && bad(env) {
		return &generations.ValidationError{Field: "env", Err: fmt.Errorf("%w: %q", generations.ErrInvalidArgument, env)}
	}
	return nil
}

// Get returns the document for name and env. Documents are parsed once and shared; they are
// never modified by Render.
func (r *Registry) Get(ctx context.Context, name, env string) (*manifest.Document, error) {
	if err := validateName(name, env); err != nil {
		return nil, err
	}
	key := name + ":" + env
	r.mu.RLock()
	doc, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		return doc, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if doc, ok := r.cache[key]; ok {
		return doc, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var candidates []string
	if env != "" {
		for _, ext := range extensions {
			candidates = append(candidates, name+"."+env+ext)
		}
	}
	for _, ext := range extensions {
		candidates = append(candidates, name+ext)
	}
	for _, file := range candidates {
		doc, err := manifest.ParseFS(r.fsys, file)
		if err == nil {
			r.cache[key] = doc
			return doc, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("fileregistry: %s: %w", file, err)
		}
	}
	return nil, fmt.Errorf("%w: %q", generations.ErrTemplateNotFound, name)
}

// Names lists the base template names available at the root, sorted. Environment variants
// ({name}.{env}.yaml) are folded into their base name.
func (r *Registry) Names() ([]string, error) {
	entries, err := fs.ReadDir(r.fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("fileregistry: list: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !slices.Contains(extensions, path.Ext(e.Name())) {
			continue
		}
		base, _, _ := strings.Cut(strings.TrimSuffix(e.Name(), path.Ext(e.Name())), ".")
		if base != "" && !slices.Contains(names, base) {
			names = append(names, base)
		}
	}
	slices.Sort(names)
	return names, nil
}

// Reload clears the cache (for hot-reload in development).
func (r *Registry) Reload() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[string]*manifest.Document)
}
