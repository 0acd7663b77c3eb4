// Package credentials resolves per-provider secrets with the precedence
// per-call override > process environment > env files > host fallback.
package credentials

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/skosovsky/generations"
)

// Resolver looks up credential keys. The zero value and a nil *Resolver read the process environment only.
// A Resolver is safe for concurrent use once constructed.
type Resolver struct {
	lookupEnv func(string) (string, bool)
	files     map[string]string
	fallback  map[string]string
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLookupEnv replaces os.LookupEnv, mainly for tests.
func WithLookupEnv(fn func(string) (string, bool)) Option {
	return func(r *Resolver) { r.lookupEnv = fn }
}

// WithEnvValues adds values parsed from env files. Process environment variables win over them.
func WithEnvValues(values map[string]string) Option {
	return func(r *Resolver) {
		if r.files == nil {
			r.files = make(map[string]string, len(values))
		}
		for k, v := range values {
			r.files[k] = v
		}
	}
}

// WithFallback sets host-context values consulted last.
func WithFallback(values map[string]string) Option {
	return func(r *Resolver) { r.fallback = values }
}

// New returns a Resolver configured by opts.
func New(opts ...Option) *Resolver {
	r := &Resolver{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ReadEnvFiles parses dotenv files without touching the process environment.
// Later files override earlier ones.
func ReadEnvFiles(paths ...string) (map[string]string, error) {
	out := make(map[string]string)
	for _, p := range paths {
		values, err := godotenv.Read(p)
		if err != nil {
			return nil, fmt.Errorf("credentials: read env file %q: %w", p, err)
		}
		for k, v := range values {
			out[k] = v
		}
	}
	return out, nil
}

// Lookup returns the first non-empty value of key.
func (r *Resolver) Lookup(key string, override generations.Credentials) (string, bool) {
	if v := override[key]; v != "" {
		return v, true
	}
	lookup := os.LookupEnv
	if r != nil && r.lookupEnv != nil {
		lookup = r.lookupEnv
	}
	if v, ok := lookup(key); ok && v != "" {
		return v, true
	}
	if r == nil {
		return "", false
	}
	if v := r.files[key]; v != "" {
		return v, true
	}
	if v := r.fallback[key]; v != "" {
		return v, true
	}
	return "", false
}

// Get returns the value of key or def.
func (r *Resolver) Get(key string, override generations.Credentials, def string) string {
	if v, ok := r.Lookup(key, override); ok {
		return v
	}
	return def
}

// Require resolves every key for provider p. The first missing key is reported as a ConfigurationError.
func (r *Resolver) Require(p generations.Provider, override generations.Credentials, keys ...string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		v, ok := r.Lookup(k, override)
		if !ok {
			return nil, &generations.ConfigurationError{Provider: p, Key: k, Err: generations.ErrMissingCredential}
		}
		out[k] = v
	}
	return out, nil
}
