// Package fileregistry provides a file-system template store that loads template documents
// (see package manifest) on demand and caches them. Use New over any fs.FS (embed.FS, fstest.MapFS)
// or NewDir for a directory; Get resolves {name}.{env}.yaml, .yml or .json with fallback to {name}.yaml.
package fileregistry
