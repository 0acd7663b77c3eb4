// Package generations provides the canonical types shared by the provider adapters:
// requests, messages, tools, embeddings, streams and the canonical response envelope.
// It also holds the pure pieces of the pipeline: Integrate (prompt template data injection),
// NormalizeMessages (role synonyms) and FormatToolResponse (raw provider result to canonical envelope).
package generations
