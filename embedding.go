package generations

import (
	"encoding/json"
	"fmt"
)

// Vector is a single embedding.
type Vector []float32

// EmbedInput is the embedding input: one text or a batch of texts.
// Its cardinality decides the Embedding variant returned by adapters.
type EmbedInput struct {
	texts []string
	batch bool
}

// SingleInput embeds one text and yields a Single embedding.
func SingleInput(text string) EmbedInput {
	return EmbedInput{texts: []string{text}}
}

// BatchInput embeds texts and yields a Batch embedding, even for one element.
func BatchInput(texts ...string) EmbedInput {
	return EmbedInput{texts: append([]string(nil), texts...), batch: true}
}

// IsBatch reports whether the input is a list.
func (in EmbedInput) IsBatch() bool { return in.batch }

// Texts returns the input texts.
func (in EmbedInput) Texts() []string { return in.texts }

// Len returns the number of texts.
func (in EmbedInput) Len() int { return len(in.texts) }

// UnmarshalJSON accepts a JSON string or an array of strings.
func (in *EmbedInput) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*in = SingleInput(s)
		return nil
	}
	var ss []string
	if err := json.Unmarshal(data, &ss); err != nil {
		return fmt.Errorf("%w: message must be a string or an array of strings", ErrInvalidArgument)
	}
	*in = BatchInput(ss...)
	return nil
}

// MarshalJSON encodes a string or an array.
func (in EmbedInput) MarshalJSON() ([]byte, error) {
	if in.batch {
		return json.Marshal(in.texts)
	}
	if len(in.texts) == 0 {
		return json.Marshal("")
	}
	return json.Marshal(in.texts[0])
}

// Embedding is Single(vector) or Batch(vectors). The zero value is an empty Single.
type Embedding struct {
	vectors []Vector
	batch   bool
}

// SingleEmbedding wraps one vector.
func SingleEmbedding(v Vector) Embedding {
	return Embedding{vectors: []Vector{v}}
}

// BatchEmbedding wraps a list of vectors.
func BatchEmbedding(vs []Vector) Embedding {
	return Embedding{vectors: vs, batch: true}
}

// NewEmbedding picks the variant matching in. It fails when the vector count does not mirror the input.
func NewEmbedding(in EmbedInput, vs []Vector) (Embedding, error) {
	if len(vs) != in.Len() {
		return Embedding{}, fmt.Errorf("%w: got %d vectors for %d inputs", ErrInvalidArgument, len(vs), in.Len())
	}
	if in.IsBatch() {
		return BatchEmbedding(vs), nil
	}
	return SingleEmbedding(vs[0]), nil
}

// IsBatch reports the Batch variant.
func (e Embedding) IsBatch() bool { return e.batch }

// Single returns the vector of the Single variant.
func (e Embedding) Single() (Vector, bool) {
	if e.batch || len(e.vectors) == 0 {
		return nil, false
	}
	return e.vectors[0], true
}

// Batch returns the vectors of the Batch variant.
func (e Embedding) Batch() ([]Vector, bool) {
	if !e.batch {
		return nil, false
	}
	return e.vectors, true
}

// Len returns the number of vectors.
func (e Embedding) Len() int { return len(e.vectors) }

// MarshalJSON encodes a vector for Single and a list of vectors for Batch.
func (e Embedding) MarshalJSON() ([]byte, error) {
	if e.batch {
		if e.vectors == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(e.vectors)
	}
	v, _ := e.Single()
	if v == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(v)
}
