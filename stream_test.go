package generations

import (
	"errors"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chunks(cs ...Chunk) iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		for _, c := range cs {
			if !yield(c, nil) {
				return
			}
		}
	}
}

func TestStream_Collect(t *testing.T) {
	t.Parallel()
	s := NewStream(chunks(
		Chunk{Content: "Hel"},
		Chunk{Content: "lo"},
		Chunk{FinishReason: "end_turn", Usage: &Usage{InputTokens: 1, OutputTokens: 2, TotalTokens: 3}},
	))
	resp, err := s.Collect()
	require.NoError(t, err)
	assert.Equal(t, "Hello", resp.Content)
	assert.Equal(t, FinishStop, resp.Metadata.FinishReason)
	assert.Equal(t, int64(3), resp.Metadata.Usage.TotalTokens)
}

func TestStream_CollectToolCalls(t *testing.T) {
	t.Parallel()
	s := NewStream(chunks(
		Chunk{ToolCalls: []ToolCall{{Type: "function", Name: "a"}}},
		Chunk{ToolCalls: []ToolCall{{Type: "function", Name: "b"}}, FinishReason: "stop"},
	))
	resp, err := s.Collect()
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 2)
	assert.Equal(t, FinishToolUse, resp.Metadata.FinishReason)
}

func TestStream_SingleUse(t *testing.T) {
	t.Parallel()
	s := NewStream(chunks(Chunk{Content: "x"}))
	_, err := s.Collect()
	require.NoError(t, err)

	_, err = s.Collect()
	require.ErrorIs(t, err, ErrStreamConsumed)
}

func TestStream_ErrorMidStream(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	s := NewStream(func(yield func(Chunk, error) bool) {
		if !yield(Chunk{Content: "partial"}, nil) {
			return
		}
		yield(Chunk{}, boom)
	})
	resp, err := s.Collect()
	require.ErrorIs(t, err, boom)
	assert.Equal(t, "partial", resp.Content)
}

func TestStream_EarlyBreakStopsProducer(t *testing.T) {
	t.Parallel()
	produced := 0
	stopped := false
	s := NewStream(func(yield func(Chunk, error) bool) {
		defer func() { stopped = true }()
		for range 10 {
			produced++
			if !yield(Chunk{Content: "x"}, nil) {
				return
			}
		}
	})
	for range s.Iter() {
		break
	}
	assert.Equal(t, 1, produced)
	assert.True(t, stopped)
}

func TestSingleChunkStream(t *testing.T) {
	t.Parallel()
	orig := NewResponse("full")
	orig.Structured = map[string]any{"a": 1.0}
	orig.GroundingMetadata = &GroundingMetadata{WebSearchQueries: []any{"q"}}
	resp, err := SingleChunkStream(orig).Collect()
	require.NoError(t, err)
	assert.Equal(t, orig, resp)
}
