package generations

import (
	"iter"
	"strings"
	"sync/atomic"
)

// Chunk is one streamed delta, normalized when it is consumed.
// Raw holds the native chunk; its type is documented by each adapter.
type Chunk struct {
	Content      string     `json:"content,omitempty"`
	ToolCalls    []ToolCall `json:"toolCalls,omitempty"`
	FinishReason string     `json:"finishReason,omitempty"`
	Usage        *Usage     `json:"usage,omitempty"`
	Raw          any        `json:"raw,omitempty"`
}

// Stream is a lazy, single-pass sequence of chunks in arrival order.
// Breaking out of the range loop stops the producer, which must release its native stream.
// A second iteration yields ErrStreamConsumed.
type Stream struct {
	seq      iter.Seq2[Chunk, error]
	consumed atomic.Bool
}

// NewStream wraps a producer sequence.
func NewStream(seq iter.Seq2[Chunk, error]) *Stream {
	return &Stream{seq: seq}
}

// SingleChunkStream delivers a buffered response as one chunk. Adapters use it when a calling
// mode cannot stream natively.
func SingleChunkStream(resp *Response) *Stream {
	return NewStream(func(yield func(Chunk, error) bool) {
		usage := resp.Metadata.Usage
		yield(Chunk{
			Content:      resp.Content,
			ToolCalls:    resp.ToolCalls,
			FinishReason: resp.Metadata.FinishReason,
			Usage:        &usage,
			Raw:          resp,
		}, nil)
	})
}

// Iter returns the sequence for range-over-func loops.
func (s *Stream) Iter() iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		if s.consumed.Swap(true) {
			yield(Chunk{}, ErrStreamConsumed)
			return
		}
		s.seq(yield)
	}
}

// Collect consumes the stream into a canonical response: contents concatenated, tool calls
// accumulated, the last finish reason and usage kept. A mid-stream error returns the partial response.
func (s *Stream) Collect() (*Response, error) {
	resp := NewResponse("")
	var b strings.Builder
	reason := ""
	for chunk, err := range s.Iter() {
		if err != nil {
			resp.Content = b.String()
			return resp, err
		}
		b.WriteString(chunk.Content)
		resp.ToolCalls = append(resp.ToolCalls, chunk.ToolCalls...)
		if chunk.FinishReason != "" {
			reason = chunk.FinishReason
		}
		if chunk.Usage != nil {
			resp.Metadata.Usage = *chunk.Usage
		}
		if r, ok := chunk.Raw.(*Response); ok {
			resp.GroundingMetadata = r.GroundingMetadata
			resp.CodeExecution = r.CodeExecution
			resp.Structured = r.Structured
		}
	}
	resp.Content = b.String()
	resp.Metadata.FinishReason = CanonicalFinishReason(reason)
	if resp.Metadata.FinishReason == FinishStop && len(resp.ToolCalls) > 0 {
		resp.Metadata.FinishReason = FinishToolUse
	}
	return resp, nil
}
