// Package batch holds the two call-site policies applications layer over dispatch: a sequential
// batch that keeps going when an item fails, and a bounded attempt loop around one operation.
// Neither waits between calls.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/skosovsky/generations"
)

// DefaultAttempts is the attempt bound of Attempts.
const DefaultAttempts = 3

// ErrNoContent reports that every attempt returned a response without content.
var ErrNoContent = errors.New("batch: response has no content")

// Option configures Sequential and Attempts.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger for item failures and retried attempts. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func apply(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Item is the outcome of one batch element.
type Item[O any] struct {
	Index int
	Value O
	Err   error
}

// Report lists item outcomes in input order.
type Report[O any] struct {
	Items []Item[O]
}

// Values returns the successful values in input order.
func (r Report[O]) Values() []O {
	var out []O
	for _, it := range r.Items {
		if it.Err == nil {
			out = append(out, it.Value)
		}
	}
	return out
}

// Failures returns the failed items in input order.
func (r Report[O]) Failures() []Item[O] {
	var out []Item[O]
	for _, it := range r.Items {
		if it.Err != nil {
			out = append(out, it)
		}
	}
	return out
}

// Sequential calls fn for each input in order. A failing item is recorded and skipped; the batch
// continues. When ctx is done the remaining items are recorded with the context error.
func Sequential[I, O any](ctx context.Context, inputs []I, fn func(context.Context, I) (O, error), opts ...Option) Report[O] {
	o := apply(opts)
	report := Report[O]{Items: make([]Item[O], 0, len(inputs))}
	for i, in := range inputs {
		if err := ctx.Err(); err != nil {
			report.Items = append(report.Items, Item[O]{Index: i, Err: err})
			continue
		}
		v, err := fn(ctx, in)
		if err != nil {
			o.logger.WarnContext(ctx, "batch item failed", slog.Int("index", i), slog.Any("error", err))
		}
		report.Items = append(report.Items, Item[O]{Index: i, Value: v, Err: err})
	}
	return report
}

// Attempts calls fn up to n times (DefaultAttempts when n < 1) and returns the first response
// with non-empty content. Content is the only success check; a response whose content is
// malformed still counts as a success. After the last attempt the last error is returned, or
// ErrNoContent when the calls succeeded without content.
func Attempts(ctx context.Context, n int, fn func(context.Context) (*generations.Response, error), opts ...Option) (*generations.Response, error) {
	if n < 1 {
		n = DefaultAttempts
	}
	o := apply(opts)
	var last error
	for attempt := 1; attempt <= n; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		resp, err := fn(ctx)
		if err == nil && resp != nil && resp.Content != "" {
			return resp, nil
		}
		if err == nil {
			err = ErrNoContent
		}
		last = err
		o.logger.WarnContext(ctx, "attempt failed",
			slog.Int("attempt", attempt), slog.Int("of", n), slog.Any("error", err))
	}
	return nil, fmt.Errorf("batch: %d attempts: %w", n, last)
}
