package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/skosovsky/generations"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var quiet = WithLogger(slog.New(slog.DiscardHandler))

func ExampleSequential() {
	report := Sequential(context.Background(), []string{"a", "", "c"}, func(_ context.Context, s string) (string, error) {
		if s == "" {
			return "", errors.New("empty")
		}
		return strings.ToUpper(s), nil
	}, quiet)
	fmt.Println(report.Values())
	for _, f := range report.Failures() {
		fmt.Println(f.Index, f.Err)
	}
	// Output:
	// [A C]
	// 1 empty
}

func TestSequential_ContinuesOnFailure(t *testing.T) {
	t.Parallel()
	var seen []int
	report := Sequential(t.Context(), []int{1, 2, 3, 4}, func(_ context.Context, n int) (int, error) {
		seen = append(seen, n)
		if n%2 == 0 {
			return 0, fmt.Errorf("item %d", n)
		}
		return n * 10, nil
	}, quiet)
	assert.Equal(t, []int{1, 2, 3, 4}, seen)
	require.Len(t, report.Items, 4)
	assert.Equal(t, []int{10, 30}, report.Values())
	failures := report.Failures()
	require.Len(t, failures, 2)
	assert.Equal(t, 1, failures[0].Index)
	assert.EqualError(t, failures[1].Err, "item 4")
}

func TestSequential_CanceledContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(t.Context())
	calls := 0
	report := Sequential(ctx, []string{"a", "b", "c"}, func(_ context.Context, s string) (string, error) {
		calls++
		cancel()
		return s, nil
	}, quiet)
	assert.Equal(t, 1, calls)
	assert.Equal(t, []string{"a"}, report.Values())
	failures := report.Failures()
	require.Len(t, failures, 2)
	require.ErrorIs(t, failures[0].Err, context.Canceled)
}

func TestSequential_Empty(t *testing.T) {
	t.Parallel()
	report := Sequential(t.Context(), nil, func(context.Context, int) (int, error) { return 0, nil }, quiet)
	assert.Empty(t, report.Items)
	assert.Empty(t, report.Values())
}

func TestAttempts(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		results   []*generations.Response
		errs      []error
		wantCalls int
		wantErr   error
		want      string
	}{
		{
			name:      "first succeeds",
			results:   []*generations.Response{generations.NewResponse("ok")},
			errs:      []error{nil},
			wantCalls: 1,
			want:      "ok",
		},
		{
			name:      "third succeeds",
			results:   []*generations.Response{nil, generations.NewResponse(""), generations.NewResponse("ok")},
			errs:      []error{errors.New("throttled"), nil, nil},
			wantCalls: 3,
			want:      "ok",
		},
		{
			name:      "all empty",
			results:   []*generations.Response{generations.NewResponse(""), generations.NewResponse(""), generations.NewResponse("")},
			errs:      []error{nil, nil, nil},
			wantCalls: 3,
			wantErr:   ErrNoContent,
		},
		{
			name:      "malformed content counts",
			results:   []*generations.Response{generations.NewResponse("{not json")},
			errs:      []error{nil},
			wantCalls: 1,
			want:      "{not json",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			calls := 0
			resp, err := Attempts(t.Context(), DefaultAttempts, func(context.Context) (*generations.Response, error) {
				i := calls
				calls++
				return tt.results[i], tt.errs[i]
			}, quiet)
			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.Content)
		})
	}
}

func TestAttempts_LastErrorKept(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	_, err := Attempts(t.Context(), 0, func(context.Context) (*generations.Response, error) {
		return nil, boom
	}, quiet)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "3 attempts")
}

func TestAttempts_CanceledContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err := Attempts(ctx, 2, func(context.Context) (*generations.Response, error) {
		t.Fatal("must not be called")
		return nil, nil
	}, quiet)
	require.ErrorIs(t, err, context.Canceled)
}
