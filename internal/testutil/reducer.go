package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/artdr/internal/backend"
	"github.com/roach88/artdr/internal/params"
)

// FakeReducer is a scripted backend.Reducer.
//
// With no errors set it returns one row per input whose coordinates are
// (i, -i) padded to n_components, so results are easy to assert on.
type FakeReducer struct {
	ReducerName string

	// Unavailable, when set, is returned (wrapped in ErrUnavailable) by
	// Available.
	Unavailable error

	// Err, when set, is returned by FitTransform.
	Err error

	// OnFit, when set, runs at the start of every FitTransform call.
	OnFit func()

	// Output, when set, replaces the default projection.
	Output func(X [][]float64, p params.Params) [][]float64

	mu    sync.Mutex
	calls []params.Params
}

var _ backend.Reducer = (*FakeReducer)(nil)

// NewFakeReducer returns a fake that always succeeds.
func NewFakeReducer(name string) *FakeReducer {
	return &FakeReducer{ReducerName: name}
}

func (f *FakeReducer) Name() string { return f.ReducerName }

func (f *FakeReducer) Available(context.Context) error {
	if f.Unavailable != nil {
		return fmt.Errorf("%w: %v", backend.ErrUnavailable, f.Unavailable)
	}
	return nil
}

func (f *FakeReducer) FitTransform(ctx context.Context, X [][]float64, p params.Params) ([][]float64, error) {
	f.mu.Lock()
	f.calls = append(f.calls, p.Clone())
	f.mu.Unlock()

	if f.OnFit != nil {
		f.OnFit()
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.Err != nil {
		return nil, f.Err
	}
	if f.Output != nil {
		return f.Output(X, p), nil
	}

	k := 2
	if v, ok := p["n_components"]; ok {
		if i, ok := params.AsInt(v); ok {
			k = int(i)
		}
	}
	out := make([][]float64, len(X))
	for i := range X {
		row := make([]float64, k)
		row[0] = float64(i)
		row[1] = -float64(i)
		out[i] = row
	}
	return out, nil
}

// Calls returns the params of every FitTransform call, in order.
func (f *FakeReducer) Calls() []params.Params {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]params.Params, len(f.calls))
	copy(out, f.calls)
	return out
}

// FakeReducers builds one succeeding fake per name.
func FakeReducers(names ...string) map[string]backend.Reducer {
	out := make(map[string]backend.Reducer, len(names))
	for _, n := range names {
		out[n] = NewFakeReducer(n)
	}
	return out
}
