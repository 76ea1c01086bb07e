// Package backend executes concrete DR implementations.
//
// A Reducer is one back-end named in the catalog. exec back-ends run an
// external command that speaks JSON over stdin/stdout; native back-ends
// run in process. The registry decides which Reducer to try and in what
// order; this package only reports whether a back-end could be loaded and
// what it produced.
package backend

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/roach88/artdr/internal/catalog"
	"github.com/roach88/artdr/internal/params"
)

// ErrUnavailable marks a back-end whose implementation cannot be loaded.
// Reducers wrap it so the registry can tell "not installed" from "ran and
// failed".
var ErrUnavailable = errors.New("backend unavailable")

// Reducer is the boundary between the registry and a DR implementation.
type Reducer interface {
	Name() string

	// Available probes whether the implementation can be loaded.
	Available(ctx context.Context) error

	// FitTransform projects X (N rows) into N low-dimensional points.
	FitTransform(ctx context.Context, X [][]float64, p params.Params) ([][]float64, error)
}

// Options configures reducer construction.
type Options struct {
	// Python is the interpreter for exec back-ends.
	Python string

	// Args replaces the arguments passed to Python. The default runs the
	// embedded driver.
	Args []string

	Logger *zap.Logger
}

// Build constructs the Reducer for one catalog entry.
func Build(b catalog.Backend, opts Options) (Reducer, error) {
	switch b.Kind {
	case catalog.KindExec:
		return NewExec(b, opts), nil
	case catalog.KindNative:
		switch b.Name {
		case "pca":
			return PCA{}, nil
		}
		return nil, fmt.Errorf("build backend %s: no native implementation", b.Name)
	}
	return nil, fmt.Errorf("build backend %s: unknown kind %q", b.Name, b.Kind)
}

// BuildAll constructs a Reducer for every back-end in the catalog.
func BuildAll(c *catalog.Catalog, opts Options) (map[string]Reducer, error) {
	out := make(map[string]Reducer, len(c.Backends))
	for _, name := range c.BackendNames() {
		b, _ := c.Backend(name)
		r, err := Build(b, opts)
		if err != nil {
			return nil, err
		}
		out[name] = r
	}
	return out, nil
}

func validateMatrix(X [][]float64) (rows, cols int, err error) {
	if len(X) == 0 {
		return 0, 0, errors.New("empty input matrix")
	}
	cols = len(X[0])
	if cols == 0 {
		return 0, 0, errors.New("input rows have no columns")
	}
	for i, row := range X {
		if len(row) != cols {
			return 0, 0, fmt.Errorf("row %d has %d columns, want %d", i, len(row), cols)
		}
	}
	return len(X), cols, nil
}
