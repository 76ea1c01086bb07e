// Package registry dispatches a DR method to its back-ends.
//
// Each method declares an ordered chain of back-ends in the catalog. Execute
// normalizes the caller's parameters once, then walks the chain:
//
//	TRY_PRIMARY -> SUCCESS
//	            -> TRY_FALLBACK_1 -> SUCCESS
//	                              -> ... -> TRY_FALLBACK_K -> FAIL
//
// A step is left when its back-end is unavailable or its execution fails
// (including output of the wrong shape). Every transition is logged as a
// warning and recorded as a Notice on the result; FAIL returns an
// AlgorithmUnavailableError carrying one cause per attempted step.
package registry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/artdr/internal/backend"
	"github.com/roach88/artdr/internal/catalog"
	"github.com/roach88/artdr/internal/errdefs"
	"github.com/roach88/artdr/internal/metrics"
	"github.com/roach88/artdr/internal/params"
)

// NoticeKind classifies diagnostic notices.
type NoticeKind string

const (
	NoticeRenamed    NoticeKind = "renamed"
	NoticeDeprecated NoticeKind = "deprecated"
	NoticeDropped    NoticeKind = "dropped"
	NoticeFallback   NoticeKind = "fallback"
)

// Notice is one diagnostic emitted while normalizing or dispatching.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Backend string     `json:"backend,omitempty"`
	Message string     `json:"message"`
}

// Result is a successful execution.
type Result struct {
	Points [][]float64

	// Runtime is the wall-clock time of the whole chain, including
	// alternates that failed before Backend succeeded.
	Runtime time.Duration

	// Backend is the back-end that produced Points.
	Backend string

	// Params are the normalized parameters of the run, in the method's own
	// vocabulary (before any per-step renames).
	Params  params.Params
	Notices []Notice
}

// Registry maps method names to back-end chains.
type Registry struct {
	catalog  *catalog.Catalog
	reducers map[string]backend.Reducer
	logger   *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithClock replaces time.Now for runtime measurement.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// New creates a registry over a compiled catalog and the reducers for its
// back-ends, keyed by back-end name.
func New(c *catalog.Catalog, reducers map[string]backend.Reducer, opts ...Option) *Registry {
	r := &Registry{
		catalog:  c,
		reducers: reducers,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Catalog returns the catalog the registry dispatches from.
func (r *Registry) Catalog() *catalog.Catalog { return r.catalog }

// Normalize applies the method's rename table and default table to p.
// Deprecated keys are moved to their current name when that name is
// absent; when both are present the current key wins and the deprecated
// one is dropped. Defaults are filled afterwards, so a value given under a
// deprecated name is never shadowed by a default. p is not modified.
func (r *Registry) Normalize(method string, p params.Params) (params.Params, []Notice, error) {
	m, err := r.catalog.Method(method)
	if err != nil {
		return nil, nil, err
	}

	out := p.Clone()
	if out == nil {
		out = params.Params{}
	}

	var notices []Notice
	renames := r.catalog.Renames(m)
	for _, from := range sortedKeys(renames) {
		to := renames[from]
		v, ok := out[from]
		if !ok || from == to {
			continue
		}
		delete(out, from)
		if out.Has(to) {
			notices = append(notices, Notice{
				Kind:    NoticeDeprecated,
				Message: fmt.Sprintf("%s: both %q and %q given; ignoring deprecated %q", method, from, to, from),
			})
			continue
		}
		out[to] = v
		notices = append(notices, Notice{
			Kind:    NoticeRenamed,
			Message: fmt.Sprintf("%s: %q is deprecated, use %q", method, from, to),
		})
	}

	for k, v := range m.Defaults() {
		if !out.Has(k) {
			out[k] = v
		}
	}
	return out, notices, nil
}

// Execute runs method over X, falling back along the method's chain.
func (r *Registry) Execute(ctx context.Context, method string, X [][]float64, p params.Params) (*Result, error) {
	m, err := r.catalog.Method(method)
	if err != nil {
		return nil, err
	}
	norm, notices, err := r.Normalize(method, p)
	if err != nil {
		return nil, err
	}
	if len(X) == 0 {
		return nil, errdefs.Validation("subset", "no embeddings sampled")
	}
	for _, n := range notices {
		r.logger.Warn("parameter normalized", zap.String("method", method), zap.String("detail", n.Message))
	}

	// Runtime covers the whole chain, failed alternates included. Each
	// step's share is measured from the end of the previous one.
	start := r.now()
	mark := start

	causes := make([]errdefs.Cause, 0, len(m.Chain))
	for i, step := range m.Chain {
		if i > 0 {
			prev := m.Chain[i-1].Backend
			msg := fmt.Sprintf("%s: %s %s (%v); falling back to %s",
				method, prev, causes[i-1].Kind, causes[i-1].Err, step.Backend)
			notices = append(notices, Notice{Kind: NoticeFallback, Backend: step.Backend, Message: msg})
			r.logger.Warn("falling back",
				zap.String("method", method),
				zap.String("from", prev),
				zap.String("to", step.Backend),
				zap.Error(causes[i-1]),
			)
			r.metrics.ObserveFallback(method, prev, step.Backend)
		}

		args, dropped := r.stepParams(m, step, norm)
		if len(dropped) > 0 {
			notices = append(notices, Notice{
				Kind:    NoticeDropped,
				Backend: step.Backend,
				Message: fmt.Sprintf("%s: %s does not accept %s", method, step.Backend, strings.Join(dropped, ", ")),
			})
		}

		pts, cause := r.attempt(ctx, step.Backend, X, args)
		end := r.now()
		stepTime := end.Sub(mark)
		mark = end
		if cause == nil {
			r.metrics.ObserveAttempt(method, step.Backend, metrics.OutcomeSuccess)
			r.metrics.ObserveRuntime(method, step.Backend, stepTime)
			r.logger.Debug("backend succeeded",
				zap.String("method", method),
				zap.String("backend", step.Backend),
				zap.Duration("backend_runtime", stepTime),
				zap.Duration("runtime", end.Sub(start)),
			)
			return &Result{
				Points:  pts,
				Runtime: end.Sub(start),
				Backend: step.Backend,
				Params:  norm,
				Notices: notices,
			}, nil
		}

		r.metrics.ObserveAttempt(method, step.Backend, string(cause.Kind))
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("execute %s: %w", method, err)
		}
		causes = append(causes, *cause)
	}

	err = &errdefs.AlgorithmUnavailableError{Method: method, Causes: causes}
	r.logger.Warn("all alternates exhausted", zap.String("method", method), zap.Error(err))
	return nil, err
}

// attempt runs one back-end. A non-nil Cause means the step failed.
func (r *Registry) attempt(ctx context.Context, name string, X [][]float64, args params.Params) ([][]float64, *errdefs.Cause) {
	red, ok := r.reducers[name]
	if !ok {
		return nil, &errdefs.Cause{Backend: name, Kind: errdefs.CauseUnavailable, Err: errors.New("no reducer registered")}
	}
	if err := red.Available(ctx); err != nil {
		return nil, &errdefs.Cause{Backend: name, Kind: errdefs.CauseUnavailable, Err: err}
	}

	pts, err := red.FitTransform(ctx, X, args)
	if err != nil {
		kind := errdefs.CauseFailed
		if errors.Is(err, backend.ErrUnavailable) {
			kind = errdefs.CauseUnavailable
		}
		return nil, &errdefs.Cause{Backend: name, Kind: kind, Err: err}
	}
	if err := checkShape(pts, len(X), args); err != nil {
		return nil, &errdefs.Cause{Backend: name, Kind: errdefs.CauseFailed, Err: err}
	}
	return pts, nil
}

// stepParams translates normalized params into the vocabulary of one
// chain step: the step's renames are applied, keys the target does not
// accept are dropped, and the target method's defaults are filled. Keys
// produced by a rename are always kept.
func (r *Registry) stepParams(m *catalog.Method, step catalog.Step, norm params.Params) (params.Params, []string) {
	b, _ := r.catalog.Backend(step.Backend)
	target := b.Accepts

	out := make(params.Params, len(norm))
	renamed := make(map[string]bool, len(step.Rename))
	for _, k := range norm.SortedKeys() {
		to, ok := step.Rename[k]
		if !ok {
			if !renamed[k] {
				out[k] = norm[k]
			}
			continue
		}
		out[to] = norm[k]
		renamed[to] = true
	}

	var dropped []string
	for _, k := range out.SortedKeys() {
		if renamed[k] || r.catalog.Accepts(target, k) {
			continue
		}
		delete(out, k)
		dropped = append(dropped, k)
	}

	if target != m.Name {
		if tm, err := r.catalog.Method(target); err == nil {
			for k, v := range tm.Defaults() {
				if !out.Has(k) {
					out[k] = v
				}
			}
		}
	}
	return out, dropped
}

// checkShape verifies a back-end returned one finite row per input with
// the requested number of components (2 or 3 when unspecified).
func checkShape(pts [][]float64, n int, args params.Params) error {
	if len(pts) != n {
		return fmt.Errorf("backend returned %d rows for %d inputs", len(pts), n)
	}
	want := 0
	if v, ok := args["n_components"]; ok {
		if i, ok := params.AsInt(v); ok {
			want = int(i)
		}
	}
	for i, row := range pts {
		switch {
		case want > 0 && len(row) != want:
			return fmt.Errorf("row %d has %d components, want %d", i, len(row), want)
		case want == 0 && len(row) != 2 && len(row) != 3:
			return fmt.Errorf("row %d has %d components, want 2 or 3", i, len(row))
		case want == 0 && len(row) != len(pts[0]):
			return fmt.Errorf("row %d has %d components, want %d", i, len(row), len(pts[0]))
		}
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("row %d has a non-finite coordinate", i)
			}
		}
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
