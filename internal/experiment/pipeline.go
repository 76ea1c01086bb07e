package experiment

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/roach88/artdr/internal/errdefs"
	"github.com/roach88/artdr/internal/metrics"
	"github.com/roach88/artdr/internal/params"
	"github.com/roach88/artdr/internal/registry"
	"github.com/roach88/artdr/internal/sampler"
	"github.com/roach88/artdr/internal/store"
)

// Store is the persistence surface a run writes through.
type Store interface {
	Reader
	CreateConfig(ctx context.Context, in store.ConfigInput) (int64, error)
	UpsertConfig(ctx context.Context, id int64, in store.ConfigInput) error
	DeleteConfig(ctx context.Context, id int64) (int64, error)
	SavePoints(ctx context.Context, configID int64, pts []store.PointInput) error
}

// RunIDGenerator produces run identifiers.
type RunIDGenerator interface {
	Generate() string
}

// UUIDGenerator produces time-ordered UUIDv7 run ids.
type UUIDGenerator struct{}

func (UUIDGenerator) Generate() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Publisher uploads an encoded payload under key and returns where it went.
type Publisher interface {
	Publish(ctx context.Context, key string, payload *Payload) (string, error)
}

// Request describes one experiment.
type Request struct {
	Method   string
	Strategy string
	Size     int
	Params   params.Params

	// ConfigID, when set, overwrites that config instead of creating one.
	ConfigID *int64

	// Seed overrides params["random_state"] as the sampler seed.
	Seed *int64
}

// Outcome is a completed run.
type Outcome struct {
	RunID    string            `json:"run_id"`
	ConfigID int64             `json:"config_id"`
	Backend  string            `json:"backend"`
	Notices  []registry.Notice `json:"notices,omitempty"`
	Location string            `json:"published_to,omitempty"`
	Payload  *Payload          `json:"payload"`
}

// Runner executes experiments.
type Runner struct {
	sampler   *sampler.Sampler
	registry  *registry.Registry
	store     Store
	assembler *Assembler
	ids       RunIDGenerator
	logger    *zap.Logger
	metrics   *metrics.Metrics
	publisher Publisher
}

// Option configures a Runner.
type Option func(*Runner)

func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithRunIDGenerator replaces the UUIDv7 generator.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(r *Runner) { r.ids = g }
}

// WithPublisher uploads every successful payload.
func WithPublisher(p Publisher) Option {
	return func(r *Runner) { r.publisher = p }
}

// NewRunner wires a runner. The sampler must read from the same database
// st writes to.
func NewRunner(smp *sampler.Sampler, reg *registry.Registry, st Store, opts ...Option) *Runner {
	r := &Runner{
		sampler:   smp,
		registry:  reg,
		store:     st,
		assembler: NewAssembler(st),
		ids:       UUIDGenerator{},
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Assembler returns the runner's read-only assembler.
func (r *Runner) Assembler() *Assembler { return r.assembler }

// Run executes one experiment and returns its payload.
//
// Nothing is read or written until the request validates. When the config
// is newly created and saving its points fails, the config row is removed
// again so a failed run leaves no partial state.
func (r *Runner) Run(ctx context.Context, req Request) (*Outcome, error) {
	runID := r.ids.Generate()
	log := r.logger.With(zap.String("run_id", runID), zap.String("method", req.Method))

	out, err := r.run(ctx, runID, log, req)
	if err != nil {
		r.metrics.ObserveRun(req.Method, metrics.OutcomeFailed)
		log.Warn("run failed", zap.Error(err))
		return nil, err
	}
	r.metrics.ObserveRun(req.Method, metrics.OutcomeSuccess)
	r.metrics.AddPoints(len(out.Payload.Points))
	log.Info("run complete",
		zap.Int64("config_id", out.ConfigID),
		zap.String("backend", out.Backend),
		zap.Int("points", len(out.Payload.Points)),
	)
	return out, nil
}

func (r *Runner) run(ctx context.Context, runID string, log *zap.Logger, req Request) (*Outcome, error) {
	checked, err := r.validate(req)
	if err != nil {
		return nil, err
	}

	sub, err := r.sampler.Sample(ctx, req.Strategy, req.Size, seedFor(req, checked))
	if err != nil {
		return nil, err
	}
	if sub.Len() == 0 {
		return nil, errdefs.Validation("subset", "strategy %q selected no embeddings", req.Strategy)
	}
	log.Debug("subset sampled", zap.String("strategy", req.Strategy), zap.Int("rows", sub.Len()))

	res, err := r.registry.Execute(ctx, req.Method, sub.Matrix, checked)
	if err != nil {
		return nil, err
	}

	in := store.ConfigInput{
		Method:         req.Method,
		SubsetStrategy: req.Strategy,
		SubsetSize:     req.Size,
		Params:         res.Params,
		Runtime:        res.Runtime,
	}
	configID, created, err := r.persistConfig(ctx, req.ConfigID, in)
	if err != nil {
		return nil, err
	}

	if err := r.store.SavePoints(ctx, configID, toPoints(sub, res.Points)); err != nil {
		if created {
			if _, derr := r.store.DeleteConfig(ctx, configID); derr != nil {
				log.Error("failed to remove config after point save failure",
					zap.Int64("config_id", configID), zap.Error(derr))
			}
		}
		return nil, err
	}

	payload, err := r.assembler.Load(ctx, configID)
	if err != nil {
		return nil, err
	}

	out := &Outcome{
		RunID:    runID,
		ConfigID: configID,
		Backend:  res.Backend,
		Notices:  res.Notices,
		Payload:  payload,
	}

	if r.publisher != nil {
		loc, err := r.publisher.Publish(ctx, ObjectKey(configID, runID), payload)
		if err != nil {
			return nil, fmt.Errorf("publish config %d: %w", configID, err)
		}
		out.Location = loc
		log.Info("payload published", zap.String("location", loc))
	}
	return out, nil
}

// validate checks everything about req that can be checked without data
// and returns the params in typed, schema-normal form.
func (r *Runner) validate(req Request) (params.Params, error) {
	checked, err := r.registry.Catalog().Check(req.Method, req.Params)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(sampler.Strategies(), req.Strategy) {
		return nil, errdefs.Validation("subset_strategy", "unknown strategy %q (available: %v)", req.Strategy, sampler.Strategies())
	}
	if req.Size < 1 || req.Size > sampler.MaxSize {
		return nil, errdefs.Validation("subset_size", "must be in [1,%d], got %d", sampler.MaxSize, req.Size)
	}
	if req.ConfigID != nil && *req.ConfigID < 1 {
		return nil, errdefs.Validation("config_id", "must be positive, got %d", *req.ConfigID)
	}
	return checked, nil
}

func (r *Runner) persistConfig(ctx context.Context, id *int64, in store.ConfigInput) (int64, bool, error) {
	if id == nil {
		newID, err := r.store.CreateConfig(ctx, in)
		if err != nil {
			return 0, false, err
		}
		return newID, true, nil
	}
	if err := r.store.UpsertConfig(ctx, *id, in); err != nil {
		return 0, false, err
	}
	return *id, false, nil
}

// seedFor picks the sampler seed: an explicit seed, else random_state.
func seedFor(req Request, p params.Params) *int64 {
	if req.Seed != nil {
		return req.Seed
	}
	if v, ok := p["random_state"]; ok {
		if n, ok := params.AsInt(v); ok {
			return &n
		}
	}
	return nil
}

func toPoints(sub sampler.Subset, coords [][]float64) []store.PointInput {
	pts := make([]store.PointInput, len(coords))
	for i, row := range coords {
		pts[i] = store.PointInput{
			Filename: sub.Meta[i].Filename,
			Artist:   sub.Meta[i].Artist,
			X:        row[0],
			Y:        row[1],
		}
		if len(row) == 3 {
			z := row[2]
			pts[i].Z = &z
		}
	}
	return pts
}

// ObjectKey is where a run's payload is published.
func ObjectKey(configID int64, runID string) string {
	return fmt.Sprintf("configs/%d/%s.json", configID, runID)
}
