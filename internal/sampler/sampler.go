// Package sampler selects the bounded working set of embeddings a DR run
// operates on.
package sampler

import (
	"context"
	"fmt"
	"math/rand/v2"

	"go.uber.org/zap"

	"github.com/roach88/artdr/internal/errdefs"
	"github.com/roach88/artdr/internal/store"
)

// Strategy names.
const (
	Random       = "random"
	ArtistFirst5 = "artist_first5"
)

// MaxSize is the largest subset a run may request.
const MaxSize = store.MaxSubsetSize

// perArtist caps artist_first5 rows per artist.
const perArtist = 5

var strategies = []string{ArtistFirst5, Random}

// Strategies lists the known strategy names.
func Strategies() []string {
	return append([]string(nil), strategies...)
}

// Source is the read side of the embedding store.
type Source interface {
	Filenames(ctx context.Context) ([]string, error)
	Embeddings(ctx context.Context, filenames []string) ([]store.Embedding, error)
	ArtistFirstN(ctx context.Context, perArtist, limit int) ([]store.Embedding, error)
}

// Meta identifies the embedding behind one matrix row.
type Meta struct {
	Filename string `json:"filename"`
	Artist   string `json:"artist"`
}

// Subset is a sampled matrix with row-aligned metadata.
type Subset struct {
	Matrix [][]float64
	Meta   []Meta
}

// Len returns the number of rows.
func (s Subset) Len() int { return len(s.Matrix) }

// Sampler draws subsets from a Source.
type Sampler struct {
	src    Source
	logger *zap.Logger
}

// New creates a sampler. A nil logger discards output.
func New(src Source, logger *zap.Logger) *Sampler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sampler{src: src, logger: logger}
}

// Sample returns at most size rows chosen by strategy.
//
// random draws without replacement. Candidates are taken in filename order
// and shuffled with a PCG source seeded from seed, so the same seed over
// the same data always yields the same subset. A nil seed draws a fresh one.
//
// artist_first5 takes each artist's first five filenames, artists in
// ascending order, truncated to size.
func (s *Sampler) Sample(ctx context.Context, strategy string, size int, seed *int64) (Subset, error) {
	if size < 1 || size > MaxSize {
		return Subset{}, errdefs.Validation("subset_size", "must be in [1,%d], got %d", MaxSize, size)
	}

	var (
		embs []store.Embedding
		err  error
	)
	switch strategy {
	case Random:
		embs, err = s.random(ctx, size, seed)
	case ArtistFirst5:
		embs, err = s.src.ArtistFirstN(ctx, perArtist, size)
	default:
		return Subset{}, errdefs.Validation("subset_strategy", "unknown strategy %q (available: %v)", strategy, strategies)
	}
	if err != nil {
		return Subset{}, fmt.Errorf("sample %s: %w", strategy, err)
	}

	sub, err := toSubset(embs)
	if err != nil {
		return Subset{}, fmt.Errorf("sample %s: %w", strategy, err)
	}
	s.logger.Debug("sampled subset",
		zap.String("strategy", strategy),
		zap.Int("requested", size),
		zap.Int("rows", sub.Len()),
	)
	return sub, nil
}

func (s *Sampler) random(ctx context.Context, size int, seed *int64) ([]store.Embedding, error) {
	names, err := s.src.Filenames(ctx)
	if err != nil {
		return nil, err
	}

	var src uint64
	if seed != nil {
		src = uint64(*seed)
	} else {
		src = rand.Uint64()
	}
	rng := rand.New(rand.NewPCG(src, 0))
	rng.Shuffle(len(names), func(i, j int) { names[i], names[j] = names[j], names[i] })

	if len(names) > size {
		names = names[:size]
	}
	return s.src.Embeddings(ctx, names)
}

// toSubset converts float32 vectors into a float64 matrix, checking that
// every vector has the same dimension.
func toSubset(embs []store.Embedding) (Subset, error) {
	sub := Subset{
		Matrix: make([][]float64, 0, len(embs)),
		Meta:   make([]Meta, 0, len(embs)),
	}
	dim := -1
	for _, e := range embs {
		if dim < 0 {
			dim = len(e.Vector)
		}
		if len(e.Vector) == 0 || len(e.Vector) != dim {
			return Subset{}, &errdefs.StorageIntegrityError{
				Ref:     "filename",
				Value:   e.Filename,
				Message: fmt.Sprintf("embedding has dimension %d, want %d", len(e.Vector), dim),
			}
		}
		row := make([]float64, dim)
		for i, f := range e.Vector {
			row[i] = float64(f)
		}
		sub.Matrix = append(sub.Matrix, row)
		sub.Meta = append(sub.Meta, Meta{Filename: e.Filename, Artist: e.Artist})
	}
	return sub, nil
}
