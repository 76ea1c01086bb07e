package sampler

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/artdr/internal/errdefs"
	"github.com/roach88/artdr/internal/store"
	"github.com/roach88/artdr/internal/testutil"
)

func newGalleryStore(t *testing.T, nArtists, perArtist int) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	_, embs := testutil.Gallery(nArtists, perArtist, 3)
	rows := make([]store.Embedding, len(embs))
	for i, e := range embs {
		rows[i] = store.Embedding{Filename: e.Filename, Artist: e.Artist, Vector: e.Vector}
	}
	require.NoError(t, s.WriteEmbeddings(context.Background(), rows))
	return s
}

func seed(v int64) *int64 { return &v }

// countingSource records whether any data was read.
type countingSource struct {
	Source
	reads int
}

func (c *countingSource) Filenames(ctx context.Context) ([]string, error) {
	c.reads++
	return c.Source.Filenames(ctx)
}

func (c *countingSource) ArtistFirstN(ctx context.Context, n, limit int) ([]store.Embedding, error) {
	c.reads++
	return c.Source.ArtistFirstN(ctx, n, limit)
}

func TestSampleSizeBounds(t *testing.T) {
	s := New(newGalleryStore(t, 2, 3), nil)

	for _, size := range []int{0, -1, 501} {
		_, err := s.Sample(context.Background(), Random, size, nil)
		require.Error(t, err, "size %d", size)
		assert.True(t, errdefs.IsValidation(err))
	}

	sub, err := s.Sample(context.Background(), Random, 500, nil)
	require.NoError(t, err)
	assert.Equal(t, 6, sub.Len(), "never more than available")
}

func TestSampleUnknownStrategyReadsNothing(t *testing.T) {
	src := &countingSource{Source: newGalleryStore(t, 1, 1)}
	s := New(src, nil)

	_, err := s.Sample(context.Background(), "bogus", 10, nil)
	require.Error(t, err)
	assert.True(t, errdefs.IsValidation(err))
	assert.Equal(t, 0, src.reads)
}

func TestSampleRandomReproducible(t *testing.T) {
	s := New(newGalleryStore(t, 6, 5), nil)
	ctx := context.Background()

	a, err := s.Sample(ctx, Random, 10, seed(42))
	require.NoError(t, err)
	b, err := s.Sample(ctx, Random, 10, seed(42))
	require.NoError(t, err)
	assert.Equal(t, a.Meta, b.Meta)
	assert.Equal(t, a.Matrix, b.Matrix)

	c, err := s.Sample(ctx, Random, 10, seed(7))
	require.NoError(t, err)
	assert.NotEqual(t, a.Meta, c.Meta)
}

func TestSampleRandomWithoutReplacement(t *testing.T) {
	s := New(newGalleryStore(t, 4, 5), nil)

	sub, err := s.Sample(context.Background(), Random, 15, nil)
	require.NoError(t, err)
	require.Equal(t, 15, sub.Len())

	seen := map[string]bool{}
	for _, m := range sub.Meta {
		assert.False(t, seen[m.Filename], "duplicate %s", m.Filename)
		seen[m.Filename] = true
	}
}

func TestSampleRowsAlignWithMeta(t *testing.T) {
	s := New(newGalleryStore(t, 3, 3), nil)

	sub, err := s.Sample(context.Background(), Random, 9, seed(1))
	require.NoError(t, err)

	_, embs := testutil.Gallery(3, 3, 3)
	byName := map[string][]float32{}
	for _, e := range embs {
		byName[e.Filename] = e.Vector
	}
	for i, m := range sub.Meta {
		want := byName[m.Filename]
		require.Len(t, sub.Matrix[i], len(want))
		for j := range want {
			assert.Equal(t, float64(want[j]), sub.Matrix[i][j])
		}
	}
}

func TestSampleArtistFirst5(t *testing.T) {
	s := New(newGalleryStore(t, 4, 8), nil)

	sub, err := s.Sample(context.Background(), ArtistFirst5, 500, nil)
	require.NoError(t, err)
	assert.Equal(t, 20, sub.Len())

	counts := map[string]int{}
	for _, m := range sub.Meta {
		counts[m.Artist]++
	}
	for artist, n := range counts {
		assert.LessOrEqual(t, n, 5, artist)
	}

	truncated, err := s.Sample(context.Background(), ArtistFirst5, 12, nil)
	require.NoError(t, err)
	assert.Equal(t, 12, truncated.Len())
	assert.Equal(t, sub.Meta[:12], truncated.Meta)
}

func TestSampleInconsistentDimension(t *testing.T) {
	st := newGalleryStore(t, 1, 2)
	require.NoError(t, st.WriteEmbeddings(context.Background(), []store.Embedding{
		{Filename: "odd.jpg", Artist: "artist_00", Vector: []float32{1, 2}},
	}))
	s := New(st, nil)

	_, err := s.Sample(context.Background(), ArtistFirst5, 10, nil)
	require.Error(t, err)
	assert.True(t, errdefs.IsStorageIntegrity(err))
}

func TestSampleEmptyStore(t *testing.T) {
	s := New(newGalleryStore(t, 0, 0), nil)

	sub, err := s.Sample(context.Background(), Random, 10, seed(3))
	require.NoError(t, err)
	assert.Equal(t, 0, sub.Len())
}

func TestStrategies(t *testing.T) {
	assert.Equal(t, []string{"artist_first5", "random"}, Strategies())
}
