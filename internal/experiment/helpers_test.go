package experiment

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/roach88/artdr/internal/backend"
	"github.com/roach88/artdr/internal/catalog"
	"github.com/roach88/artdr/internal/params"
	"github.com/roach88/artdr/internal/registry"
	"github.com/roach88/artdr/internal/sampler"
	"github.com/roach88/artdr/internal/store"
	"github.com/roach88/artdr/internal/testutil"
)

// testEnv is a runner over a temp-dir database with every back-end faked.
type testEnv struct {
	runner *Runner
	store  *store.Store
	fakes  map[string]*testutil.FakeReducer
}

// halfSlope projects row i to (i, i/2) so no coordinate is negative zero.
func halfSlope(X [][]float64, p params.Params) [][]float64 {
	k := 2
	if v, ok := p["n_components"]; ok {
		if n, ok := params.AsInt(v); ok {
			k = int(n)
		}
	}
	out := make([][]float64, len(X))
	for i := range X {
		row := make([]float64, k)
		row[0] = float64(i)
		row[1] = float64(i) / 2
		out[i] = row
	}
	return out
}

func newTestEnv(t *testing.T, nArtists, perArtist int, opts ...Option) *testEnv {
	t.Helper()

	st, err := store.Open(
		filepath.Join(t.TempDir(), "test.db"),
		store.WithClock(testutil.NewDeterministicClock(time.Hour).Now),
	)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	seed(t, st, nArtists, perArtist)

	c, err := catalog.Default()
	require.NoError(t, err)

	fakes := make(map[string]*testutil.FakeReducer)
	reducers := make(map[string]backend.Reducer)
	for _, name := range c.BackendNames() {
		f := testutil.NewFakeReducer(name)
		f.Output = halfSlope
		fakes[name] = f
		reducers[name] = f
	}
	reg := registry.New(c, reducers,
		registry.WithClock(testutil.NewDeterministicClock(1500*time.Millisecond).Now),
	)

	opts = append([]Option{WithRunIDGenerator(testutil.NewFixedRunIDGenerator(""))}, opts...)
	r := NewRunner(sampler.New(st, zap.NewNop()), reg, st, opts...)
	return &testEnv{runner: r, store: st, fakes: fakes}
}

func seed(t *testing.T, st *store.Store, nArtists, perArtist int) {
	t.Helper()
	_, embs := testutil.Gallery(nArtists, perArtist, 4)
	rows := make([]store.Embedding, len(embs))
	for i, e := range embs {
		rows[i] = store.Embedding{Filename: e.Filename, Artist: e.Artist, Vector: e.Vector}
	}
	require.NoError(t, st.WriteEmbeddings(context.Background(), rows))
}

func int64p(v int64) *int64 { return &v }
