package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/roach88/artdr/internal/backend"
	"github.com/roach88/artdr/internal/catalog"
	"github.com/roach88/artdr/internal/store"
	"github.com/roach88/artdr/internal/testutil"
)

// cliEnv is a seeded database plus fake back-ends shared by the commands
// executed in one test.
type cliEnv struct {
	db       string
	reducers map[string]backend.Reducer
	fakes    map[string]*testutil.FakeReducer
}

func newCLIEnv(t *testing.T, nArtists, perArtist int) *cliEnv {
	t.Helper()
	db := filepath.Join(t.TempDir(), "art.sqlite")

	st, err := store.Open(db)
	require.NoError(t, err)
	_, embs := testutil.Gallery(nArtists, perArtist, 4)
	rows := make([]store.Embedding, len(embs))
	for i, e := range embs {
		rows[i] = store.Embedding{Filename: e.Filename, Artist: e.Artist, Vector: e.Vector}
	}
	require.NoError(t, st.WriteEmbeddings(context.Background(), rows))
	require.NoError(t, st.Close())

	c, err := catalog.Default()
	require.NoError(t, err)
	env := &cliEnv{
		db:       db,
		reducers: make(map[string]backend.Reducer),
		fakes:    make(map[string]*testutil.FakeReducer),
	}
	for _, name := range c.BackendNames() {
		f := testutil.NewFakeReducer(name)
		env.fakes[name] = f
		env.reducers[name] = f
	}
	return env
}

// execute runs the root command with --db set and returns stdout, stderr
// and the command error.
func (e *cliEnv) execute(args ...string) (string, string, error) {
	opts := &RootOptions{
		Reducers: e.reducers,
		RunIDs:   testutil.NewFixedRunIDGenerator(""),
		Logger:   zap.NewNop(),
	}
	cmd := NewRootCommandWithOptions(opts)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--db", e.db}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// decodeResponse parses a JSON envelope, re-decoding data into v when v
// is non-nil.
func decodeResponse(t *testing.T, out string, v any) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	if v != nil && resp.Data != nil {
		raw, err := json.Marshal(resp.Data)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, v))
	}
	return resp
}
