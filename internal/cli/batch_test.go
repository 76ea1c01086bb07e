package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePlan(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestBatch(t *testing.T) {
	env := newCLIEnv(t, 2, 3)
	plan := writePlan(t, `
name: sweep
runs:
  - method: umap
    subset_strategy: random
    subset_size: 4
    params: {n_neighbors: 20}
  - method: pca
    subset_strategy: artist_first5
    subset_size: 6
`)

	stdout, _, err := env.execute("batch", plan, "--format", "json")
	require.NoError(t, err)

	var res BatchResult
	decodeResponse(t, stdout, &res)
	assert.Equal(t, "sweep", res.Plan)
	assert.Equal(t, 0, res.Failed)
	require.Len(t, res.Steps, 2)
	assert.Equal(t, BatchStep{Index: 0, Method: "umap", ConfigID: 1, Backend: "umap", Points: 4}, res.Steps[0])
	assert.Equal(t, BatchStep{Index: 1, Method: "pca", ConfigID: 2, Backend: "pca", Points: 6}, res.Steps[1])
}

func TestBatchContinueOnError(t *testing.T) {
	env := newCLIEnv(t, 1, 2)
	plan := writePlan(t, `
name: mixed
continue_on_error: true
runs:
  - {method: umap, subset_strategy: bogus, subset_size: 2}
  - {method: pca, subset_strategy: random, subset_size: 2}
`)

	stdout, _, err := env.execute("batch", plan)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stdout, "[0] umap  FAILED")
	assert.Contains(t, stdout, "[1] pca  config 1  pca  2 points")
	assert.Contains(t, stdout, "1 of 2 run(s) failed")
}

func TestBatchInvalidPlan(t *testing.T) {
	env := newCLIEnv(t, 1, 1)
	plan := writePlan(t, "name: typo\nrunz: []\n")

	_, stderr, err := env.execute("batch", plan)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stderr, "failed to parse YAML")
}
