package cli

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/artdr/internal/experiment"
	"github.com/roach88/artdr/internal/params"
)

func TestRunMissingMethodFlag(t *testing.T) {
	env := newCLIEnv(t, 1, 1)

	_, _, err := env.execute("run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
	assert.Contains(t, err.Error(), "method")
}

func TestRunTextPrintsPayload(t *testing.T) {
	env := newCLIEnv(t, 2, 3)

	stdout, _, err := env.execute("run", "--method", "umap", "--size", "4", "--param", "n_neighbors=15")
	require.NoError(t, err)

	var payload experiment.Payload
	require.NoError(t, json.Unmarshal([]byte(stdout), &payload), stdout)
	assert.Equal(t, int64(1), payload.Config.ConfigID)
	assert.Equal(t, "umap", payload.Config.Method)
	assert.Equal(t, params.Params{"n_neighbors": params.Int(15), "n_components": params.Int(2)}, payload.Config.Params)
	assert.Len(t, payload.Points, 4)
}

func TestRunJSONEnvelope(t *testing.T) {
	env := newCLIEnv(t, 2, 3)

	stdout, _, err := env.execute("run", "--method", "pca", "--size", "5", "--seed", "3", "--format", "json")
	require.NoError(t, err)

	var out experiment.Outcome
	resp := decodeResponse(t, stdout, &out)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "test-run-default", out.RunID)
	assert.Equal(t, "pca", out.Backend)
	assert.Len(t, out.Payload.Points, 5)
}

func TestRunClampsSize(t *testing.T) {
	env := newCLIEnv(t, 1, 3)

	stdout, _, err := env.execute("run", "--method", "umap", "--size", "10000", "--format", "json")
	require.NoError(t, err)

	var out experiment.Outcome
	decodeResponse(t, stdout, &out)
	assert.Equal(t, 500, out.Payload.Config.SubsetSize)
	assert.Len(t, out.Payload.Points, 3, "never more rows than available")
}

func TestRunOverwritesConfig(t *testing.T) {
	env := newCLIEnv(t, 2, 5)

	_, _, err := env.execute("run", "--method", "umap", "--size", "10")
	require.NoError(t, err)

	stdout, _, err := env.execute("run", "--method", "tsne", "--strategy", "artist_first5",
		"--size", "6", "--config-id", "1", "--format", "json")
	require.NoError(t, err)

	var out experiment.Outcome
	decodeResponse(t, stdout, &out)
	assert.Equal(t, int64(1), out.ConfigID)
	assert.Equal(t, "tsne", out.Payload.Config.Method)
	assert.Len(t, out.Payload.Points, 6)
}

func TestRunValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"bogus strategy", []string{"--method", "umap", "--strategy", "bogus"}},
		{"unknown method", []string{"--method", "nope"}},
		{"malformed param", []string{"--method", "umap", "--param", "n_neighbors"}},
		{"param out of range", []string{"--method", "umap", "--param", "n_neighbors=500"}},
		{"unknown param", []string{"--method", "umap", "--param", "bogus=1"}},
		{"publish unconfigured", []string{"--method", "umap", "--publish"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newCLIEnv(t, 1, 2)

			stdout, _, err := env.execute(append([]string{"run", "--format", "json"}, tt.args...)...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))

			resp := decodeResponse(t, stdout, nil)
			assert.Equal(t, "error", resp.Status)
			require.NotNil(t, resp.Error)
			assert.Equal(t, "VALIDATION", resp.Error.Code)
		})
	}
}

func TestRunAlgorithmUnavailable(t *testing.T) {
	env := newCLIEnv(t, 1, 2)
	env.fakes["opentsne"].Unavailable = errors.New("No module named 'openTSNE'")
	env.fakes["sklearn_tsne"].Err = errors.New("exit status 1")

	stdout, _, err := env.execute("run", "--method", "tsne", "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string `json:"status"`
		Error  struct {
			Code    string        `json:"code"`
			Details []CauseDetail `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ALGORITHM_UNAVAILABLE", resp.Error.Code)
	require.Len(t, resp.Error.Details, 2)
	assert.Equal(t, "opentsne", resp.Error.Details[0].Backend)
	assert.Equal(t, "unavailable", resp.Error.Details[0].Kind)
	assert.Equal(t, "sklearn_tsne", resp.Error.Details[1].Backend)
	assert.Equal(t, "failed", resp.Error.Details[1].Kind)
}

func TestRunTextErrorGoesToStderr(t *testing.T) {
	env := newCLIEnv(t, 1, 2)

	stdout, stderr, err := env.execute("run", "--method", "umap", "--strategy", "bogus")
	require.Error(t, err)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "Error [VALIDATION]")
}

func TestRunVerboseNotices(t *testing.T) {
	env := newCLIEnv(t, 1, 2)
	env.fakes["phate"].Unavailable = errors.New("No module named 'phate'")

	stdout, stderr, err := env.execute("run", "--method", "phate", "--verbose")
	require.NoError(t, err)
	assert.NotContains(t, stdout, "falling back")
	assert.Contains(t, stderr, "notice [fallback]")
}

func TestRunWritesMetricsFile(t *testing.T) {
	env := newCLIEnv(t, 1, 2)
	path := filepath.Join(t.TempDir(), "artdr.prom")

	_, _, err := env.execute("run", "--method", "umap", "--metrics-file", path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "artdr_runs_total")
	assert.Contains(t, string(data), "artdr_points_saved_total 2")
}

func TestClampSize(t *testing.T) {
	assert.Equal(t, 1, clampSize(-5))
	assert.Equal(t, 1, clampSize(0))
	assert.Equal(t, 42, clampSize(42))
	assert.Equal(t, 500, clampSize(501))
}
