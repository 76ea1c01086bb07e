package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/artdr/internal/errdefs"
	"github.com/roach88/artdr/internal/params"
)

func TestParseOverrides(t *testing.T) {
	raw, err := ParseOverrides([]string{"n_neighbors=15", "metric=cosine", "note=a=b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"n_neighbors": "15",
		"metric":      "cosine",
		"note":        "a=b",
	}, raw)

	for _, bad := range []string{"n_neighbors", "=3", " =3"} {
		_, err := ParseOverrides([]string{bad})
		require.Error(t, err, bad)
		assert.True(t, errdefs.IsValidation(err))
	}
}

func TestCoerceBySchema(t *testing.T) {
	c := mustDefault(t)

	p, err := c.Coerce("umap", map[string]string{
		"n_neighbors":  "15",
		"min_dist":     "0.25",
		"metric":       "cosine",
		"random_state": "7",
	})
	require.NoError(t, err)
	assert.Equal(t, params.Params{
		"n_neighbors":  params.Int(15),
		"min_dist":     params.Float(0.25),
		"metric":       params.String("cosine"),
		"random_state": params.Int(7),
	}, p)
}

func TestCoerceIntegralAcceptsWholeFloat(t *testing.T) {
	c := mustDefault(t)

	p, err := c.Coerce("umap", map[string]string{"n_neighbors": "15.0"})
	require.NoError(t, err)
	assert.Equal(t, params.Int(15), p["n_neighbors"])
}

func TestCoerceQuotedSelect(t *testing.T) {
	c := mustDefault(t)

	p, err := c.Coerce("umap", map[string]string{"metric": `"manhattan"`})
	require.NoError(t, err)
	assert.Equal(t, params.String("manhattan"), p["metric"])
}

func TestCoerceDeprecatedNameUsesTargetSchema(t *testing.T) {
	c := mustDefault(t)

	p, err := c.Coerce("tsne", map[string]string{"n_iter": "300"})
	require.NoError(t, err)
	assert.Equal(t, params.Int(300), p["n_iter"])

	_, err = c.Coerce("tsne", map[string]string{"n_iter": "5000"})
	require.Error(t, err)
	assert.True(t, errdefs.IsValidation(err))

	p, err = c.Coerce("pca", map[string]string{"force_all_finite": "false"})
	require.NoError(t, err)
	assert.Equal(t, params.Bool(false), p["force_all_finite"])
}

func TestCoerceDefaultOnlyKey(t *testing.T) {
	c := mustDefault(t)

	p, err := c.Coerce("spacemap", map[string]string{"plot_results": "true", "num_plots": "3"})
	require.NoError(t, err)
	assert.Equal(t, params.Bool(true), p["plot_results"])
	assert.Equal(t, params.Int(3), p["num_plots"])
}

func TestCoerceRejects(t *testing.T) {
	c := mustDefault(t)

	tests := []struct {
		name   string
		method string
		raw    map[string]string
		field  string
	}{
		{"not a number", "umap", map[string]string{"n_neighbors": "lots"}, "n_neighbors"},
		{"fractional integer", "umap", map[string]string{"n_neighbors": "15.5"}, "n_neighbors"},
		{"below min", "umap", map[string]string{"n_neighbors": "2"}, "n_neighbors"},
		{"above max", "umap", map[string]string{"min_dist": "0.9"}, "min_dist"},
		{"bad option", "umap", map[string]string{"metric": "chebyshev"}, "metric"},
		{"bad bool", "pacmap", map[string]string{"apply_pca": "maybe"}, "apply_pca"},
		{"unknown key", "umap", map[string]string{"knn": "5"}, "knn"},
		{"nan", "umap", map[string]string{"min_dist": "NaN"}, "min_dist"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Coerce(tt.method, tt.raw)
			require.Error(t, err)
			var ve *errdefs.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestCoerceHugeIntegerIsOutOfRange(t *testing.T) {
	c := mustDefault(t)

	_, err := c.Coerce("umap", map[string]string{"random_state": "1e300"})
	require.Error(t, err)
	var ve *errdefs.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "random_state", ve.Field)
	assert.Equal(t, "1e+300 out of range [0, 2147483647]", ve.Message)

	_, err = c.Coerce("umap", map[string]string{"n_neighbors": "-9223372036854775809"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range [5, 50]")
}

func TestCoerceUnknownMethod(t *testing.T) {
	c := mustDefault(t)

	_, err := c.Coerce("isomap", map[string]string{})
	require.Error(t, err)
	assert.True(t, errdefs.IsValidation(err))
}

func TestCheckNormalizesTypedParams(t *testing.T) {
	c := mustDefault(t)

	p, err := c.Check("umap", params.Params{
		"n_neighbors": params.Float(15),
		"min_dist":    params.Int(0),
		"metric":      params.String("cosine"),
	})
	require.NoError(t, err)
	assert.Equal(t, params.Params{
		"n_neighbors": params.Int(15),
		"min_dist":    params.Float(0),
		"metric":      params.String("cosine"),
	}, p)
}

func TestCheckRejects(t *testing.T) {
	c := mustDefault(t)

	_, err := c.Check("umap", params.Params{"metric": params.Int(1)})
	require.Error(t, err)
	assert.True(t, errdefs.IsValidation(err))

	_, err = c.Check("pacmap", params.Params{"verbose": params.String("yes")})
	require.Error(t, err)
	assert.True(t, errdefs.IsValidation(err))

	_, err = c.Check("spacemap", params.Params{"plot_results": params.Int(1)})
	require.Error(t, err)
	assert.True(t, errdefs.IsValidation(err))

	_, err = c.Check("umap", params.Params{"bogus": params.Int(1)})
	require.Error(t, err)
	assert.True(t, errdefs.IsValidation(err))
}
