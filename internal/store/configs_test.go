package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/artdr/internal/errdefs"
	"github.com/roach88/artdr/internal/params"
	"github.com/roach88/artdr/internal/testutil"
)

func TestCreateConfig_RoundTrip(t *testing.T) {
	clock := testutil.NewDeterministicClock(time.Hour)
	s := createTestStore(t, WithClock(clock.Now))
	ctx := context.Background()

	id := createTestConfig(t, s, 100)
	assert.Equal(t, int64(1), id)

	c, err := s.GetConfig(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "umap", c.Method)
	assert.Equal(t, "random", c.SubsetStrategy)
	assert.Equal(t, 100, c.SubsetSize)
	assert.Equal(t, params.Params{"n_neighbors": params.Int(15), "n_components": params.Int(2)}, c.Params)
	assert.Equal(t, 1500*time.Millisecond, c.Runtime)
	assert.Equal(t, "2025-01-02 03:04:05", c.CreatedAt)

	want, err := params.Hash(c.Params)
	require.NoError(t, err)
	assert.Equal(t, want, c.ParamsHash)
}

func TestCreateConfig_CanonicalParams(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	a, err := s.CreateConfig(ctx, ConfigInput{
		Method: "umap", SubsetStrategy: "random", SubsetSize: 10,
		Params: params.Params{"b": params.Int(1), "a": params.String("x")},
	})
	require.NoError(t, err)
	b, err := s.CreateConfig(ctx, ConfigInput{
		Method: "umap", SubsetStrategy: "random", SubsetSize: 10,
		Params: params.Params{"a": params.String("x"), "b": params.Int(1)},
	})
	require.NoError(t, err)

	var rawA, rawB string
	require.NoError(t, s.db.QueryRow("SELECT params_json FROM configs WHERE config_id = ?", a).Scan(&rawA))
	require.NoError(t, s.db.QueryRow("SELECT params_json FROM configs WHERE config_id = ?", b).Scan(&rawB))
	assert.Equal(t, `{"a":"x","b":1}`, rawA)
	assert.Equal(t, rawA, rawB)
}

func TestCreateConfig_Validation(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		in    ConfigInput
		field string
	}{
		{"empty method", ConfigInput{SubsetStrategy: "random", SubsetSize: 1}, "method"},
		{"empty strategy", ConfigInput{Method: "umap", SubsetSize: 1}, "subset_strategy"},
		{"size zero", ConfigInput{Method: "umap", SubsetStrategy: "random", SubsetSize: 0}, "subset_size"},
		{"size too large", ConfigInput{Method: "umap", SubsetStrategy: "random", SubsetSize: 501}, "subset_size"},
		{"negative runtime", ConfigInput{Method: "umap", SubsetStrategy: "random", SubsetSize: 1, Runtime: -time.Second}, "runtime"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.CreateConfig(ctx, tt.in)
			var ve *errdefs.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}

	list, err := s.ListConfigs(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, list, "rejected inputs must not write")
}

func TestUpsertConfig_ReplacesWholeRow(t *testing.T) {
	clock := testutil.NewDeterministicClock(time.Hour)
	s := createTestStore(t, WithClock(clock.Now))
	ctx := context.Background()
	embs := seedGallery(t, s, 2, 3)

	id := createTestConfig(t, s, 100)
	require.NoError(t, s.SavePoints(ctx, id, pointsFor(embs)))

	err := s.UpsertConfig(ctx, id, ConfigInput{
		Method:         "tsne",
		SubsetStrategy: "artist_first5",
		SubsetSize:     50,
		Params:         params.Params{"perplexity": params.Int(30)},
		Runtime:        2 * time.Second,
	})
	require.NoError(t, err)

	c, err := s.GetConfig(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "tsne", c.Method)
	assert.Equal(t, "artist_first5", c.SubsetStrategy)
	assert.Equal(t, 50, c.SubsetSize)
	assert.Equal(t, params.Params{"perplexity": params.Int(30)}, c.Params, "params are replaced, not merged")
	assert.Equal(t, 2*time.Second, c.Runtime)
	assert.Equal(t, "2025-01-02 04:04:05", c.CreatedAt, "created_at is refreshed")

	pts, err := s.PointsForConfig(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, pts, "old points are removed with the old row")
}

func TestUpsertConfig_CreatesMissingID(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertConfig(ctx, 42, ConfigInput{Method: "pca", SubsetStrategy: "random", SubsetSize: 5}))

	c, err := s.GetConfig(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "pca", c.Method)
	assert.Equal(t, params.Params{}, c.Params)
}

func TestUpsertConfig_InvalidLeavesRowIntact(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	id := createTestConfig(t, s, 100)

	err := s.UpsertConfig(ctx, id, ConfigInput{Method: "tsne", SubsetStrategy: "random", SubsetSize: 900})
	require.Error(t, err)
	assert.True(t, errdefs.IsValidation(err))

	c, err := s.GetConfig(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "umap", c.Method)

	err = s.UpsertConfig(ctx, 0, ConfigInput{Method: "tsne", SubsetStrategy: "random", SubsetSize: 9})
	assert.True(t, errdefs.IsValidation(err))
}

func TestGetConfig_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.GetConfig(context.Background(), 999)
	require.Error(t, err)
	assert.True(t, errdefs.IsNotFound(err))
	assert.Contains(t, err.Error(), "999")
}

func TestListConfigs(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	embs := seedGallery(t, s, 1, 3)

	a := createTestConfig(t, s, 10)
	require.NoError(t, s.SavePoints(ctx, a, pointsFor(embs)))
	_, err := s.CreateConfig(ctx, ConfigInput{Method: "tsne", SubsetStrategy: "random", SubsetSize: 10})
	require.NoError(t, err)

	all, err := s.ListConfigs(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, a, all[0].ID)
	assert.Equal(t, 3, all[0].Points)
	assert.Equal(t, 0, all[1].Points)

	umap, err := s.ListConfigs(ctx, ListFilter{Method: "umap"})
	require.NoError(t, err)
	require.Len(t, umap, 1)

	byHash, err := s.ListConfigs(ctx, ListFilter{ParamsHash: all[0].ParamsHash})
	require.NoError(t, err)
	require.Len(t, byHash, 1)
	assert.Equal(t, a, byHash[0].ID)
}

func TestDeleteConfig_Cascades(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	embs := seedGallery(t, s, 1, 4)

	id := createTestConfig(t, s, 10)
	require.NoError(t, s.SavePoints(ctx, id, pointsFor(embs)))

	removed, err := s.DeleteConfig(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(4), removed)

	var n int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM projection_points").Scan(&n))
	assert.Equal(t, 0, n)

	removed, err = s.DeleteConfig(ctx, id)
	assert.True(t, errdefs.IsNotFound(err))
	assert.Zero(t, removed)

	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM embeddings").Scan(&n))
	assert.Equal(t, 4, n, "embeddings survive config deletion")
}

func TestDeleteConfig_NotFoundLeavesOthers(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	embs := seedGallery(t, s, 1, 2)

	id := createTestConfig(t, s, 10)
	require.NoError(t, s.SavePoints(ctx, id, pointsFor(embs)))

	_, err := s.DeleteConfig(ctx, id+1)
	require.Error(t, err)
	assert.True(t, errdefs.IsNotFound(err))

	pts, err := s.PointsForConfig(ctx, id)
	require.NoError(t, err)
	assert.Len(t, pts, 2)
}
