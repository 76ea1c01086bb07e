package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/artdr/internal/params"
	"github.com/roach88/artdr/internal/testutil"
)

// createTestStore creates a new temp-dir store for testing.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// seedGallery writes nArtists*perArtist 4-dimensional embeddings.
func seedGallery(t *testing.T, s *Store, nArtists, perArtist int) []testutil.Embedding {
	t.Helper()
	artists, embs := testutil.Gallery(nArtists, perArtist, 4)

	rows := make([]Embedding, len(embs))
	for i, e := range embs {
		rows[i] = Embedding{Filename: e.Filename, Artist: e.Artist, Vector: e.Vector}
	}
	if err := s.WriteEmbeddings(context.Background(), rows); err != nil {
		t.Fatalf("WriteEmbeddings() failed: %v", err)
	}

	as := make([]Artist, len(artists))
	for i, a := range artists {
		as[i] = Artist{Name: a.Name, Nationality: a.Nationality, Years: a.Years, Bio: a.Bio}
	}
	if err := s.WriteArtists(context.Background(), as); err != nil {
		t.Fatalf("WriteArtists() failed: %v", err)
	}
	return embs
}

// createTestConfig creates a umap config with the given subset size.
func createTestConfig(t *testing.T, s *Store, size int) int64 {
	t.Helper()
	id, err := s.CreateConfig(context.Background(), ConfigInput{
		Method:         "umap",
		SubsetStrategy: "random",
		SubsetSize:     size,
		Params:         params.Params{"n_neighbors": params.Int(15), "n_components": params.Int(2)},
		Runtime:        1500 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("CreateConfig() failed: %v", err)
	}
	return id
}

// pointsFor builds one point per embedding.
func pointsFor(embs []testutil.Embedding) []PointInput {
	pts := make([]PointInput, len(embs))
	for i, e := range embs {
		pts[i] = PointInput{Filename: e.Filename, Artist: e.Artist, X: float64(i), Y: -float64(i)}
	}
	return pts
}
