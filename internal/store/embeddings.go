package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/roach88/artdr/internal/errdefs"
)

// Embedding is one precomputed image embedding.
type Embedding struct {
	Filename string
	Artist   string
	Vector   []float32
}

// Artist is auxiliary information shown next to an artist's points.
type Artist struct {
	Name        string `json:"artist"`
	Nationality string `json:"nationality,omitempty"`
	Years       string `json:"years,omitempty"`
	Bio         string `json:"bio,omitempty"`
}

// EncodeVector serializes v as little-endian float32.
func EncodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeVector is the inverse of EncodeVector.
func DecodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

// WriteEmbeddings inserts or replaces embedding rows in one transaction.
// Replacing a row does not touch its points.
func (s *Store) WriteEmbeddings(ctx context.Context, embs []Embedding) error {
	return s.withTx(ctx, "write embeddings", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO embeddings (filename, artist, embedding)
			VALUES (?, ?, ?)
			ON CONFLICT(filename) DO UPDATE SET artist = excluded.artist, embedding = excluded.embedding
		`)
		if err != nil {
			return fmt.Errorf("prepare: %w", err)
		}
		defer stmt.Close()

		for _, e := range embs {
			if e.Filename == "" {
				return errdefs.Validation("filename", "must not be empty")
			}
			if _, err := stmt.ExecContext(ctx, e.Filename, e.Artist, EncodeVector(e.Vector)); err != nil {
				return fmt.Errorf("insert %s: %w", e.Filename, err)
			}
		}
		return nil
	})
}

// WriteArtists inserts or replaces artist rows.
func (s *Store) WriteArtists(ctx context.Context, artists []Artist) error {
	return s.withTx(ctx, "write artists", func(tx *sql.Tx) error {
		for _, a := range artists {
			if _, err := tx.ExecContext(ctx, `
				INSERT OR REPLACE INTO artists (artist, nationality, years, bio)
				VALUES (?, ?, ?, ?)
			`, a.Name, a.Nationality, a.Years, a.Bio); err != nil {
				return fmt.Errorf("insert %s: %w", a.Name, err)
			}
		}
		return nil
	})
}

// DeleteEmbedding removes an embedding; its projection points in every
// config are removed by cascade. Returns the number of points removed.
func (s *Store) DeleteEmbedding(ctx context.Context, filename string) (int64, error) {
	var removed int64
	err := s.withTx(ctx, "delete embedding", func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM projection_points WHERE filename = ?`, filename,
		).Scan(&removed); err != nil {
			return fmt.Errorf("count points: %w", err)
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM embeddings WHERE filename = ?`, filename)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			return &errdefs.NotFoundError{Entity: "embedding", Key: filename}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// Filenames returns every embedding filename in ascending byte order.
func (s *Store) Filenames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT filename FROM embeddings ORDER BY filename COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query filenames: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan filename: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate filenames: %w", err)
	}
	return names, nil
}

// Embeddings loads the named embeddings, returned in the order requested.
// A name with no row is a StorageIntegrityError.
func (s *Store) Embeddings(ctx context.Context, filenames []string) ([]Embedding, error) {
	if len(filenames) == 0 {
		return []Embedding{}, nil
	}

	args := make([]any, len(filenames))
	for i, f := range filenames {
		args[i] = f
	}
	q := `SELECT filename, artist, embedding FROM embeddings WHERE filename IN (?` +
		strings.Repeat(", ?", len(filenames)-1) + `)`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query embeddings: %w", err)
	}
	defer rows.Close()

	byName := make(map[string]Embedding, len(filenames))
	for rows.Next() {
		e, err := scanEmbedding(rows)
		if err != nil {
			return nil, err
		}
		byName[e.Filename] = e
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embeddings: %w", err)
	}

	out := make([]Embedding, 0, len(filenames))
	for _, f := range filenames {
		e, ok := byName[f]
		if !ok {
			return nil, &errdefs.StorageIntegrityError{Ref: "filename", Value: f, Message: "embedding not found"}
		}
		out = append(out, e)
	}
	return out, nil
}

// ArtistFirstN returns up to perArtist embeddings per artist (first by
// filename), artists in ascending order, at most limit rows overall.
func (s *Store) ArtistFirstN(ctx context.Context, perArtist, limit int) ([]Embedding, error) {
	rows, err := s.db.QueryContext(ctx, `
		WITH ranked AS (
			SELECT filename, artist, embedding,
			       ROW_NUMBER() OVER (PARTITION BY artist ORDER BY filename COLLATE BINARY) AS rn
			FROM embeddings
		)
		SELECT filename, artist, embedding
		FROM ranked
		WHERE rn <= ?
		ORDER BY artist COLLATE BINARY ASC, rn ASC
		LIMIT ?
	`, perArtist, limit)
	if err != nil {
		return nil, fmt.Errorf("query artist subset: %w", err)
	}
	defer rows.Close()

	out := []Embedding{}
	for rows.Next() {
		e, err := scanEmbedding(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate artist subset: %w", err)
	}
	return out, nil
}

// Artist returns the auxiliary row for name.
func (s *Store) Artist(ctx context.Context, name string) (Artist, error) {
	var a Artist
	var nat, years, bio sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT artist, nationality, years, bio FROM artists WHERE artist = ?
	`, name).Scan(&a.Name, &nat, &years, &bio)
	if err == sql.ErrNoRows {
		return Artist{}, &errdefs.NotFoundError{Entity: "artist", Key: name}
	}
	if err != nil {
		return Artist{}, fmt.Errorf("read artist: %w", err)
	}
	a.Nationality, a.Years, a.Bio = nat.String, years.String, bio.String
	return a, nil
}

func scanEmbedding(rows *sql.Rows) (Embedding, error) {
	var e Embedding
	var blob []byte
	if err := rows.Scan(&e.Filename, &e.Artist, &blob); err != nil {
		return Embedding{}, fmt.Errorf("scan embedding: %w", err)
	}
	v, err := DecodeVector(blob)
	if err != nil {
		return Embedding{}, &errdefs.StorageIntegrityError{Ref: "filename", Value: e.Filename, Message: "corrupt embedding", Err: err}
	}
	e.Vector = v
	return e, nil
}
