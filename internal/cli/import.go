package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/artdr/internal/errdefs"
	"github.com/roach88/artdr/internal/store"
)

// ImportResult reports what an import wrote.
type ImportResult struct {
	Entity string `json:"entity"`
	Source string `json:"source"`
	Count  int    `json:"count"`
}

// embeddingRecord is one line of an embeddings JSONL file.
type embeddingRecord struct {
	Filename  string    `json:"filename"`
	Artist    string    `json:"artist"`
	Embedding []float32 `json:"embedding"`
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load embeddings or artist records from JSONL",
		Long: `Load precomputed data into the database. Each input file holds one JSON
object per line; a file is written in a single transaction, so a bad line
leaves the database unchanged. Existing rows with the same key are replaced.

Embeddings:
  {"filename": "artist_02/img_003.jpg", "artist": "artist_02", "embedding": [0.12, ...]}

Artists:
  {"artist": "artist_02", "nationality": "Dutch", "years": "1853-1890", "bio": "..."}

Examples:
  artdr import embeddings clip.jsonl
  artdr import artists artists.jsonl`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(&cobra.Command{
		Use:           "embeddings <file.jsonl>",
		Short:         "Load embedding vectors",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return importFile(rootOpts, "embeddings", args[0], cmd, writeEmbeddings)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:           "artists <file.jsonl>",
		Short:         "Load artist records shown next to their points",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return importFile(rootOpts, "artists", args[0], cmd, writeArtists)
		},
	})

	return cmd
}

type importFunc func(ctx context.Context, st *store.Store, r io.Reader) (int, error)

func importFile(opts *RootOptions, entity, path string, cmd *cobra.Command, fn importFunc) error {
	a, err := newApp(opts, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	f, err := os.Open(path)
	if err != nil {
		_ = a.out.Error(ErrCodeGeneric, err.Error(), map[string]string{"file": path})
		return WrapExitError(ExitCommandError, "failed to open input", err)
	}
	defer f.Close()

	if err := a.openStore(); err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	n, err := fn(ctx, a.store, f)
	if err != nil {
		return a.out.Fail(fmt.Errorf("import %s: %w", entity, err))
	}
	a.logger.Info("import complete", zap.String("entity", entity), zap.String("file", path), zap.Int("count", n))

	res := ImportResult{Entity: entity, Source: path, Count: n}
	return a.out.Result(res, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "imported %d %s from %s\n", n, entity, path)
		return err
	})
}

// writeEmbeddings decodes embedding records and stores them. Every vector
// must have the dimension of the first.
func writeEmbeddings(ctx context.Context, st *store.Store, r io.Reader) (int, error) {
	var embs []store.Embedding
	dim := -1
	err := decodeLines(r, func(n int, dec *json.Decoder) error {
		var rec embeddingRecord
		if err := dec.Decode(&rec); err != nil {
			return err
		}
		if rec.Filename == "" {
			return errdefs.Validation("filename", "record %d: must not be empty", n)
		}
		if len(rec.Embedding) == 0 {
			return errdefs.Validation("embedding", "record %d (%s): must not be empty", n, rec.Filename)
		}
		if dim < 0 {
			dim = len(rec.Embedding)
		}
		if len(rec.Embedding) != dim {
			return errdefs.Validation("embedding", "record %d (%s): dimension %d, want %d", n, rec.Filename, len(rec.Embedding), dim)
		}
		embs = append(embs, store.Embedding{Filename: rec.Filename, Artist: rec.Artist, Vector: rec.Embedding})
		return nil
	})
	if err != nil {
		return 0, err
	}
	if err := st.WriteEmbeddings(ctx, embs); err != nil {
		return 0, err
	}
	return len(embs), nil
}

func writeArtists(ctx context.Context, st *store.Store, r io.Reader) (int, error) {
	var artists []store.Artist
	err := decodeLines(r, func(n int, dec *json.Decoder) error {
		var a store.Artist
		if err := dec.Decode(&a); err != nil {
			return err
		}
		if a.Name == "" {
			return errdefs.Validation("artist", "record %d: must not be empty", n)
		}
		artists = append(artists, a)
		return nil
	})
	if err != nil {
		return 0, err
	}
	if err := st.WriteArtists(ctx, artists); err != nil {
		return 0, err
	}
	return len(artists), nil
}

// decodeLines calls fn once per JSON value in r. Unknown fields are
// rejected. Syntax errors are reported as validation errors.
func decodeLines(r io.Reader, fn func(n int, dec *json.Decoder) error) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	for n := 1; dec.More(); n++ {
		if err := fn(n, dec); err != nil {
			var ve *errdefs.ValidationError
			if errors.As(err, &ve) {
				return err
			}
			return errdefs.Validation("input", "record %d: %v", n, err)
		}
	}
	return nil
}
