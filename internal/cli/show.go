package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/artdr/internal/errdefs"
	"github.com/roach88/artdr/internal/experiment"
	"github.com/roach88/artdr/internal/store"
)

// ShowResult is a stored payload plus the records of its artists.
type ShowResult struct {
	*experiment.Payload
	Artists []store.Artist `json:"artists"`
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <config-id>",
		Short: "Print the stored payload of a config with its artists",
		Long: `Print the joined config and points of a stored experiment, in the same
form "artdr run" prints it, plus the artist records (nationality, years,
bio) of every artist that appears in the points. Artists without a record
are left out. Nothing is recomputed.

Example:
  artdr show 3`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runShow(opts *RootOptions, arg string, cmd *cobra.Command) error {
	a, err := newApp(opts, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	id, err := parseConfigID(arg)
	if err != nil {
		return a.out.Fail(err)
	}
	if err := a.openStore(); err != nil {
		return err
	}

	ctx := context.Background()
	payload, err := experiment.NewAssembler(a.store).Load(ctx, id)
	if err != nil {
		return a.out.Fail(err)
	}
	artists, err := artistsFor(ctx, a.store, payload.Points)
	if err != nil {
		return a.out.Fail(err)
	}

	res := ShowResult{Payload: payload, Artists: artists}
	return a.out.Result(res, func(w io.Writer) error {
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return fmt.Errorf("encode payload: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	})
}

// artistsFor reads the record of each distinct artist in pts, in order of
// first appearance.
func artistsFor(ctx context.Context, st *store.Store, pts []experiment.PointView) ([]store.Artist, error) {
	out := []store.Artist{}
	seen := make(map[string]bool)
	for _, p := range pts {
		if seen[p.Artist] {
			continue
		}
		seen[p.Artist] = true

		a, err := st.Artist(ctx, p.Artist)
		if errdefs.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func parseConfigID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id < 1 {
		return 0, errdefs.Validation("config_id", "must be a positive integer, got %q", s)
	}
	return id, nil
}
