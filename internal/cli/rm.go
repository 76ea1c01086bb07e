package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// RemoveResult reports what a removal deleted.
type RemoveResult struct {
	Entity        string `json:"entity"`
	Key           string `json:"key"`
	PointsRemoved int64  `json:"points_removed"`
}

// NewRemoveCommand creates the rm command.
func NewRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm",
		Short: "Delete a config or an embedding",
		Long: `Delete stored data. Projection points go with whatever they reference:
removing a config removes its points, and removing an embedding removes its
points from every config.

Examples:
  artdr rm config 3
  artdr rm embedding artist_02/img_003.jpg`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(&cobra.Command{
		Use:           "config <config-id>",
		Short:         "Delete a config and its points",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return removeConfig(rootOpts, args[0], cmd)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:           "embedding <filename>",
		Short:         "Delete an embedding and its points in every config",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return removeEmbedding(rootOpts, args[0], cmd)
		},
	})

	return cmd
}

func removeConfig(opts *RootOptions, arg string, cmd *cobra.Command) error {
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

	n, err := a.store.DeleteConfig(context.Background(), id)
	if err != nil {
		return a.out.Fail(err)
	}

	res := RemoveResult{Entity: "config", Key: arg, PointsRemoved: n}
	return a.out.Result(res, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "deleted config %d (%d points)\n", id, res.PointsRemoved)
		return err
	})
}

func removeEmbedding(opts *RootOptions, filename string, cmd *cobra.Command) error {
	a, err := newApp(opts, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.openStore(); err != nil {
		return err
	}
	n, err := a.store.DeleteEmbedding(context.Background(), filename)
	if err != nil {
		return a.out.Fail(err)
	}

	res := RemoveResult{Entity: "embedding", Key: filename, PointsRemoved: n}
	return a.out.Result(res, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "deleted embedding %s (%d points)\n", filename, n)
		return err
	})
}
