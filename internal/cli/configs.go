package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/artdr/internal/params"
	"github.com/roach88/artdr/internal/store"
)

// ConfigsOptions holds flags for the configs command.
type ConfigsOptions struct {
	*RootOptions
	Method     string
	ParamsHash string
}

// ConfigRow is one entry of the configs listing.
type ConfigRow struct {
	ConfigID       int64         `json:"config_id"`
	Method         string        `json:"method"`
	SubsetStrategy string        `json:"subset_strategy"`
	SubsetSize     int           `json:"subset_size"`
	Params         params.Params `json:"params"`
	ParamsHash     string        `json:"params_hash"`
	DefinitionHash string        `json:"definition_hash"`
	Runtime        float64       `json:"runtime"`
	CreatedAt      string        `json:"created_at"`
	Points         int           `json:"points"`
}

// NewConfigsCommand creates the configs command.
func NewConfigsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ConfigsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "configs",
		Short: "List stored experiment configs",
		Long: `List stored configs with their point counts, ordered by id.

Configs with identical parameter sets share a params hash, so --params-hash
finds every run with those parameters. The definition hash also covers the
method, subset strategy and subset size, so configs that share it are
reruns of the same experiment.

Examples:
  artdr configs
  artdr configs --method umap --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigs(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Method, "method", "", "only configs of this method")
	cmd.Flags().StringVar(&opts.ParamsHash, "params-hash", "", "only configs with this params hash")

	return cmd
}

func runConfigs(opts *ConfigsOptions, cmd *cobra.Command) error {
	a, err := newApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.openStore(); err != nil {
		return err
	}
	list, err := a.store.ListConfigs(context.Background(), store.ListFilter{
		Method:     opts.Method,
		ParamsHash: opts.ParamsHash,
	})
	if err != nil {
		return a.out.Fail(err)
	}

	rows := make([]ConfigRow, len(list))
	for i, c := range list {
		def, err := params.ConfigHash(c.Method, c.SubsetStrategy, c.SubsetSize, c.Params)
		if err != nil {
			return a.out.Fail(err)
		}
		rows[i] = ConfigRow{
			ConfigID:       c.ID,
			Method:         c.Method,
			SubsetStrategy: c.SubsetStrategy,
			SubsetSize:     c.SubsetSize,
			Params:         c.Params,
			ParamsHash:     c.ParamsHash,
			DefinitionHash: def,
			Runtime:        c.Runtime.Seconds(),
			CreatedAt:      c.CreatedAt,
			Points:         c.Points,
		}
	}

	return a.out.Result(rows, func(w io.Writer) error {
		if len(rows) == 0 {
			fmt.Fprintln(w, "no configs")
			return nil
		}
		for _, r := range rows {
			enc, err := params.Encode(r.Params)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%4d  %-9s %-14s %3d/%-3d  %7.2fs  %s  %s\n",
				r.ConfigID, r.Method, r.SubsetStrategy, r.Points, r.SubsetSize, r.Runtime, r.CreatedAt, enc)
		}
		return nil
	})
}
