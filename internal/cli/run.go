package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/artdr/internal/catalog"
	"github.com/roach88/artdr/internal/experiment"
	"github.com/roach88/artdr/internal/sampler"
)

// defaultSubsetSize is the --size used when none is given.
const defaultSubsetSize = 250

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Method   string
	Strategy string
	Size     int
	Params   []string
	ConfigID int64
	Seed     int64
	Publish  bool
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one DR experiment and print its payload",
		Long: `Run one dimensionality-reduction experiment.

A subset of embeddings is sampled, projected with the chosen method (falling
back to alternates when a back-end is missing or fails), and stored as a new
config with its points. The joined payload is printed to stdout; fallback
notices and other diagnostics go to stderr.

--param values are parsed by the method's parameter schema (see
"artdr list params <method>"). --size is clamped to [1,500].

Examples:
  artdr run --method umap --size 200 --param n_neighbors=30
  artdr run --method tsne --strategy artist_first5 --config-id 3
  artdr run --method pca --param n_components=3 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExperiment(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Method, "method", "m", "", "DR method (required)")
	_ = cmd.MarkFlagRequired("method")
	cmd.Flags().StringVarP(&opts.Strategy, "strategy", "s", sampler.Random, "subset strategy")
	cmd.Flags().IntVarP(&opts.Size, "size", "n", defaultSubsetSize, "subset size, clamped to [1,500]")
	cmd.Flags().StringArrayVarP(&opts.Params, "param", "p", nil, "parameter override key=value (repeatable)")
	cmd.Flags().Int64Var(&opts.ConfigID, "config-id", 0, "overwrite this config instead of creating a new one")
	cmd.Flags().Int64Var(&opts.Seed, "seed", 0, "sampler seed (default: random_state param, else random)")
	cmd.Flags().BoolVar(&opts.Publish, "publish", false, "upload the payload to the configured object store")

	return cmd
}

func runExperiment(opts *RunOptions, cmd *cobra.Command) error {
	a, err := newApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	raw, err := catalog.ParseOverrides(opts.Params)
	if err != nil {
		return a.out.Fail(err)
	}
	p, err := a.catalog.Coerce(opts.Method, raw)
	if err != nil {
		return a.out.Fail(err)
	}

	req := experiment.Request{
		Method:   opts.Method,
		Strategy: opts.Strategy,
		Size:     clampSize(opts.Size),
		Params:   p,
	}
	if req.Size != opts.Size {
		a.logger.Warn("subset size clamped", zap.Int("requested", opts.Size), zap.Int("size", req.Size))
	}
	if cmd.Flags().Changed("config-id") {
		id := opts.ConfigID
		req.ConfigID = &id
	}
	if cmd.Flags().Changed("seed") {
		seed := opts.Seed
		req.Seed = &seed
	}

	if err := a.openStore(); err != nil {
		return err
	}
	runner, err := a.runner(opts.Publish)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	out, err := runner.Run(ctx, req)
	if err != nil {
		return a.out.Fail(err)
	}
	for _, n := range out.Notices {
		a.out.VerboseLog("notice [%s] %s", n.Kind, n.Message)
	}

	return a.out.Result(out, func(w io.Writer) error {
		return writePayload(w, out.Payload)
	})
}

// clampSize bounds a requested subset size to what the sampler accepts.
func clampSize(n int) int {
	return max(1, min(n, sampler.MaxSize))
}

// writePayload prints a payload as indented JSON, the form the viewer reads.
func writePayload(w io.Writer, p *experiment.Payload) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
