package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/artdr/internal/experiment"
)

// BatchOptions holds flags for the batch command.
type BatchOptions struct {
	*RootOptions
	Publish bool
}

// BatchStep is one line of batch output.
type BatchStep struct {
	Index    int    `json:"index"`
	Method   string `json:"method"`
	ConfigID int64  `json:"config_id,omitempty"`
	Backend  string `json:"backend,omitempty"`
	Points   int    `json:"points"`
	Location string `json:"published_to,omitempty"`
	Error    string `json:"error,omitempty"`
}

// BatchResult summarizes a plan run.
type BatchResult struct {
	Plan   string      `json:"plan"`
	Steps  []BatchStep `json:"steps"`
	Failed int         `json:"failed"`
}

// NewBatchCommand creates the batch command.
func NewBatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "batch <plan.yaml>",
		Short: "Run every experiment in a YAML plan",
		Long: `Run the experiments listed in a YAML plan file, in order.

Example plan:

  name: umap-sweep
  continue_on_error: true
  runs:
    - method: umap
      subset_strategy: random
      subset_size: 200
      params: {n_neighbors: 15}
      seed: 7
    - method: tsne
      subset_strategy: artist_first5
      subset_size: 100

Unknown keys are rejected. Without continue_on_error the first failing run
stops the plan.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Publish, "publish", false, "upload each payload to the configured object store")

	return cmd
}

func runBatch(opts *BatchOptions, path string, cmd *cobra.Command) error {
	a, err := newApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	plan, err := experiment.LoadPlan(path)
	if err != nil {
		_ = a.out.Error(ErrCodeGeneric, err.Error(), map[string]string{"plan": path})
		return WrapExitError(ExitCommandError, "invalid plan", err)
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

	results, runErr := runner.RunPlan(ctx, plan)

	res := BatchResult{Plan: plan.Name, Steps: make([]BatchStep, 0, len(results))}
	for _, r := range results {
		step := BatchStep{Index: r.Index, Method: plan.Runs[r.Index].Method}
		if r.Err != nil {
			step.Error = r.Err.Error()
			res.Failed++
		} else {
			step.ConfigID = r.Outcome.ConfigID
			step.Backend = r.Outcome.Backend
			step.Points = len(r.Outcome.Payload.Points)
			step.Location = r.Outcome.Location
		}
		res.Steps = append(res.Steps, step)
	}

	if runErr != nil && res.Failed == 0 {
		// Cancelled between steps.
		return a.out.Fail(runErr)
	}

	if err := a.out.Result(res, func(w io.Writer) error {
		for _, s := range res.Steps {
			if s.Error != "" {
				fmt.Fprintf(w, "[%d] %s  FAILED  %s\n", s.Index, s.Method, s.Error)
				continue
			}
			fmt.Fprintf(w, "[%d] %s  config %d  %s  %d points\n", s.Index, s.Method, s.ConfigID, s.Backend, s.Points)
		}
		fmt.Fprintf(w, "%d of %d run(s) failed\n", res.Failed, len(plan.Runs))
		return nil
	}); err != nil {
		return err
	}

	if runErr != nil {
		return WrapExitError(exitCodeFor(runErr), "plan failed", runErr)
	}
	return nil
}
