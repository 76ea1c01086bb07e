package experiment

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/roach88/artdr/internal/params"
)

// Plan is a batch of experiments read from YAML.
//
//	name: umap-sweep
//	continue_on_error: true
//	runs:
//	  - method: umap
//	    subset_strategy: random
//	    subset_size: 200
//	    params: {n_neighbors: 15}
//	    seed: 7
type Plan struct {
	// Name identifies the plan in logs.
	Name string `yaml:"name"`

	// Description is free text.
	Description string `yaml:"description,omitempty"`

	// ContinueOnError keeps running the remaining steps after a failure.
	// By default the first failure stops the plan.
	ContinueOnError bool `yaml:"continue_on_error,omitempty"`

	Runs []PlanStep `yaml:"runs"`
}

// PlanStep is one experiment in a plan.
type PlanStep struct {
	Method         string         `yaml:"method"`
	SubsetStrategy string         `yaml:"subset_strategy"`
	SubsetSize     int            `yaml:"subset_size"`
	Params         map[string]any `yaml:"params,omitempty"`

	// ConfigID overwrites an existing config instead of creating one.
	ConfigID *int64 `yaml:"config_id,omitempty"`

	Seed *int64 `yaml:"seed,omitempty"`
}

// StepResult is the outcome of one plan step. Exactly one of Outcome and
// Err is set for steps that ran; skipped steps have neither.
type StepResult struct {
	Index   int
	Outcome *Outcome
	Err     error
}

// LoadPlan reads and parses a plan YAML file.
// Unknown fields are rejected so typos surface instead of being ignored.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}
	return ParsePlan(data)
}

// ParsePlan parses plan YAML.
func ParsePlan(data []byte) (*Plan, error) {
	var plan Plan
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&plan); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validatePlan(&plan); err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}
	return &plan, nil
}

// validatePlan checks required fields. Method names, strategies and
// params are validated per step when the step runs.
func validatePlan(p *Plan) error {
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(p.Runs) == 0 {
		return fmt.Errorf("runs list is required and must be non-empty")
	}
	for i, step := range p.Runs {
		if step.Method == "" {
			return fmt.Errorf("runs[%d]: method is required", i)
		}
		if step.SubsetStrategy == "" {
			return fmt.Errorf("runs[%d]: subset_strategy is required", i)
		}
		if step.SubsetSize == 0 {
			return fmt.Errorf("runs[%d]: subset_size is required", i)
		}
		if _, err := params.FromMap(step.Params); err != nil {
			return fmt.Errorf("runs[%d]: %w", i, err)
		}
	}
	return nil
}

// Request converts the step into a run request.
func (s PlanStep) Request() (Request, error) {
	p, err := params.FromMap(s.Params)
	if err != nil {
		return Request{}, err
	}
	return Request{
		Method:   s.Method,
		Strategy: s.SubsetStrategy,
		Size:     s.SubsetSize,
		Params:   p,
		ConfigID: s.ConfigID,
		Seed:     s.Seed,
	}, nil
}

// RunPlan executes the plan's steps in order. It returns one result per
// step that ran, and the first error unless the plan continues on error.
func (r *Runner) RunPlan(ctx context.Context, plan *Plan) ([]StepResult, error) {
	log := r.logger.With(zap.String("plan", plan.Name))
	results := make([]StepResult, 0, len(plan.Runs))

	var firstErr error
	for i, step := range plan.Runs {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		req, err := step.Request()
		if err == nil {
			var out *Outcome
			out, err = r.Run(ctx, req)
			if err == nil {
				results = append(results, StepResult{Index: i, Outcome: out})
				continue
			}
		}

		err = fmt.Errorf("runs[%d] (%s): %w", i, step.Method, err)
		results = append(results, StepResult{Index: i, Err: err})
		if firstErr == nil {
			firstErr = err
		}
		if !plan.ContinueOnError {
			return results, err
		}
		log.Warn("plan step failed, continuing", zap.Int("step", i), zap.Error(err))
	}
	return results, firstErr
}
