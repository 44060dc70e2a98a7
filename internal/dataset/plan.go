// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package dataset

import (
	"fmt"
	"io"
	"os"

	"go.yaml.in/yaml/v3"
)

// Plan is the on-disk representation of a multi-experiment batch run:
// several input directories converted under one output base in a
// single invocation.
type Plan struct {
	Jobs []PlanJob `yaml:"jobs"`
}

// PlanJob describes one directory of recordings to convert.
type PlanJob struct {
	InputDir   string `yaml:"input_dir"`
	Experiment string `yaml:"experiment"`
	Pattern    string `yaml:"pattern,omitempty"`
}

// LoadPlan reads and validates a batch plan from a YAML file.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan file: %w", err)
	}
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing plan file %s: %w", path, err)
	}
	if len(p.Jobs) == 0 {
		return nil, fmt.Errorf("plan file %s has no jobs", path)
	}
	for i, job := range p.Jobs {
		if job.InputDir == "" {
			return nil, fmt.Errorf("plan job %d is missing input_dir", i)
		}
		if job.Experiment == "" {
			return nil, fmt.Errorf("plan job %d is missing experiment", i)
		}
	}
	return &p, nil
}

// RunPlan executes every job of a plan with shared output directory,
// force, and recorder settings. The first failing job aborts the
// remaining ones, mirroring single-batch behavior.
func RunPlan(l Loader, plan *Plan, base BatchOptions, w io.Writer) (BatchResult, error) {
	var total BatchResult
	for _, job := range plan.Jobs {
		opts := base
		opts.InputDir = job.InputDir
		opts.Conversion.Experiment = job.Experiment
		if job.Pattern != "" {
			opts.Conversion.Pattern = job.Pattern
		}
		fmt.Fprintf(w, "[%s] converting %s\n", job.Experiment, job.InputDir)
		result, err := RunBatch(l, opts, w)
		total.Converted += result.Converted
		total.Skipped += result.Skipped
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
