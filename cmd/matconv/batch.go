package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/matconv/internal/dataset"
	"github.com/pdiddy/matconv/pkg/types"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Convert every MATLAB file in a directory",
	Long: `Batch discovers .mat files by glob pattern inside --input-dir and
converts each one, in sorted order, into <output-dir>/<experiment>/.
Files whose outputs already exist are skipped unless --force is set.

A YAML plan file (--plan) runs several input directories under their
own experiment labels in one invocation.`,
	RunE: runBatch,
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg := types.ConversionConfig{
		OutputDir:  flagOrConfig(cmd, "output-dir", "output_dir"),
		Experiment: flagOrConfig(cmd, "experiment", "experiment"),
		Pattern:    flagOrConfig(cmd, "pattern", "pattern"),
	}
	cfg.Force, _ = cmd.Flags().GetBool("force")
	opts := dataset.BatchOptions{
		InputDir:   flagOrConfig(cmd, "input-dir", "input_dir"),
		Conversion: cfg,
	}

	if catalogCfg := catalogConfig(cmd); catalogCfg.Path != "" {
		store, err := openCatalog(catalogCfg)
		if err != nil {
			return err
		}
		defer store.Close()
		opts.Recorder = store
	}

	planPath, _ := cmd.Flags().GetString("plan")
	if planPath != "" {
		plan, err := dataset.LoadPlan(planPath)
		if err != nil {
			return err
		}
		_, err = dataset.RunPlan(dataset.FileLoader{}, plan, opts, os.Stdout)
		return err
	}

	if opts.InputDir == "" {
		return fmt.Errorf("--input-dir is required (or pass --plan)")
	}
	_, err := dataset.RunBatch(dataset.FileLoader{}, opts, os.Stdout)
	return err
}

func init() {
	batchCmd.Flags().String("input-dir", "", "directory containing the MATLAB files")
	batchCmd.Flags().String("output-dir", "numpy_datasets", "base directory for converted datasets")
	batchCmd.Flags().String("experiment", "ExpD", "experiment label used for the output subdirectory")
	batchCmd.Flags().String("pattern", dataset.DefaultPattern, "glob used to select MATLAB files inside --input-dir")
	batchCmd.Flags().Bool("force", false, "overwrite existing .npz and manifest outputs instead of skipping")
	batchCmd.Flags().String("catalog", "", "SQLite catalog database to record conversions in (empty: disabled)")
	batchCmd.Flags().String("plan", "", "YAML plan file listing input directories and experiment labels")

	rootCmd.AddCommand(batchCmd)
}
