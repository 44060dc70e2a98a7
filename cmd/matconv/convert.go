package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/matconv/internal/dataset"
	"github.com/pdiddy/matconv/pkg/types"
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert one MATLAB file into an .npz archive and manifest",
	Long: `Convert loads a single .mat recording, flattens its nested structs and
cells into named arrays, and writes a compressed .npz archive plus a JSON
manifest under <output-dir>/<experiment>/. Existing outputs abort the run
unless --force is passed.`,
	RunE: runConvert,
}

func runConvert(cmd *cobra.Command, args []string) error {
	input, _ := cmd.Flags().GetString("input")
	inputPath, err := filepath.Abs(input)
	if err != nil {
		return err
	}
	if _, err := os.Stat(inputPath); err != nil {
		return fmt.Errorf("input file not found: %s", inputPath)
	}

	cfg := types.ConversionConfig{
		OutputDir:  flagOrConfig(cmd, "output-dir", "output_dir"),
		Experiment: flagOrConfig(cmd, "experiment", "experiment"),
	}
	cfg.Force, _ = cmd.Flags().GetBool("force")

	name, _ := cmd.Flags().GetString("dataset-name")
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	}

	npzPath, manifestPath := dataset.OutputPaths(cfg, name)
	if npzPath, err = filepath.Abs(npzPath); err != nil {
		return err
	}
	if manifestPath, err = filepath.Abs(manifestPath); err != nil {
		return err
	}
	destDir := filepath.Dir(npzPath)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", destDir, err)
	}

	if !cfg.Force {
		if err := dataset.CheckExisting(npzPath, manifestPath); err != nil {
			return err
		}
	}

	shapes, err := dataset.Convert(dataset.FileLoader{}, inputPath, npzPath, manifestPath)
	if err != nil {
		return err
	}

	if catalogCfg := catalogConfig(cmd); catalogCfg.Path != "" {
		store, err := openCatalog(catalogCfg)
		if err != nil {
			return err
		}
		defer store.Close()
		entry := types.CatalogEntry{
			Dataset:     name,
			Experiment:  cfg.Experiment,
			SourceFile:  inputPath,
			NpzFile:     npzPath,
			ArrayCount:  len(shapes),
			ConvertedAt: time.Now().UTC(),
		}
		if err := store.Record(context.Background(), entry); err != nil {
			fmt.Fprintf(os.Stderr, "warning: catalog record failed: %v\n", err)
		}
	}

	fmt.Printf("Wrote %s with %d arrays.\n", npzPath, len(shapes))
	fmt.Printf("Manifest stored in %s\n", manifestPath)
	return nil
}

func init() {
	convertCmd.Flags().String("input", "", "path to the MATLAB .mat file to convert")
	convertCmd.Flags().String("output-dir", "numpy_datasets", "base directory for converted datasets")
	convertCmd.Flags().String("dataset-name", "", "output name without extension (default: input file stem)")
	convertCmd.Flags().String("experiment", "ExpD", "experiment label used for the output subdirectory")
	convertCmd.Flags().Bool("force", false, "overwrite existing .npz and manifest outputs")
	convertCmd.Flags().String("catalog", "", "SQLite catalog database to record the conversion in (empty: disabled)")
	convertCmd.MarkFlagRequired("input")

	rootCmd.AddCommand(convertCmd)
}
