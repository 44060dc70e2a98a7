// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package dataset

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pdiddy/matconv/pkg/types"
)

// DefaultPattern selects MATLAB files when no glob is given.
const DefaultPattern = "*.mat"

// Recorder receives one entry per successful conversion. The SQLite
// catalog implements it; a nil Recorder disables recording.
type Recorder interface {
	Record(ctx context.Context, e types.CatalogEntry) error
}

// BatchOptions configures one directory conversion run.
type BatchOptions struct {
	InputDir string

	// Conversion carries the output layout, file pattern, and
	// overwrite policy shared with single-file conversion.
	Conversion types.ConversionConfig

	// Recorder, when set, receives a catalog entry per conversion.
	Recorder Recorder
}

// BatchResult holds the outcome of a batch conversion run.
type BatchResult struct {
	Converted int
	Skipped   int
}

// Total returns the total number of files processed.
func (r BatchResult) Total() int {
	return r.Converted + r.Skipped
}

// RunBatch converts every file matching the pattern inside the input
// directory, in lexicographic order. Files whose outputs already
// exist are skipped (counted, non-fatal) unless force is set. Any
// conversion failure aborts the remainder of the batch.
func RunBatch(l Loader, opts BatchOptions, w io.Writer) (BatchResult, error) {
	var result BatchResult

	inputDir, err := filepath.Abs(opts.InputDir)
	if err != nil {
		return result, err
	}
	if _, err := os.Stat(inputDir); err != nil {
		if os.IsNotExist(err) {
			return result, fmt.Errorf("input directory does not exist: %s", inputDir)
		}
		return result, err
	}

	pattern := opts.Conversion.Pattern
	if pattern == "" {
		pattern = DefaultPattern
	}
	matches, err := filepath.Glob(filepath.Join(inputDir, pattern))
	if err != nil {
		return result, fmt.Errorf("bad pattern %q: %w", pattern, err)
	}
	// Sorted so batch runs are reproducible and logs are diffable.
	sort.Strings(matches)
	if len(matches) == 0 {
		return result, fmt.Errorf("no files matching %q found in %s", pattern, inputDir)
	}

	destDir, err := filepath.Abs(filepath.Join(opts.Conversion.OutputDir, opts.Conversion.Experiment))
	if err != nil {
		return result, err
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return result, fmt.Errorf("creating %s: %w", destDir, err)
	}

	for _, path := range matches {
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		npzPath := filepath.Join(destDir, name+".npz")
		manifestPath := filepath.Join(destDir, name+".json")

		if !opts.Conversion.Force && (exists(npzPath) || exists(manifestPath)) {
			fmt.Fprintf(w, "skipped: %s (output exists, use --force to rebuild)\n", name)
			result.Skipped++
			continue
		}

		shapes, err := Convert(l, path, npzPath, manifestPath)
		if err != nil {
			return result, fmt.Errorf("converting %s: %w", path, err)
		}
		fmt.Fprintf(w, "converted: %s -> %s\n", path, npzPath)
		result.Converted++

		if opts.Recorder != nil {
			entry := types.CatalogEntry{
				Dataset:     name,
				Experiment:  opts.Conversion.Experiment,
				SourceFile:  path,
				NpzFile:     npzPath,
				ArrayCount:  len(shapes),
				ConvertedAt: time.Now().UTC(),
			}
			if err := opts.Recorder.Record(context.Background(), entry); err != nil {
				fmt.Fprintf(w, "warning: catalog record failed for %s: %v\n", name, err)
			}
		}
	}

	fmt.Fprintf(w, "\nBatch summary: %d converted, %d skipped (total: %d)\n",
		result.Converted, result.Skipped, result.Total())
	return result, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
