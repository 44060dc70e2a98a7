// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package dataset orchestrates MATLAB-to-NPZ conversion: loading a
// source file, flattening it, and persisting the archive/manifest
// pair, for single files and for whole directories.
package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pdiddy/matconv/internal/flatten"
	"github.com/pdiddy/matconv/internal/matfile"
	"github.com/pdiddy/matconv/internal/npz"
	"github.com/pdiddy/matconv/pkg/types"
)

// Loader reads one MATLAB source file into its top-level record.
// The MAT reader implements it; tests substitute fakes.
type Loader interface {
	Load(path string) (matfile.Struct, error)
}

// FileLoader is the production Loader backed by the MAT reader.
type FileLoader struct{}

// Load implements Loader.
func (FileLoader) Load(path string) (matfile.Struct, error) {
	return matfile.Read(path)
}

// ErrAlreadyExists reports a destination file that is present while
// force is unset.
var ErrAlreadyExists = errors.New("output already exists")

// OutputPaths computes the archive and manifest destinations for one
// dataset under the configured <OutputDir>/<Experiment>/.
func OutputPaths(cfg types.ConversionConfig, datasetName string) (npzPath, manifestPath string) {
	base := filepath.Join(cfg.OutputDir, cfg.Experiment, datasetName)
	return base + ".npz", base + ".json"
}

// CheckExisting returns ErrAlreadyExists for the first path that is
// already present on disk.
func CheckExisting(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return fmt.Errorf("%w: %s (pass --force to overwrite)", ErrAlreadyExists, p)
		}
	}
	return nil
}

// Convert loads one source file, flattens it, and writes the archive
// and manifest together as the last step, so a fatal condition never
// leaves a partial output pair. It returns the per-key shape/dtype
// mapping for caller reporting.
func Convert(l Loader, inputPath, npzPath, manifestPath string) (map[string]types.ArrayInfo, error) {
	record, err := l.Load(inputPath)
	if err != nil {
		return nil, err
	}

	flat, shapes, err := flatten.Record(record)
	if err != nil {
		if errors.Is(err, flatten.ErrNoArrays) {
			return nil, fmt.Errorf("%w in %s", flatten.ErrNoArrays, inputPath)
		}
		return nil, err
	}

	if err := npz.Write(npzPath, flat); err != nil {
		return nil, err
	}

	manifest := types.Manifest{
		Arrays:      shapes,
		ConvertedAt: time.Now().UTC().Format(time.RFC3339),
		NpzFile:     npzPath,
		SourceFile:  inputPath,
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}
	if err := os.WriteFile(manifestPath, data, 0o644); err != nil {
		return nil, fmt.Errorf("writing manifest: %w", err)
	}
	return shapes, nil
}
