package types

import "time"

// CatalogEntry is one recorded conversion in the catalog database.
type CatalogEntry struct {
	// Dataset is the output base name (source file stem).
	Dataset string `json:"dataset" yaml:"dataset"`

	// Experiment is the subdirectory label the dataset was filed under.
	Experiment string `json:"experiment" yaml:"experiment"`

	// SourceFile is the resolved MATLAB source path.
	SourceFile string `json:"source_file" yaml:"source_file"`

	// NpzFile is the resolved archive path.
	NpzFile string `json:"npz_file" yaml:"npz_file"`

	// ArrayCount is the number of flattened arrays in the archive.
	ArrayCount int `json:"array_count" yaml:"array_count"`

	// ConvertedAt is the UTC conversion timestamp.
	ConvertedAt time.Time `json:"converted_at" yaml:"converted_at"`
}

// ConversionConfig holds settings shared by the single-file and batch
// conversion commands.
type ConversionConfig struct {
	// OutputDir is the base directory for converted datasets
	// (contains one subdirectory per experiment).
	OutputDir string `json:"output_dir" yaml:"output_dir"`

	// Experiment is the subdirectory label grouping related datasets.
	Experiment string `json:"experiment" yaml:"experiment"`

	// Pattern is the glob used to select MATLAB files in batch mode.
	Pattern string `json:"pattern" yaml:"pattern"`

	// Force overwrites existing .npz/.json outputs instead of
	// skipping (batch) or aborting (single file).
	Force bool `json:"force" yaml:"force"`
}

// CatalogConfig holds settings for the optional conversion catalog.
type CatalogConfig struct {
	// Path is the SQLite database file. Empty disables the catalog.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}
