// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types holds shared data and configuration types for matconv.
package types

// ArrayInfo records the shape and element type of one flattened array.
// Dtype uses numpy's canonical names ("float64", "int16", "<U12", ...)
// so manifests stay byte-compatible with archives produced by the
// original Python tooling.
type ArrayInfo struct {
	// Dtype is the canonical element type identifier.
	Dtype string `json:"dtype" yaml:"dtype"`

	// Shape is the array's dimensions after singleton squeezing.
	// Empty (not nil) for zero-dimensional scalars.
	Shape []int `json:"shape" yaml:"shape"`
}

// Manifest is the JSON sidecar written next to each .npz archive.
// Field order matches sorted-key serialization: arrays, converted_at,
// npz_file, source_file.
type Manifest struct {
	// Arrays maps each flat key to its shape and dtype.
	Arrays map[string]ArrayInfo `json:"arrays" yaml:"arrays"`

	// ConvertedAt is the UTC conversion timestamp in RFC 3339 form.
	ConvertedAt string `json:"converted_at" yaml:"converted_at"`

	// NpzFile is the resolved path of the sibling archive.
	NpzFile string `json:"npz_file" yaml:"npz_file"`

	// SourceFile is the resolved path of the MATLAB source file.
	SourceFile string `json:"source_file" yaml:"source_file"`
}
