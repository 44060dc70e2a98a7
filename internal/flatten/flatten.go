// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package flatten decomposes a nested MAT record into a flat mapping
// of underscore-joined keys to arrays, plus parallel shape/dtype
// metadata for the manifest.
package flatten

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/pdiddy/matconv/internal/matfile"
	"github.com/pdiddy/matconv/pkg/types"
)

// ErrDuplicateKey reports that two distinct source paths flattened to
// the same key. Conversion aborts without writing any output.
var ErrDuplicateKey = errors.New("duplicate key")

// ErrNoArrays reports that flattening a whole record produced no
// arrays, meaning the source file had no convertible content.
var ErrNoArrays = errors.New("no usable arrays")

// Flatten recursively flattens value into flat and shapes under the
// given key prefix (empty at the root of each top-level key).
//
// Dispatch order matters: mappings before strings before sequences
// before the terminal array case, because boxed singletons satisfy
// more than one structural check once unwrapped.
func Flatten(name string, value matfile.Value, flat map[string]matfile.Array, shapes map[string]types.ArrayInfo) error {
	switch v := value.(type) {
	case matfile.Struct:
		for _, key := range v.Keys {
			next := key
			if name != "" {
				next = name + "_" + key
			}
			if err := Flatten(next, v.Fields[key], flat, shapes); err != nil {
				return err
			}
		}
		return nil

	case matfile.Str:
		return insert(name, matfile.StringArray(string(v)), flat, shapes)

	case matfile.Cell:
		for i, elem := range v.Elems {
			if err := Flatten(name+"_"+strconv.Itoa(i), elem, flat, shapes); err != nil {
				return err
			}
		}
		return nil

	case matfile.Boxed:
		// One-element generic container: unwrap and re-dispatch the
		// contained value under the unchanged key.
		return Flatten(name, v.Elem, flat, shapes)

	case matfile.Array:
		return insert(name, v, flat, shapes)

	default:
		if err := matfile.Err(value); err != nil {
			return fmt.Errorf("decoding %q: %w", name, err)
		}
		return fmt.Errorf("unsupported value kind %T under %q", value, name)
	}
}

// Record flattens every non-reserved top-level key of a record.
// Keys with the double-underscore prefix carry loader metadata and
// are skipped. An entirely empty result is ErrNoArrays.
func Record(rec matfile.Struct) (map[string]matfile.Array, map[string]types.ArrayInfo, error) {
	flat := make(map[string]matfile.Array)
	shapes := make(map[string]types.ArrayInfo)
	for _, key := range rec.Keys {
		if len(key) >= 2 && key[:2] == "__" {
			continue
		}
		if err := Flatten(key, rec.Fields[key], flat, shapes); err != nil {
			return nil, nil, err
		}
	}
	if len(flat) == 0 {
		return nil, nil, ErrNoArrays
	}
	return flat, shapes, nil
}

func insert(name string, arr matfile.Array, flat map[string]matfile.Array, shapes map[string]types.ArrayInfo) error {
	if _, exists := flat[name]; exists {
		return fmt.Errorf("%w %q encountered while flattening data", ErrDuplicateKey, name)
	}
	shape := arr.Shape
	if shape == nil {
		shape = []int{}
	}
	flat[name] = arr
	shapes[name] = types.ArrayInfo{Shape: shape, Dtype: arr.Dtype}
	return nil
}
