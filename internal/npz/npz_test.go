// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package npz

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/matconv/internal/matfile"
)

func sampleArrays() map[string]matfile.Array {
	return map[string]matfile.Array{
		"signal": {Shape: []int{2, 3}, Dtype: "float64", Data: []float64{1, 2, 3, 4, 5, 6}},
		"counts": {Shape: []int{4}, Dtype: "int16", Data: []int16{-1, 0, 1, 2}},
		"mask":   {Shape: []int{2}, Dtype: "bool", Data: []bool{true, false}},
		"fs":     {Shape: []int{}, Dtype: "float64", Data: []float64{48000}},
		"label":  {Shape: []int{}, Dtype: "<U5", Data: "hello"},
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.npz")
	require.NoError(t, Write(path, sampleArrays()))

	entries, err := Read(path)
	require.NoError(t, err)
	require.Len(t, entries, 5)

	signal := entries["signal"]
	assert.Equal(t, "<f8", signal.Descr)
	assert.Equal(t, []int{2, 3}, signal.Shape)
	assert.False(t, signal.Fortran)
	vals, err := signal.Float64s()
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, vals)

	counts := entries["counts"]
	assert.Equal(t, "<i2", counts.Descr)
	assert.Equal(t, "int16", counts.Dtype())
	vals, err = counts.Float64s()
	require.NoError(t, err)
	assert.Equal(t, []float64{-1, 0, 1, 2}, vals)

	fs := entries["fs"]
	assert.Equal(t, []int{}, fs.Shape, "scalar member keeps its zero-dimensional shape")

	label := entries["label"]
	assert.Equal(t, "<U5", label.Descr)
	text, err := label.Text()
	require.NoError(t, err)
	assert.Equal(t, "hello", text)

	mask := entries["mask"]
	assert.Equal(t, "|b1", mask.Descr)
	assert.Equal(t, []byte{1, 0}, mask.Data)
}

func TestWriteDeterministic(t *testing.T) {
	dir := t.TempDir()
	p1 := filepath.Join(dir, "a.npz")
	p2 := filepath.Join(dir, "b.npz")
	require.NoError(t, Write(p1, sampleArrays()))
	require.NoError(t, Write(p2, sampleArrays()))

	b1, err := os.ReadFile(p1)
	require.NoError(t, err)
	b2, err := os.ReadFile(p2)
	require.NoError(t, err)
	assert.Equal(t, b1, b2, "identical input must produce byte-identical archives")
}

func TestEncodeNPYHeader(t *testing.T) {
	member, err := encodeNPY(matfile.Array{Shape: []int{3}, Dtype: "float64", Data: []float64{1, 2, 3}})
	require.NoError(t, err)

	descr, fortran, shape, off, err := parseNPYHeader(member)
	require.NoError(t, err)
	assert.Equal(t, "<f8", descr)
	assert.False(t, fortran)
	assert.Equal(t, []int{3}, shape)
	assert.Equal(t, 0, off%64, "element data must start on a 64-byte boundary")
	assert.Len(t, member[off:], 24)
}

func TestEncodeComplex(t *testing.T) {
	member, err := encodeNPY(matfile.Array{
		Shape: []int{2},
		Dtype: "complex128",
		Data:  []complex128{complex(1, 2), complex(3, 4)},
	})
	require.NoError(t, err)

	descr, _, _, off, err := parseNPYHeader(member)
	require.NoError(t, err)
	assert.Equal(t, "<c16", descr)
	assert.Len(t, member[off:], 32)
}

func TestEncodeUnknownDtype(t *testing.T) {
	_, err := encodeNPY(matfile.Array{Shape: []int{1}, Dtype: "object", Data: []float64{1}})
	require.Error(t, err)
}

func TestStringPadding(t *testing.T) {
	// A "<U5" scalar holding fewer runes than its width pads with NULs.
	member, err := encodeNPY(matfile.Array{Shape: []int{}, Dtype: "<U5", Data: "ab"})
	require.NoError(t, err)

	_, _, _, off, err := parseNPYHeader(member)
	require.NoError(t, err)
	require.Len(t, member[off:], 20)
	assert.Equal(t, []byte{'a', 0, 0, 0, 'b', 0, 0, 0}, member[off:off+8])
	assert.Equal(t, make([]byte, 12), member[off+8:])
}

func TestStringArrayRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.npz")
	arrays := map[string]matfile.Array{
		"labels": {Shape: []int{2}, Dtype: "<U3", Data: []string{"abc", "de"}},
	}
	require.NoError(t, Write(path, arrays))

	entries, err := Read(path)
	require.NoError(t, err)

	labels := entries["labels"]
	assert.Equal(t, "<U3", labels.Descr)
	assert.Equal(t, []int{2}, labels.Shape)
	require.Len(t, labels.Data, 24, "two elements of 3 UCS-4 code points each")

	vals, err := labels.Strings()
	require.NoError(t, err)
	assert.Equal(t, []string{"abc", "de"}, vals, "short elements drop their NUL padding")
}

func TestShapeTuple(t *testing.T) {
	assert.Equal(t, "()", shapeTuple(nil))
	assert.Equal(t, "(3,)", shapeTuple([]int{3}))
	assert.Equal(t, "(2, 3)", shapeTuple([]int{2, 3}))
}

func TestReadRejectsNonArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.npz")
	require.NoError(t, os.WriteFile(path, []byte("not a zip"), 0o644))

	_, err := Read(path)
	require.Error(t, err)
}
