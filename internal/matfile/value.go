// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package matfile reads MATLAB Level 5 .mat containers into a tree of
// tagged values. Decoding mirrors the loader behavior the conversion
// pipeline depends on: singleton dimensions are collapsed, structs
// become ordered field mappings, one-element cells become boxed
// singletons, and char rows become strings.
package matfile

import (
	"fmt"
	"unicode/utf8"
)

// Value is one node of a decoded MAT record: a struct (mapping), a
// cell sequence, a string, a boxed singleton, or a concrete array.
type Value interface {
	isValue()
}

// Struct is a field mapping with preserved field order.
type Struct struct {
	Keys   []string
	Fields map[string]Value
}

// Set stores a field value, appending the key on first insertion so
// iteration order follows file order.
func (s *Struct) Set(key string, v Value) {
	if s.Fields == nil {
		s.Fields = make(map[string]Value)
	}
	if _, ok := s.Fields[key]; !ok {
		s.Keys = append(s.Keys, key)
	}
	s.Fields[key] = v
}

// Cell is an ordered sequence of heterogeneous values.
type Cell struct {
	Elems []Value
}

// Str is a single character row decoded to a Go string.
type Str string

// Boxed is a one-element generic container, the squeezed form of a
// 1x1 cell. The flattener unwraps it and re-dispatches the contained
// value under the unchanged key.
type Boxed struct {
	Elem Value
}

// Array is a numeric, logical, or string array with row-major data.
type Array struct {
	// Shape has singleton dimensions removed; empty for scalars.
	Shape []int

	// Dtype is the numpy canonical dtype name ("float64", "<U3", ...).
	Dtype string

	// Data is a flat row-major slice ([]float64, []int32, []bool,
	// []complex128, ...). "<Un" dtypes hold a string (scalar) or a
	// []string with one fixed-width element per entry.
	Data any
}

func (Struct) isValue() {}
func (Cell) isValue()   {}
func (Str) isValue()    {}
func (Boxed) isValue()  {}
func (Array) isValue()  {}

// Len returns the number of elements implied by the shape.
func (a Array) Len() int {
	n := 1
	for _, d := range a.Shape {
		n *= d
	}
	return n
}

// StringArray converts a string to its zero-dimensional array form:
// dtype "<Un" with n the rune count (minimum 1, as numpy does).
func StringArray(s string) Array {
	n := utf8.RuneCountInString(s)
	if n == 0 {
		n = 1
	}
	return Array{Shape: []int{}, Dtype: fmt.Sprintf("<U%d", n), Data: s}
}
