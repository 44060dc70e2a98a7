// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package npz writes and reads compressed NumPy archives: a ZIP of
// one NPY member per named array, the format np.savez_compressed
// produces and np.load consumes.
package npz

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pdiddy/matconv/internal/matfile"
)

var le = binary.LittleEndian

// npyMagic starts every NPY member, followed by the format version.
var npyMagic = []byte("\x93NUMPY")

// descrFor maps canonical dtype names to NPY descr strings. String
// dtypes ("<Un") are already in descr form.
func descrFor(dtype string) (string, error) {
	switch dtype {
	case "float64":
		return "<f8", nil
	case "float32":
		return "<f4", nil
	case "int8":
		return "|i1", nil
	case "uint8":
		return "|u1", nil
	case "int16":
		return "<i2", nil
	case "uint16":
		return "<u2", nil
	case "int32":
		return "<i4", nil
	case "uint32":
		return "<u4", nil
	case "int64":
		return "<i8", nil
	case "uint64":
		return "<u8", nil
	case "complex64":
		return "<c8", nil
	case "complex128":
		return "<c16", nil
	case "bool":
		return "|b1", nil
	}
	if strings.HasPrefix(dtype, "<U") {
		return dtype, nil
	}
	return "", fmt.Errorf("no NPY descr for dtype %q", dtype)
}

// DtypeFor is the inverse of descrFor, returning the canonical dtype
// name for an NPY descr string.
func DtypeFor(descr string) string {
	switch descr {
	case "<f8":
		return "float64"
	case "<f4":
		return "float32"
	case "|i1":
		return "int8"
	case "|u1":
		return "uint8"
	case "<i2":
		return "int16"
	case "<u2":
		return "uint16"
	case "<i4":
		return "int32"
	case "<u4":
		return "uint32"
	case "<i8":
		return "int64"
	case "<u8":
		return "uint64"
	case "<c8":
		return "complex64"
	case "<c16":
		return "complex128"
	case "|b1":
		return "bool"
	}
	return descr
}

// itemSize returns the per-element byte width of a descr string.
func itemSize(descr string) (int, error) {
	if strings.HasPrefix(descr, "<U") {
		n, err := strconv.Atoi(descr[2:])
		if err != nil {
			return 0, fmt.Errorf("bad string descr %q", descr)
		}
		return n * 4, nil
	}
	if len(descr) < 3 {
		return 0, fmt.Errorf("bad descr %q", descr)
	}
	n, err := strconv.Atoi(descr[2:])
	if err != nil {
		return 0, fmt.Errorf("bad descr %q", descr)
	}
	return n, nil
}

// shapeTuple renders a shape the way the NPY header dict expects:
// (), (3,), (2, 3).
func shapeTuple(shape []int) string {
	switch len(shape) {
	case 0:
		return "()"
	case 1:
		return fmt.Sprintf("(%d,)", shape[0])
	default:
		parts := make([]string, len(shape))
		for i, d := range shape {
			parts[i] = strconv.Itoa(d)
		}
		return "(" + strings.Join(parts, ", ") + ")"
	}
}

// encodeNPY serializes one array as a complete NPY 1.0 member.
func encodeNPY(arr matfile.Array) ([]byte, error) {
	descr, err := descrFor(arr.Dtype)
	if err != nil {
		return nil, err
	}
	dict := fmt.Sprintf("{'descr': '%s', 'fortran_order': False, 'shape': %s, }", descr, shapeTuple(arr.Shape))

	// Pad the header so data starts on a 64-byte boundary, dict
	// terminated by a newline.
	prefix := len(npyMagic) + 2 + 2
	total := prefix + len(dict) + 1
	pad := 0
	if rem := total % 64; rem != 0 {
		pad = 64 - rem
	}
	header := dict + strings.Repeat(" ", pad) + "\n"

	out := make([]byte, 0, prefix+len(header))
	out = append(out, npyMagic...)
	out = append(out, 1, 0)
	out = le.AppendUint16(out, uint16(len(header)))
	out = append(out, header...)

	data, err := encodeData(arr, descr)
	if err != nil {
		return nil, err
	}
	return append(out, data...), nil
}

// encodeData serializes array elements little-endian in row-major
// order. String scalars become fixed-width UCS-4.
func encodeData(arr matfile.Array, descr string) ([]byte, error) {
	switch data := arr.Data.(type) {
	case []float64:
		out := make([]byte, 0, len(data)*8)
		for _, v := range data {
			out = le.AppendUint64(out, math.Float64bits(v))
		}
		return out, nil
	case []float32:
		out := make([]byte, 0, len(data)*4)
		for _, v := range data {
			out = le.AppendUint32(out, math.Float32bits(v))
		}
		return out, nil
	case []int8:
		out := make([]byte, len(data))
		for i, v := range data {
			out[i] = byte(v)
		}
		return out, nil
	case []uint8:
		return append([]byte(nil), data...), nil
	case []int16:
		out := make([]byte, 0, len(data)*2)
		for _, v := range data {
			out = le.AppendUint16(out, uint16(v))
		}
		return out, nil
	case []uint16:
		out := make([]byte, 0, len(data)*2)
		for _, v := range data {
			out = le.AppendUint16(out, v)
		}
		return out, nil
	case []int32:
		out := make([]byte, 0, len(data)*4)
		for _, v := range data {
			out = le.AppendUint32(out, uint32(v))
		}
		return out, nil
	case []uint32:
		out := make([]byte, 0, len(data)*4)
		for _, v := range data {
			out = le.AppendUint32(out, v)
		}
		return out, nil
	case []int64:
		out := make([]byte, 0, len(data)*8)
		for _, v := range data {
			out = le.AppendUint64(out, uint64(v))
		}
		return out, nil
	case []uint64:
		out := make([]byte, 0, len(data)*8)
		for _, v := range data {
			out = le.AppendUint64(out, v)
		}
		return out, nil
	case []complex64:
		out := make([]byte, 0, len(data)*8)
		for _, v := range data {
			out = le.AppendUint32(out, math.Float32bits(real(v)))
			out = le.AppendUint32(out, math.Float32bits(imag(v)))
		}
		return out, nil
	case []complex128:
		out := make([]byte, 0, len(data)*16)
		for _, v := range data {
			out = le.AppendUint64(out, math.Float64bits(real(v)))
			out = le.AppendUint64(out, math.Float64bits(imag(v)))
		}
		return out, nil
	case []bool:
		out := make([]byte, len(data))
		for i, v := range data {
			if v {
				out[i] = 1
			}
		}
		return out, nil
	case string:
		width, err := itemSize(descr)
		if err != nil {
			return nil, err
		}
		return appendUCS4(make([]byte, 0, width), data, width), nil
	case []string:
		width, err := itemSize(descr)
		if err != nil {
			return nil, err
		}
		out := make([]byte, 0, width*len(data))
		for _, s := range data {
			out = appendUCS4(out, s, width)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("cannot encode array data of type %T", arr.Data)
	}
}

// appendUCS4 appends one string as UCS-4 little-endian code points,
// NUL-padded to the element width.
func appendUCS4(out []byte, s string, width int) []byte {
	start := len(out)
	for _, r := range s {
		out = le.AppendUint32(out, uint32(r))
	}
	for len(out)-start < width {
		out = append(out, 0)
	}
	return out
}

// parseNPYHeader decodes the magic, version, and header dict of one
// NPY member, returning the descr, fortran flag, shape, and the
// offset where element data begins.
func parseNPYHeader(b []byte) (descr string, fortran bool, shape []int, dataOff int, err error) {
	if len(b) < 10 || string(b[:6]) != string(npyMagic) {
		return "", false, nil, 0, fmt.Errorf("not an NPY member")
	}
	major := b[6]
	var hlen, prefix int
	switch major {
	case 1:
		hlen = int(le.Uint16(b[8:10]))
		prefix = 10
	case 2, 3:
		if len(b) < 12 {
			return "", false, nil, 0, fmt.Errorf("truncated NPY header")
		}
		hlen = int(le.Uint32(b[8:12]))
		prefix = 12
	default:
		return "", false, nil, 0, fmt.Errorf("unsupported NPY version %d", major)
	}
	if len(b) < prefix+hlen {
		return "", false, nil, 0, fmt.Errorf("truncated NPY header")
	}
	dict := string(b[prefix : prefix+hlen])

	descr, err = dictString(dict, "descr")
	if err != nil {
		return "", false, nil, 0, err
	}
	fortran = strings.Contains(dict, "'fortran_order': True")
	shape, err = dictShape(dict)
	if err != nil {
		return "", false, nil, 0, err
	}
	return descr, fortran, shape, prefix + hlen, nil
}

// dictString extracts a quoted value from the header dict.
func dictString(dict, key string) (string, error) {
	marker := "'" + key + "':"
	i := strings.Index(dict, marker)
	if i < 0 {
		return "", fmt.Errorf("NPY header missing %q", key)
	}
	rest := dict[i+len(marker):]
	start := strings.IndexByte(rest, '\'')
	if start < 0 {
		return "", fmt.Errorf("NPY header missing %q value", key)
	}
	end := strings.IndexByte(rest[start+1:], '\'')
	if end < 0 {
		return "", fmt.Errorf("NPY header missing %q value", key)
	}
	return rest[start+1 : start+1+end], nil
}

// dictShape extracts the shape tuple from the header dict.
func dictShape(dict string) ([]int, error) {
	i := strings.Index(dict, "'shape':")
	if i < 0 {
		return nil, fmt.Errorf("NPY header missing shape")
	}
	rest := dict[i+len("'shape':"):]
	open := strings.IndexByte(rest, '(')
	closing := strings.IndexByte(rest, ')')
	if open < 0 || closing < open {
		return nil, fmt.Errorf("NPY header has malformed shape")
	}
	inner := strings.TrimSpace(rest[open+1 : closing])
	if inner == "" {
		return []int{}, nil
	}
	parts := strings.Split(inner, ",")
	shape := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		d, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("NPY header has malformed shape dim %q", p)
		}
		shape = append(shape, d)
	}
	return shape, nil
}
