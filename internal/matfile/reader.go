// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package matfile

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
)

// ErrUnsupported marks MAT features this reader does not decode
// (v7.3/HDF5 containers, big-endian files, sparse and object arrays).
var ErrUnsupported = errors.New("unsupported MAT feature")

// Data element types (MAT Level 5, table 1-1).
const (
	miINT8       = 1
	miUINT8      = 2
	miINT16      = 3
	miUINT16     = 4
	miINT32      = 5
	miUINT32     = 6
	miSINGLE     = 7
	miDOUBLE     = 9
	miINT64      = 12
	miUINT64     = 13
	miMATRIX     = 14
	miCOMPRESSED = 15
	miUTF8       = 16
	miUTF16      = 17
	miUTF32      = 18
)

// Matrix classes (table 1-3).
const (
	mxCELL   = 1
	mxSTRUCT = 2
	mxOBJECT = 3
	mxCHAR   = 4
	mxSPARSE = 5
	mxDOUBLE = 6
	mxSINGLE = 7
	mxINT8   = 8
	mxUINT8  = 9
	mxINT16  = 10
	mxUINT16 = 11
	mxINT32  = 12
	mxUINT32 = 13
	mxINT64  = 14
	mxUINT64 = 15
)

// Array flag bits in the first word of the array flags sub-element.
const (
	flagComplex = 0x0800
	flagGlobal  = 0x0400
	flagLogical = 0x0200
)

const headerSize = 128

var le = binary.LittleEndian

// Read loads a MAT Level 5 file and returns its top-level record.
// The record includes synthesized "__header__", "__version__", and
// "__globals__" entries ahead of the file's variables, matching the
// mapping shape produced by scipy's loadmat.
func Read(path string) (Struct, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Struct{}, err
	}
	return decode(data, path)
}

func decode(data []byte, path string) (Struct, error) {
	if len(data) < headerSize {
		return Struct{}, fmt.Errorf("%s: too short to be a MAT Level 5 file", path)
	}

	text := headerText(data[:116])
	if strings.HasPrefix(text, "MATLAB 7.3") {
		return Struct{}, fmt.Errorf("%s: v7.3 (HDF5) container: %w", path, ErrUnsupported)
	}
	switch string(data[126:128]) {
	case "IM":
		// little-endian, the only byte order we decode
	case "MI":
		return Struct{}, fmt.Errorf("%s: big-endian file: %w", path, ErrUnsupported)
	default:
		return Struct{}, fmt.Errorf("%s: missing MAT Level 5 endian indicator", path)
	}
	if le.Uint16(data[124:126]) != 0x0100 {
		return Struct{}, fmt.Errorf("%s: unexpected MAT version field", path)
	}

	var (
		record  Struct
		vars    Struct
		globals []Value
	)
	record.Set("__header__", Str(text))
	record.Set("__version__", Str("1.0"))

	r := &cursor{buf: data, pos: headerSize}
	for r.remaining() >= 8 {
		typ, payload, err := r.element()
		if err != nil {
			return Struct{}, fmt.Errorf("%s: %w", path, err)
		}
		if typ == miCOMPRESSED {
			payload, err = inflate(payload)
			if err != nil {
				return Struct{}, fmt.Errorf("%s: decompressing element: %w", path, err)
			}
			inner := &cursor{buf: payload}
			typ, payload, err = inner.element()
			if err != nil {
				return Struct{}, fmt.Errorf("%s: %w", path, err)
			}
		}
		if typ != miMATRIX {
			return Struct{}, fmt.Errorf("%s: unexpected top-level element type %d", path, typ)
		}
		if len(payload) == 0 {
			continue
		}
		name, v, global, err := decodeMatrix(payload)
		if err != nil {
			return Struct{}, fmt.Errorf("%s: %w", path, err)
		}
		vars.Set(name, v)
		if global {
			globals = append(globals, Str(name))
		}
	}

	record.Set("__globals__", Cell{Elems: globals})
	for _, k := range vars.Keys {
		record.Set(k, vars.Fields[k])
	}
	return record, nil
}

// headerText trims the 116-byte descriptive text at the first NUL and
// drops trailing spaces.
func headerText(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return strings.TrimRight(string(b), " ")
}

func inflate(data []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

// cursor walks data elements inside a byte buffer.
type cursor struct {
	buf []byte
	pos int
}

func (c *cursor) remaining() int {
	return len(c.buf) - c.pos
}

// element reads one data element, handling the small-data-element
// packing and the 8-byte alignment rule. miCOMPRESSED payloads are
// not padded, so they advance by their exact byte count.
func (c *cursor) element() (uint32, []byte, error) {
	if c.remaining() < 8 {
		return 0, nil, fmt.Errorf("truncated element tag at offset %d", c.pos)
	}
	typ := le.Uint32(c.buf[c.pos:])
	if typ&0xFFFF0000 != 0 {
		// Small data element: byte count in the upper half of the
		// type word, data packed into the remaining 4 tag bytes.
		size := int(typ >> 16)
		typ &= 0xFFFF
		if size > 4 {
			return 0, nil, fmt.Errorf("small element with size %d at offset %d", size, c.pos)
		}
		data := c.buf[c.pos+4 : c.pos+4+size]
		c.pos += 8
		return typ, data, nil
	}

	size := int(le.Uint32(c.buf[c.pos+4:]))
	start := c.pos + 8
	if start+size > len(c.buf) {
		return 0, nil, fmt.Errorf("element overruns buffer at offset %d", c.pos)
	}
	data := c.buf[start : start+size]
	c.pos = start + size
	if typ != miCOMPRESSED {
		if rem := c.pos % 8; rem != 0 {
			c.pos += 8 - rem
			if c.pos > len(c.buf) {
				c.pos = len(c.buf)
			}
		}
	}
	return typ, data, nil
}

// decodeMatrix decodes one miMATRIX payload into its name and value.
func decodeMatrix(data []byte) (string, Value, bool, error) {
	c := &cursor{buf: data}

	typ, flags, err := c.element()
	if err != nil {
		return "", nil, false, err
	}
	if typ != miUINT32 || len(flags) < 8 {
		return "", nil, false, fmt.Errorf("malformed array flags element (type %d)", typ)
	}
	flagWord := le.Uint32(flags)
	class := int(flagWord & 0xFF)
	isComplex := flagWord&flagComplex != 0
	isGlobal := flagWord&flagGlobal != 0
	isLogical := flagWord&flagLogical != 0

	typ, dimData, err := c.element()
	if err != nil {
		return "", nil, false, err
	}
	if typ != miINT32 {
		return "", nil, false, fmt.Errorf("malformed dimensions element (type %d)", typ)
	}
	dims := make([]int, len(dimData)/4)
	for i := range dims {
		dims[i] = int(int32(le.Uint32(dimData[i*4:])))
	}

	_, nameData, err := c.element()
	if err != nil {
		return "", nil, false, err
	}
	name := string(nameData)

	var v Value
	switch class {
	case mxCELL:
		v, err = decodeCell(c, dims)
	case mxSTRUCT:
		v, err = decodeStruct(c, dims)
	case mxCHAR:
		v, err = decodeChar(c, dims)
	case mxOBJECT:
		err = fmt.Errorf("object array %q: %w", name, ErrUnsupported)
	case mxSPARSE:
		err = fmt.Errorf("sparse array %q: %w", name, ErrUnsupported)
	default:
		v, err = decodeNumeric(c, class, dims, isComplex, isLogical)
	}
	if err != nil {
		return "", nil, false, err
	}
	return name, v, isGlobal, nil
}

func decodeCell(c *cursor, dims []int) (Value, error) {
	n := count(dims)
	elems := make([]Value, 0, n)
	for i := 0; i < n; i++ {
		typ, payload, err := c.element()
		if err != nil {
			return nil, err
		}
		if typ != miMATRIX {
			return nil, fmt.Errorf("cell element %d has type %d, want miMATRIX", i, typ)
		}
		elems = append(elems, decodeSubmatrix(payload))
	}
	elems = toRowMajor(elems, dims)
	if n == 1 {
		return Boxed{Elem: elems[0]}, nil
	}
	return Cell{Elems: elems}, nil
}

func decodeStruct(c *cursor, dims []int) (Value, error) {
	typ, lenData, err := c.element()
	if err != nil {
		return nil, err
	}
	if typ != miINT32 || len(lenData) < 4 {
		return nil, fmt.Errorf("malformed field name length element (type %d)", typ)
	}
	nameLen := int(int32(le.Uint32(lenData)))

	typ, nameData, err := c.element()
	if err != nil {
		return nil, err
	}
	if typ != miINT8 {
		return nil, fmt.Errorf("malformed field names element (type %d)", typ)
	}
	if nameLen <= 0 {
		return Struct{}, nil
	}
	fields := make([]string, 0, len(nameData)/nameLen)
	for off := 0; off+nameLen <= len(nameData); off += nameLen {
		raw := nameData[off : off+nameLen]
		if i := bytes.IndexByte(raw, 0); i >= 0 {
			raw = raw[:i]
		}
		fields = append(fields, string(raw))
	}

	n := count(dims)
	elems := make([]Value, 0, n)
	for e := 0; e < n; e++ {
		var s Struct
		for _, f := range fields {
			typ, payload, err := c.element()
			if err != nil {
				return nil, err
			}
			if typ != miMATRIX {
				return nil, fmt.Errorf("struct field %q has type %d, want miMATRIX", f, typ)
			}
			s.Set(f, decodeSubmatrix(payload))
		}
		elems = append(elems, s)
	}
	if n == 1 {
		return elems[0], nil
	}
	elems = toRowMajor(elems, dims)
	return Cell{Elems: elems}, nil
}

// decodeSubmatrix decodes a nested miMATRIX, mapping an empty payload
// (MATLAB's []) to an empty double array.
func decodeSubmatrix(payload []byte) Value {
	if len(payload) == 0 {
		return Array{Shape: []int{0, 0}, Dtype: "float64", Data: []float64{}}
	}
	_, v, _, err := decodeMatrix(payload)
	if err != nil {
		// Surfaced by the caller through the containing element; an
		// undecodable nested matrix becomes an explicit error value.
		return errorValue{err}
	}
	return v
}

// errorValue defers a nested decode failure until the tree is walked.
type errorValue struct{ err error }

func (errorValue) isValue() {}

// Err extracts a deferred decode error from a value, if any.
func Err(v Value) error {
	if ev, ok := v.(errorValue); ok {
		return ev.err
	}
	return nil
}

func decodeChar(c *cursor, dims []int) (Value, error) {
	typ, data, err := c.element()
	if err != nil {
		return nil, err
	}
	var runes []rune
	switch typ {
	case miUINT16, miUTF16:
		runes = make([]rune, len(data)/2)
		for i := range runes {
			runes[i] = rune(le.Uint16(data[i*2:]))
		}
	case miUTF32:
		runes = make([]rune, len(data)/4)
		for i := range runes {
			runes[i] = rune(le.Uint32(data[i*4:]))
		}
	case miUTF8:
		runes = []rune(string(data))
	case miINT8, miUINT8:
		runes = make([]rune, len(data))
		for i, b := range data {
			runes[i] = rune(b)
		}
	default:
		return nil, fmt.Errorf("char array with storage type %d: %w", typ, ErrUnsupported)
	}

	if count(dims) == 0 || len(runes) == 0 {
		return Str(""), nil
	}
	rows, cols := 1, len(runes)
	if len(dims) == 2 {
		rows, cols = dims[0], dims[1]
	} else if len(dims) > 2 {
		return nil, fmt.Errorf("char array of rank %d: %w", len(dims), ErrUnsupported)
	}
	if rows <= 1 {
		return Str(string(runes)), nil
	}

	// Multi-row char matrices are stored column-major. An r x c char
	// matrix becomes one fixed-width string array of shape (r,) with
	// dtype <Uc, the same conversion the original loader applies.
	out := make([]string, rows)
	for i := 0; i < rows; i++ {
		row := make([]rune, cols)
		for j := 0; j < cols; j++ {
			row[j] = runes[j*rows+i]
		}
		out[i] = string(row)
	}
	return Array{Shape: []int{rows}, Dtype: fmt.Sprintf("<U%d", cols), Data: out}, nil
}

func decodeNumeric(c *cursor, class int, dims []int, isComplex, isLogical bool) (Value, error) {
	typ, data, err := c.element()
	if err != nil {
		return nil, err
	}

	n := count(dims)
	if isComplex {
		re, err := elementFloats(typ, data)
		if err != nil {
			return nil, err
		}
		typ, data, err = c.element()
		if err != nil {
			return nil, err
		}
		im, err := elementFloats(typ, data)
		if err != nil {
			return nil, err
		}
		if len(re) != n || len(im) != n {
			return nil, fmt.Errorf("complex array has %d/%d values for %d elements", len(re), len(im), n)
		}
		if class == mxSINGLE {
			vals := make([]complex64, n)
			for i := range vals {
				vals[i] = complex(float32(re[i]), float32(im[i]))
			}
			return Array{Shape: squeeze(dims), Dtype: "complex64", Data: toRowMajor(vals, dims)}, nil
		}
		vals := make([]complex128, n)
		for i := range vals {
			vals[i] = complex(re[i], im[i])
		}
		return Array{Shape: squeeze(dims), Dtype: "complex128", Data: toRowMajor(vals, dims)}, nil
	}

	// 64-bit integer classes keep their width; everything else goes
	// through float64, which is exact for the narrower storage types
	// MATLAB uses to compress double data.
	if class == mxINT64 && typ == miINT64 {
		vals := make([]int64, len(data)/8)
		for i := range vals {
			vals[i] = int64(le.Uint64(data[i*8:]))
		}
		return numericArray(dims, "int64", toRowMajor(vals, dims), len(vals), n)
	}
	if class == mxUINT64 && typ == miUINT64 {
		vals := make([]uint64, len(data)/8)
		for i := range vals {
			vals[i] = le.Uint64(data[i*8:])
		}
		return numericArray(dims, "uint64", toRowMajor(vals, dims), len(vals), n)
	}

	floats, err := elementFloats(typ, data)
	if err != nil {
		return nil, err
	}
	if len(floats) != n {
		return nil, fmt.Errorf("numeric array has %d values for %d elements", len(floats), n)
	}
	floats = toRowMajor(floats, dims)

	if isLogical {
		vals := make([]bool, n)
		for i, f := range floats {
			vals[i] = f != 0
		}
		return Array{Shape: squeeze(dims), Dtype: "bool", Data: vals}, nil
	}

	switch class {
	case mxDOUBLE:
		return Array{Shape: squeeze(dims), Dtype: "float64", Data: floats}, nil
	case mxSINGLE:
		return Array{Shape: squeeze(dims), Dtype: "float32", Data: convert[float32](floats)}, nil
	case mxINT8:
		return Array{Shape: squeeze(dims), Dtype: "int8", Data: convert[int8](floats)}, nil
	case mxUINT8:
		return Array{Shape: squeeze(dims), Dtype: "uint8", Data: convert[uint8](floats)}, nil
	case mxINT16:
		return Array{Shape: squeeze(dims), Dtype: "int16", Data: convert[int16](floats)}, nil
	case mxUINT16:
		return Array{Shape: squeeze(dims), Dtype: "uint16", Data: convert[uint16](floats)}, nil
	case mxINT32:
		return Array{Shape: squeeze(dims), Dtype: "int32", Data: convert[int32](floats)}, nil
	case mxUINT32:
		return Array{Shape: squeeze(dims), Dtype: "uint32", Data: convert[uint32](floats)}, nil
	case mxINT64:
		return Array{Shape: squeeze(dims), Dtype: "int64", Data: convert[int64](floats)}, nil
	case mxUINT64:
		return Array{Shape: squeeze(dims), Dtype: "uint64", Data: convert[uint64](floats)}, nil
	default:
		return nil, fmt.Errorf("matrix class %d: %w", class, ErrUnsupported)
	}
}

func numericArray(dims []int, dtype string, data any, got, want int) (Value, error) {
	if got != want {
		return nil, fmt.Errorf("numeric array has %d values for %d elements", got, want)
	}
	return Array{Shape: squeeze(dims), Dtype: dtype, Data: data}, nil
}

// elementFloats decodes a numeric data element payload to float64s.
func elementFloats(typ uint32, data []byte) ([]float64, error) {
	switch typ {
	case miINT8:
		out := make([]float64, len(data))
		for i, b := range data {
			out[i] = float64(int8(b))
		}
		return out, nil
	case miUINT8:
		out := make([]float64, len(data))
		for i, b := range data {
			out[i] = float64(b)
		}
		return out, nil
	case miINT16:
		out := make([]float64, len(data)/2)
		for i := range out {
			out[i] = float64(int16(le.Uint16(data[i*2:])))
		}
		return out, nil
	case miUINT16:
		out := make([]float64, len(data)/2)
		for i := range out {
			out[i] = float64(le.Uint16(data[i*2:]))
		}
		return out, nil
	case miINT32:
		out := make([]float64, len(data)/4)
		for i := range out {
			out[i] = float64(int32(le.Uint32(data[i*4:])))
		}
		return out, nil
	case miUINT32:
		out := make([]float64, len(data)/4)
		for i := range out {
			out[i] = float64(le.Uint32(data[i*4:]))
		}
		return out, nil
	case miSINGLE:
		out := make([]float64, len(data)/4)
		for i := range out {
			out[i] = float64(math.Float32frombits(le.Uint32(data[i*4:])))
		}
		return out, nil
	case miDOUBLE:
		out := make([]float64, len(data)/8)
		for i := range out {
			out[i] = math.Float64frombits(le.Uint64(data[i*8:]))
		}
		return out, nil
	case miINT64:
		out := make([]float64, len(data)/8)
		for i := range out {
			out[i] = float64(int64(le.Uint64(data[i*8:])))
		}
		return out, nil
	case miUINT64:
		out := make([]float64, len(data)/8)
		for i := range out {
			out[i] = float64(le.Uint64(data[i*8:]))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("numeric storage type %d: %w", typ, ErrUnsupported)
	}
}

func convert[T int8 | uint8 | int16 | uint16 | int32 | uint32 | int64 | uint64 | float32](src []float64) []T {
	out := make([]T, len(src))
	for i, f := range src {
		out[i] = T(f)
	}
	return out
}

// count returns the total element count for a dimension list.
func count(dims []int) int {
	n := 1
	for _, d := range dims {
		n *= d
	}
	return n
}

// squeeze removes singleton dimensions; a fully singleton shape
// collapses to the zero-dimensional scalar shape.
func squeeze(dims []int) []int {
	out := []int{}
	for _, d := range dims {
		if d != 1 {
			out = append(out, d)
		}
	}
	return out
}

// toRowMajor reorders column-major values into row-major order.
func toRowMajor[T any](vals []T, dims []int) []T {
	if len(dims) < 2 || len(vals) != count(dims) {
		return vals
	}
	strides := make([]int, len(dims))
	strides[len(dims)-1] = 1
	for k := len(dims) - 2; k >= 0; k-- {
		strides[k] = strides[k+1] * dims[k+1]
	}
	out := make([]T, len(vals))
	coords := make([]int, len(dims))
	for _, v := range vals {
		dst := 0
		for k, c := range coords {
			dst += c * strides[k]
		}
		out[dst] = v
		// Advance coordinates with the first dimension fastest, the
		// column-major storage order of the source.
		for k := 0; k < len(dims); k++ {
			coords[k]++
			if coords[k] < dims[k] {
				break
			}
			coords[k] = 0
		}
	}
	return out
}
