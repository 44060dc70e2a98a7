// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package npz

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/pdiddy/matconv/internal/matfile"
)

// Write persists the flat key → array mapping as a compressed NPZ
// archive at path. Members are written in sorted key order so the
// archive bytes are reproducible.
func Write(path string, arrays map[string]matfile.Array) error {
	keys := make([]string, 0, len(arrays))
	for k := range arrays {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	// Assembled in memory so a failed encode never leaves a partial
	// archive on disk.
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, key := range keys {
		member, err := encodeNPY(arrays[key])
		if err != nil {
			return fmt.Errorf("encoding %q: %w", key, err)
		}
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:   key + ".npy",
			Method: zip.Deflate,
		})
		if err != nil {
			return fmt.Errorf("adding member %q: %w", key, err)
		}
		if _, err := w.Write(member); err != nil {
			return fmt.Errorf("writing member %q: %w", key, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finishing archive: %w", err)
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// Entry is one decoded archive member.
type Entry struct {
	// Name is the flat key (member name without the .npy suffix).
	Name string

	// Descr is the NPY dtype descriptor ("<f8", "<U3", ...).
	Descr string

	// Shape is the recorded dimensions; empty for scalars.
	Shape []int

	// Fortran reports column-major element order.
	Fortran bool

	// Data holds the raw little-endian element bytes.
	Data []byte
}

// Dtype returns the canonical dtype name for the entry.
func (e Entry) Dtype() string {
	return DtypeFor(e.Descr)
}

// Float64s decodes the entry's elements as float64 values. Only the
// real floating and integer descrs are supported.
func (e Entry) Float64s() ([]float64, error) {
	size, err := itemSize(e.Descr)
	if err != nil {
		return nil, err
	}
	if size == 0 || len(e.Data)%size != 0 {
		return nil, fmt.Errorf("member %q has %d data bytes for descr %q", e.Name, len(e.Data), e.Descr)
	}
	n := len(e.Data) / size
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		b := e.Data[i*size:]
		switch e.Descr {
		case "<f8":
			out[i] = math.Float64frombits(le.Uint64(b))
		case "<f4":
			out[i] = float64(math.Float32frombits(le.Uint32(b)))
		case "|i1":
			out[i] = float64(int8(b[0]))
		case "|u1", "|b1":
			out[i] = float64(b[0])
		case "<i2":
			out[i] = float64(int16(le.Uint16(b)))
		case "<u2":
			out[i] = float64(le.Uint16(b))
		case "<i4":
			out[i] = float64(int32(le.Uint32(b)))
		case "<u4":
			out[i] = float64(le.Uint32(b))
		case "<i8":
			out[i] = float64(int64(le.Uint64(b)))
		case "<u8":
			out[i] = float64(le.Uint64(b))
		default:
			return nil, fmt.Errorf("cannot decode descr %q as float64", e.Descr)
		}
	}
	return out, nil
}

// Text decodes a "<Un" entry back to its string value, dropping the
// fixed-width NUL padding.
func (e Entry) Text() (string, error) {
	if !strings.HasPrefix(e.Descr, "<U") {
		return "", fmt.Errorf("member %q has non-string descr %q", e.Name, e.Descr)
	}
	return decodeUCS4(e.Data), nil
}

// Strings decodes a "<Un" entry into its per-element strings.
func (e Entry) Strings() ([]string, error) {
	if !strings.HasPrefix(e.Descr, "<U") {
		return nil, fmt.Errorf("member %q has non-string descr %q", e.Name, e.Descr)
	}
	size, err := itemSize(e.Descr)
	if err != nil {
		return nil, err
	}
	if size == 0 || len(e.Data)%size != 0 {
		return nil, fmt.Errorf("member %q has %d data bytes for descr %q", e.Name, len(e.Data), e.Descr)
	}
	out := make([]string, 0, len(e.Data)/size)
	for off := 0; off < len(e.Data); off += size {
		out = append(out, decodeUCS4(e.Data[off:off+size]))
	}
	return out, nil
}

// decodeUCS4 reads little-endian code points up to the first NUL.
func decodeUCS4(b []byte) string {
	runes := make([]rune, 0, len(b)/4)
	for i := 0; i+4 <= len(b); i += 4 {
		r := rune(le.Uint32(b[i:]))
		if r == 0 {
			break
		}
		runes = append(runes, r)
	}
	return string(runes)
}

// Read loads every member of an NPZ archive.
func Read(path string) (map[string]Entry, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	defer zr.Close()

	entries := make(map[string]Entry, len(zr.File))
	for _, zf := range zr.File {
		name := strings.TrimSuffix(zf.Name, ".npy")
		rc, err := zf.Open()
		if err != nil {
			return nil, fmt.Errorf("opening member %q: %w", zf.Name, err)
		}
		raw, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("reading member %q: %w", zf.Name, err)
		}
		descr, fortran, shape, off, err := parseNPYHeader(raw)
		if err != nil {
			return nil, fmt.Errorf("member %q: %w", zf.Name, err)
		}
		entries[name] = Entry{
			Name:    name,
			Descr:   descr,
			Shape:   shape,
			Fortran: fortran,
			Data:    raw[off:],
		}
	}
	return entries, nil
}
