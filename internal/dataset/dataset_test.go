// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package dataset

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pdiddy/matconv/internal/flatten"
	"github.com/pdiddy/matconv/internal/matfile"
	"github.com/pdiddy/matconv/internal/npz"
	"github.com/pdiddy/matconv/pkg/types"
)

// fakeLoader implements Loader for testing. It returns a canned
// record (or an error for specific paths) and logs the load order.
type fakeLoader struct {
	record matfile.Struct
	errFor map[string]error
	loaded []string
}

func (f *fakeLoader) Load(path string) (matfile.Struct, error) {
	f.loaded = append(f.loaded, filepath.Base(path))
	if err := f.errFor[filepath.Base(path)]; err != nil {
		return matfile.Struct{}, err
	}
	return f.record, nil
}

func scalar(v float64) matfile.Array {
	return matfile.Array{Shape: []int{}, Dtype: "float64", Data: []float64{v}}
}

func sampleRecord() matfile.Struct {
	var rec matfile.Struct
	rec.Set("__header__", matfile.Str("MATLAB 5.0 MAT-file"))
	rec.Set("signal", matfile.Cell{Elems: []matfile.Value{scalar(1), scalar(2), scalar(3)}})
	rec.Set("label", matfile.Str("pink noise"))
	return rec
}

// writeSources creates empty .mat placeholder files for batch runs;
// the fake loader never reads their bytes.
func writeSources(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("mat"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestConvert(t *testing.T) {
	dir := t.TempDir()
	npzPath := filepath.Join(dir, "run.npz")
	manifestPath := filepath.Join(dir, "run.json")
	loader := &fakeLoader{record: sampleRecord()}

	shapes, err := Convert(loader, "/data/run.mat", npzPath, manifestPath)
	if err != nil {
		t.Fatal(err)
	}

	wantKeys := []string{"label", "signal_0", "signal_1", "signal_2"}
	if len(shapes) != len(wantKeys) {
		t.Fatalf("shapes = %v, want keys %v", shapes, wantKeys)
	}
	for _, k := range wantKeys {
		if _, ok := shapes[k]; !ok {
			t.Errorf("missing flat key %q", k)
		}
	}

	// Round-trip: every manifest key exists in the archive with the
	// recorded shape and dtype.
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		t.Fatal(err)
	}
	var manifest types.Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		t.Fatal(err)
	}
	entries, err := npz.Read(npzPath)
	if err != nil {
		t.Fatal(err)
	}
	for key, info := range manifest.Arrays {
		entry, ok := entries[key]
		if !ok {
			t.Errorf("manifest key %q missing from archive", key)
			continue
		}
		if entry.Dtype() != info.Dtype {
			t.Errorf("key %q: archive dtype %q, manifest dtype %q", key, entry.Dtype(), info.Dtype)
		}
		if fmt.Sprint(entry.Shape) != fmt.Sprint(info.Shape) {
			t.Errorf("key %q: archive shape %v, manifest shape %v", key, entry.Shape, info.Shape)
		}
	}

	if manifest.SourceFile != "/data/run.mat" {
		t.Errorf("source_file = %q", manifest.SourceFile)
	}
	if manifest.NpzFile != npzPath {
		t.Errorf("npz_file = %q", manifest.NpzFile)
	}
	if manifest.ConvertedAt == "" {
		t.Error("converted_at should be set")
	}

	// Manifest layout is fixed: 2-space indent, sorted keys.
	if !strings.HasPrefix(string(data), "{\n  \"arrays\"") {
		t.Errorf("manifest should open with the arrays mapping, got %.30q", string(data))
	}
}

func TestConvertForceIdempotent(t *testing.T) {
	dir := t.TempDir()
	npzPath := filepath.Join(dir, "run.npz")
	manifestPath := filepath.Join(dir, "run.json")
	loader := &fakeLoader{record: sampleRecord()}

	if _, err := Convert(loader, "/data/run.mat", npzPath, manifestPath); err != nil {
		t.Fatal(err)
	}
	first, err := os.ReadFile(npzPath)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Convert(loader, "/data/run.mat", npzPath, manifestPath); err != nil {
		t.Fatal(err)
	}
	second, err := os.ReadFile(npzPath)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, second) {
		t.Error("re-converting the same input must reproduce the archive byte-for-byte")
	}
}

func TestConvertEmptyRecord(t *testing.T) {
	dir := t.TempDir()
	npzPath := filepath.Join(dir, "run.npz")
	manifestPath := filepath.Join(dir, "run.json")

	var rec matfile.Struct
	rec.Set("__header__", matfile.Str("MATLAB 5.0 MAT-file"))
	rec.Set("__version__", matfile.Str("1.0"))
	loader := &fakeLoader{record: rec}

	_, err := Convert(loader, "/data/empty.mat", npzPath, manifestPath)
	if !errors.Is(err, flatten.ErrNoArrays) {
		t.Fatalf("err = %v, want ErrNoArrays", err)
	}
	assertNotExists(t, npzPath)
	assertNotExists(t, manifestPath)
}

func TestConvertDuplicateKey(t *testing.T) {
	dir := t.TempDir()
	npzPath := filepath.Join(dir, "run.npz")
	manifestPath := filepath.Join(dir, "run.json")

	var nested matfile.Struct
	nested.Set("b", scalar(2))
	var rec matfile.Struct
	rec.Set("a_b", scalar(1))
	rec.Set("a", nested)
	loader := &fakeLoader{record: rec}

	_, err := Convert(loader, "/data/dup.mat", npzPath, manifestPath)
	if !errors.Is(err, flatten.ErrDuplicateKey) {
		t.Fatalf("err = %v, want ErrDuplicateKey", err)
	}
	assertNotExists(t, npzPath)
	assertNotExists(t, manifestPath)
}

func assertNotExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err == nil {
		t.Errorf("%s should not have been written", path)
	}
}

func TestRunBatchOrder(t *testing.T) {
	inputDir := t.TempDir()
	writeSources(t, inputDir, "b.mat", "a.mat", "c.mat")
	loader := &fakeLoader{record: sampleRecord()}

	var log bytes.Buffer
	result, err := RunBatch(loader, BatchOptions{
		InputDir:   inputDir,
		Conversion: types.ConversionConfig{OutputDir: t.TempDir(), Experiment: "ExpD"},
	}, &log)
	if err != nil {
		t.Fatal(err)
	}

	if result.Converted != 3 || result.Skipped != 0 {
		t.Errorf("result = %+v, want 3 converted", result)
	}
	want := []string{"a.mat", "b.mat", "c.mat"}
	if fmt.Sprint(loader.loaded) != fmt.Sprint(want) {
		t.Errorf("load order = %v, want %v", loader.loaded, want)
	}
}

func TestRunBatchSkipAccounting(t *testing.T) {
	inputDir := t.TempDir()
	outputDir := t.TempDir()
	writeSources(t, inputDir, "a.mat", "b.mat", "c.mat")

	// Pre-create both outputs for "b" to trigger a skip.
	destDir := filepath.Join(outputDir, "ExpD")
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"b.npz", "b.json"} {
		if err := os.WriteFile(filepath.Join(destDir, name), []byte("existing"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	loader := &fakeLoader{record: sampleRecord()}
	var log bytes.Buffer
	result, err := RunBatch(loader, BatchOptions{
		InputDir:   inputDir,
		Conversion: types.ConversionConfig{OutputDir: outputDir, Experiment: "ExpD"},
	}, &log)
	if err != nil {
		t.Fatal(err)
	}

	if result.Converted != 2 {
		t.Errorf("converted = %d, want 2", result.Converted)
	}
	if result.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", result.Skipped)
	}
	if !strings.Contains(log.String(), "skipped: b") {
		t.Errorf("log %q should mention the skipped dataset", log.String())
	}
	if !strings.Contains(log.String(), "Batch summary: 2 converted, 1 skipped") {
		t.Errorf("log %q should contain the summary line", log.String())
	}

	// Skipped outputs are left untouched.
	data, err := os.ReadFile(filepath.Join(destDir, "b.npz"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "existing" {
		t.Error("skip must not rewrite existing outputs")
	}
}

func TestRunBatchForceRebuilds(t *testing.T) {
	inputDir := t.TempDir()
	outputDir := t.TempDir()
	writeSources(t, inputDir, "a.mat")

	destDir := filepath.Join(outputDir, "ExpD")
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(destDir, "a.npz"), []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}

	loader := &fakeLoader{record: sampleRecord()}
	var log bytes.Buffer
	result, err := RunBatch(loader, BatchOptions{
		InputDir:   inputDir,
		Conversion: types.ConversionConfig{OutputDir: outputDir, Experiment: "ExpD", Force: true},
	}, &log)
	if err != nil {
		t.Fatal(err)
	}
	if result.Converted != 1 || result.Skipped != 0 {
		t.Errorf("result = %+v, want 1 converted", result)
	}
	if _, err := npz.Read(filepath.Join(destDir, "a.npz")); err != nil {
		t.Errorf("forced rebuild should replace the stale archive: %v", err)
	}
}

func TestRunBatchMissingInputDir(t *testing.T) {
	loader := &fakeLoader{record: sampleRecord()}
	_, err := RunBatch(loader, BatchOptions{
		InputDir:   filepath.Join(t.TempDir(), "absent"),
		Conversion: types.ConversionConfig{OutputDir: t.TempDir(), Experiment: "ExpD"},
	}, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "does not exist") {
		t.Fatalf("err = %v, want input directory not found", err)
	}
}

func TestRunBatchNoMatches(t *testing.T) {
	loader := &fakeLoader{record: sampleRecord()}
	_, err := RunBatch(loader, BatchOptions{
		InputDir:   t.TempDir(),
		Conversion: types.ConversionConfig{OutputDir: t.TempDir(), Experiment: "ExpD"},
	}, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "no files matching") {
		t.Fatalf("err = %v, want zero-match failure", err)
	}
}

func TestRunBatchFailFast(t *testing.T) {
	inputDir := t.TempDir()
	writeSources(t, inputDir, "a.mat", "b.mat", "c.mat")
	loader := &fakeLoader{
		record: sampleRecord(),
		errFor: map[string]error{"b.mat": errors.New("corrupt element")},
	}

	var log bytes.Buffer
	result, err := RunBatch(loader, BatchOptions{
		InputDir:   inputDir,
		Conversion: types.ConversionConfig{OutputDir: t.TempDir(), Experiment: "ExpD"},
	}, &log)
	if err == nil || !strings.Contains(err.Error(), "b.mat") {
		t.Fatalf("err = %v, want failure naming b.mat", err)
	}
	if result.Converted != 1 {
		t.Errorf("converted = %d, want 1 before the abort", result.Converted)
	}
	if len(loader.loaded) != 2 {
		t.Errorf("loaded = %v, batch must stop at the failing file", loader.loaded)
	}
}

// captureRecorder collects catalog entries without a database.
type captureRecorder struct {
	entries []types.CatalogEntry
}

func (c *captureRecorder) Record(_ context.Context, e types.CatalogEntry) error {
	c.entries = append(c.entries, e)
	return nil
}

func TestRunBatchRecords(t *testing.T) {
	inputDir := t.TempDir()
	writeSources(t, inputDir, "a.mat", "b.mat")
	loader := &fakeLoader{record: sampleRecord()}
	rec := &captureRecorder{}

	_, err := RunBatch(loader, BatchOptions{
		InputDir:   inputDir,
		Conversion: types.ConversionConfig{OutputDir: t.TempDir(), Experiment: "ExpD"},
		Recorder:   rec,
	}, &bytes.Buffer{})
	if err != nil {
		t.Fatal(err)
	}

	if len(rec.entries) != 2 {
		t.Fatalf("recorded %d entries, want 2", len(rec.entries))
	}
	if rec.entries[0].Dataset != "a" || rec.entries[0].Experiment != "ExpD" {
		t.Errorf("entry = %+v", rec.entries[0])
	}
	if rec.entries[0].ArrayCount != 4 {
		t.Errorf("array count = %d, want 4", rec.entries[0].ArrayCount)
	}
}

func TestOutputPaths(t *testing.T) {
	cfg := types.ConversionConfig{OutputDir: "out", Experiment: "ExpD"}
	npzPath, manifestPath := OutputPaths(cfg, "run1")
	if npzPath != filepath.Join("out", "ExpD", "run1.npz") {
		t.Errorf("npzPath = %q", npzPath)
	}
	if manifestPath != filepath.Join("out", "ExpD", "run1.json") {
		t.Errorf("manifestPath = %q", manifestPath)
	}
}

func TestCheckExisting(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "present.npz")
	if err := os.WriteFile(present, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := CheckExisting(filepath.Join(dir, "absent.npz")); err != nil {
		t.Errorf("absent outputs should pass, got %v", err)
	}
	err := CheckExisting(present)
	if !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("err = %v, want ErrAlreadyExists", err)
	}
}

func TestLoadPlan(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.yaml")
	plan := `jobs:
  - input_dir: raw/ExpD
    experiment: ExpD
  - input_dir: raw/ExpE
    experiment: ExpE
    pattern: "pinknoise_*.mat"
`
	if err := os.WriteFile(path, []byte(plan), 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := LoadPlan(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Jobs) != 2 {
		t.Fatalf("jobs = %d, want 2", len(p.Jobs))
	}
	if p.Jobs[1].Pattern != "pinknoise_*.mat" {
		t.Errorf("pattern = %q", p.Jobs[1].Pattern)
	}
}

func TestLoadPlanValidation(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"empty plan", "jobs: []\n", "no jobs"},
		{"missing input dir", "jobs:\n  - experiment: ExpD\n", "input_dir"},
		{"missing experiment", "jobs:\n  - input_dir: raw\n", "experiment"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, strings.ReplaceAll(tt.name, " ", "-")+".yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			_, err := LoadPlan(path)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestRunPlan(t *testing.T) {
	dirD := t.TempDir()
	dirE := t.TempDir()
	writeSources(t, dirD, "a.mat")
	writeSources(t, dirE, "b.mat", "c.mat")
	outputDir := t.TempDir()

	plan := &Plan{Jobs: []PlanJob{
		{InputDir: dirD, Experiment: "ExpD"},
		{InputDir: dirE, Experiment: "ExpE"},
	}}
	loader := &fakeLoader{record: sampleRecord()}

	var log bytes.Buffer
	base := BatchOptions{Conversion: types.ConversionConfig{OutputDir: outputDir}}
	total, err := RunPlan(loader, plan, base, &log)
	if err != nil {
		t.Fatal(err)
	}
	if total.Converted != 3 {
		t.Errorf("converted = %d, want 3", total.Converted)
	}
	for _, p := range []string{
		filepath.Join(outputDir, "ExpD", "a.npz"),
		filepath.Join(outputDir, "ExpE", "b.npz"),
		filepath.Join(outputDir, "ExpE", "c.npz"),
	} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("expected output %s", p)
		}
	}
}
