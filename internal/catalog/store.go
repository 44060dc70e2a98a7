// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package catalog persists a record of converted datasets in a local
// SQLite database, so batch runs across many experiments stay
// queryable without re-reading every manifest.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/matconv/pkg/types"
)

// Store manages the conversion catalog database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the catalog database at path, creating parent
// directories and the schema as needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating catalog directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS datasets (
			dataset TEXT NOT NULL,
			experiment TEXT NOT NULL,
			source_file TEXT NOT NULL,
			npz_file TEXT NOT NULL,
			array_count INTEGER NOT NULL,
			converted_at TEXT NOT NULL,
			PRIMARY KEY (dataset, experiment)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_datasets_experiment ON datasets(experiment)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Record upserts one conversion entry, keyed by dataset and
// experiment, so re-converting with force refreshes the row.
func (s *Store) Record(ctx context.Context, e types.CatalogEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO datasets (dataset, experiment, source_file, npz_file, array_count, converted_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(dataset, experiment) DO UPDATE SET
			source_file=excluded.source_file, npz_file=excluded.npz_file,
			array_count=excluded.array_count, converted_at=excluded.converted_at`,
		e.Dataset, e.Experiment, e.SourceFile, e.NpzFile, e.ArrayCount,
		e.ConvertedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("recording %s/%s: %w", e.Experiment, e.Dataset, err)
	}
	return nil
}

// List returns recorded entries, newest first, optionally filtered by
// experiment label.
func (s *Store) List(ctx context.Context, experiment string) ([]types.CatalogEntry, error) {
	query := `SELECT dataset, experiment, source_file, npz_file, array_count, converted_at
	          FROM datasets`
	args := []any{}
	if experiment != "" {
		query += ` WHERE experiment = ?`
		args = append(args, experiment)
	}
	query += ` ORDER BY converted_at DESC, experiment, dataset`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying catalog: %w", err)
	}
	defer rows.Close()

	var entries []types.CatalogEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Get returns the entry for a dataset name, optionally narrowed by
// experiment. A dataset recorded under several experiments needs the
// experiment to disambiguate.
func (s *Store) Get(ctx context.Context, dataset, experiment string) (types.CatalogEntry, error) {
	query := `SELECT dataset, experiment, source_file, npz_file, array_count, converted_at
	          FROM datasets WHERE dataset = ?`
	args := []any{dataset}
	if experiment != "" {
		query += ` AND experiment = ?`
		args = append(args, experiment)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return types.CatalogEntry{}, fmt.Errorf("querying catalog: %w", err)
	}
	defer rows.Close()

	var entries []types.CatalogEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return types.CatalogEntry{}, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return types.CatalogEntry{}, err
	}
	switch len(entries) {
	case 0:
		return types.CatalogEntry{}, fmt.Errorf("dataset %q not found in catalog", dataset)
	case 1:
		return entries[0], nil
	default:
		return types.CatalogEntry{}, fmt.Errorf("dataset %q recorded in %d experiments, pass --experiment", dataset, len(entries))
	}
}

func scanEntry(rows *sql.Rows) (types.CatalogEntry, error) {
	var (
		e  types.CatalogEntry
		ts string
	)
	if err := rows.Scan(&e.Dataset, &e.Experiment, &e.SourceFile, &e.NpzFile, &e.ArrayCount, &ts); err != nil {
		return types.CatalogEntry{}, fmt.Errorf("scanning catalog row: %w", err)
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return types.CatalogEntry{}, fmt.Errorf("parsing converted_at %q: %w", ts, err)
	}
	e.ConvertedAt = t
	return e, nil
}
