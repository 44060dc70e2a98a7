// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/pdiddy/matconv/pkg/types"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Query the conversion catalog",
	Long: `Catalog queries the SQLite database that convert and batch populate
when run with --catalog. Use list to see every recorded dataset, or
show to look up one dataset's record.`,
}

// --- list subcommand ---

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded conversions, newest first",
	RunE:  runCatalogList,
}

func runCatalogList(cmd *cobra.Command, args []string) error {
	cfg := catalogConfig(cmd)
	if cfg.Path == "" {
		return fmt.Errorf("catalog database path required: pass --catalog")
	}
	store, err := openCatalog(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	experiment, _ := cmd.Flags().GetString("experiment")
	entries, err := store.List(context.Background(), experiment)
	if err != nil {
		return err
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	if len(entries) == 0 {
		fmt.Println("No conversions recorded.")
		return nil
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"Dataset", "Experiment", "Arrays", "Converted at"})
	for _, e := range entries {
		tw.AppendRow(table.Row{e.Dataset, e.Experiment, e.ArrayCount, e.ConvertedAt.Format(time.RFC3339)})
	}
	tw.Render()
	fmt.Printf("%d datasets\n", len(entries))
	return nil
}

// --- show subcommand ---

var catalogShowCmd = &cobra.Command{
	Use:   "show [dataset]",
	Short: "Show one dataset's catalog record",
	Args:  cobra.ExactArgs(1),
	RunE:  runCatalogShow,
}

func runCatalogShow(cmd *cobra.Command, args []string) error {
	cfg := catalogConfig(cmd)
	if cfg.Path == "" {
		return fmt.Errorf("catalog database path required: pass --catalog")
	}
	store, err := openCatalog(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	experiment, _ := cmd.Flags().GetString("experiment")
	entry, err := store.Get(context.Background(), args[0], experiment)
	if err != nil {
		return err
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entry)
	}
	printEntry(entry)
	return nil
}

func printEntry(e types.CatalogEntry) {
	fmt.Printf("Dataset:      %s\n", e.Dataset)
	fmt.Printf("Experiment:   %s\n", e.Experiment)
	fmt.Printf("Source file:  %s\n", e.SourceFile)
	fmt.Printf("Archive:      %s\n", e.NpzFile)
	fmt.Printf("Arrays:       %d\n", e.ArrayCount)
	fmt.Printf("Converted at: %s\n", e.ConvertedAt.Format(time.RFC3339))
}

func init() {
	catalogCmd.PersistentFlags().String("catalog", "numpy_datasets/catalog.db", "SQLite catalog database to query")
	catalogCmd.PersistentFlags().String("experiment", "", "filter by experiment label")
	catalogCmd.PersistentFlags().Bool("json", false, "output records as JSON")

	catalogCmd.AddCommand(catalogListCmd)
	catalogCmd.AddCommand(catalogShowCmd)

	rootCmd.AddCommand(catalogCmd)
}
