package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/pdiddy/matconv/internal/flatten"
	"github.com/pdiddy/matconv/internal/matfile"
	"github.com/pdiddy/matconv/internal/npz"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [file]",
	Short: "Show the arrays inside a .mat file or .npz archive",
	Long: `Inspect lists the flattened arrays of a .mat recording, or the members
of a converted .npz archive, as a table of key, shape, and dtype.

With --raw on a .mat file, the decoded value tree is dumped verbatim,
which helps when a recording fails to flatten.`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

// inspectRow is the JSON form of one listed array.
type inspectRow struct {
	Key   string `json:"key"`
	Shape []int  `json:"shape"`
	Dtype string `json:"dtype"`
}

func runInspect(cmd *cobra.Command, args []string) error {
	path := args[0]
	jsonOutput, _ := cmd.Flags().GetBool("json")

	switch filepath.Ext(path) {
	case ".npz":
		entries, err := npz.Read(path)
		if err != nil {
			return err
		}
		rows := make([]inspectRow, 0, len(entries))
		for _, e := range entries {
			rows = append(rows, inspectRow{Key: e.Name, Shape: e.Shape, Dtype: e.Dtype()})
		}
		return renderRows(rows, jsonOutput)

	case ".mat":
		record, err := matfile.Read(path)
		if err != nil {
			return err
		}
		if raw, _ := cmd.Flags().GetBool("raw"); raw {
			spew.Fdump(os.Stdout, record)
			return nil
		}
		_, shapes, err := flatten.Record(record)
		if err != nil {
			return err
		}
		rows := make([]inspectRow, 0, len(shapes))
		for key, info := range shapes {
			rows = append(rows, inspectRow{Key: key, Shape: info.Shape, Dtype: info.Dtype})
		}
		return renderRows(rows, jsonOutput)

	default:
		return fmt.Errorf("unsupported file type %q: expected .mat or .npz", filepath.Ext(path))
	}
}

func renderRows(rows []inspectRow, jsonOutput bool) error {
	sort.Slice(rows, func(i, j int) bool { return rows[i].Key < rows[j].Key })

	if jsonOutput {
		for i := range rows {
			if rows[i].Shape == nil {
				rows[i].Shape = []int{}
			}
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"Key", "Shape", "Dtype"})
	for _, r := range rows {
		tw.AppendRow(table.Row{r.Key, shapeString(r.Shape), r.Dtype})
	}
	tw.Render()
	fmt.Printf("%d arrays\n", len(rows))
	return nil
}

// shapeString renders a shape the way numpy prints it: (), (3,), (2, 3).
func shapeString(shape []int) string {
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

func init() {
	inspectCmd.Flags().Bool("raw", false, "dump the decoded .mat value tree instead of the flattened view")
	inspectCmd.Flags().Bool("json", false, "output the array list as JSON")

	rootCmd.AddCommand(inspectCmd)
}
