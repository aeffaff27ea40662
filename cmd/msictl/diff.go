package main

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/hexops/gotextdiff/span"
	"github.com/spf13/cobra"

	"github.com/EldooRado/MsiAnalyzer/msi"
	"github.com/EldooRado/MsiAnalyzer/pkg/types"
)

var diffRaw bool

func init() {
	cmd := newDiffCmd()
	cmd.Flags().BoolVar(&diffRaw, "raw", false, "Compare stored cell values instead of resolved text")
	rootCmd.AddCommand(cmd)
}

func newDiffCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff <msi1> <msi2> [table]",
		Short: "Compare the tables of two MSI databases",
		Long: `The diff command renders the tables of both databases in IDT layout and
prints a unified diff. With a table name only that table is compared.

Example:
  msictl diff old.msi new.msi
  msictl diff old.msi new.msi CustomAction`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(args)
		},
	}
	return cmd
}

type diffResult struct {
	Identical bool   `json:"identical"`
	Diff      string `json:"diff,omitempty"`
}

func runDiff(args []string) error {
	a, err := openDB(args[0])
	if err != nil {
		return err
	}
	defer a.Close()
	b, err := openDB(args[1])
	if err != nil {
		return err
	}
	defer b.Close()

	var names []string
	if len(args) == 3 {
		names = []string{args[2]}
		if !a.HasTable(args[2]) && !b.HasTable(args[2]) {
			return fmt.Errorf("table %s is in neither database", args[2])
		}
	} else {
		names = unionTables(a, b)
	}

	o := renderOptions{raw: diffRaw}
	textA, err := renderTables(a, names, o)
	if err != nil {
		return err
	}
	textB, err := renderTables(b, names, o)
	if err != nil {
		return err
	}

	edits := myers.ComputeEdits(span.URIFromPath(args[0]), textA, textB)
	res := diffResult{Identical: len(edits) == 0}
	if !res.Identical {
		res.Diff = fmt.Sprint(gotextdiff.ToUnified(args[0], args[1], textA, edits))
	}

	if jsonOut {
		return printJSON(res)
	}
	if res.Identical {
		printInfo("No differences.\n")
		return nil
	}
	printInfo("%s", res.Diff)
	return nil
}

func unionTables(a, b *msi.Database) []string {
	seen := map[string]bool{}
	var out []string
	for _, db := range []*msi.Database{a, b} {
		for _, n := range db.TableNames() {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	sort.Strings(out)
	return out
}

// renderTables concatenates the IDT rendering of each named table with
// line endings normalized for diffing. Absent tables render as empty.
func renderTables(db *msi.Database, names []string, o renderOptions) (string, error) {
	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "== %s ==\n", name)
		t, err := db.Table(name)
		if errors.Is(err, types.ErrTableNotFound) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to load table %s: %w", name, err)
		}
		b.WriteString(strings.ReplaceAll(renderTable(t, o), "\r\n", "\n"))
	}
	return b.String(), nil
}
