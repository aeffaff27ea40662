package main

import (
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newTablesCmd())
}

func newTablesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tables <msi>",
		Short: "List the tables of an MSI database",
		Long: `The tables command lists every table in the catalog with its column and
row counts. A table that cannot be decoded is reported and the listing
continues.

Example:
  msictl tables setup.msi
  msictl tables setup.msi --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTables(args)
		},
	}
	return cmd
}

type tableSummary struct {
	Name    string `json:"name"`
	Columns int    `json:"columns"`
	Rows    int    `json:"rows"`
	Vendor  string `json:"vendor,omitempty"`
	Error   string `json:"error,omitempty"`
}

func runTables(args []string) error {
	db, err := openDB(args[0])
	if err != nil {
		return err
	}
	defer db.Close()

	vendors := map[string]string{}
	for _, vt := range db.VendorTables() {
		vendors[vt.Table] = vt.Vendor
	}

	tables, failed := db.LoadAll()
	out := make([]tableSummary, 0, len(db.TableNames()))
	for _, name := range db.TableNames() {
		s := tableSummary{Name: name, Vendor: vendors[name]}
		if ti, ok := db.Schema().Table(name); ok {
			s.Columns = ti.ColumnCount
		}
		if t, ok := tables[name]; ok {
			s.Rows = t.Len()
		} else if err := failed[name]; err != nil {
			s.Error = err.Error()
		}
		out = append(out, s)
	}

	if jsonOut {
		return printJSON(out)
	}

	printInfo("%-32s  %7s  %7s\n", "TABLE", "COLUMNS", "ROWS")
	for _, s := range out {
		if s.Error != "" {
			printInfo("%-32s  %7d  %7s  error: %s\n", s.Name, s.Columns, "-", s.Error)
			continue
		}
		if s.Vendor != "" {
			printInfo("%-32s  %7d  %7d  (%s)\n", s.Name, s.Columns, s.Rows, s.Vendor)
			continue
		}
		printInfo("%-32s  %7d  %7d\n", s.Name, s.Columns, s.Rows)
	}
	if len(failed) > 0 {
		printError("%d of %d tables could not be decoded\n", len(failed), len(out))
	}
	return nil
}
