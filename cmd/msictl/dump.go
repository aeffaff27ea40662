package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	dumpRaw    bool
	dumpAdjust bool
)

func init() {
	cmd := newDumpCmd()
	cmd.Flags().BoolVar(&dumpRaw, "raw", false, "Print stored cell values instead of resolved strings and numbers")
	cmd.Flags().BoolVar(&dumpAdjust, "adjust", false, "Strip the declared character count from string cells")
	rootCmd.AddCommand(cmd)
}

func newDumpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump <msi> <table>",
		Short: "Print the rows of one table",
		Long: `The dump command prints a table in IDT layout: column names, column types,
the table name with its key columns, then one tab-separated line per row.

Example:
  msictl dump setup.msi Property
  msictl dump setup.msi CustomAction --json
  msictl dump setup.msi File --raw`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(args)
		},
	}
	return cmd
}

func runDump(args []string) error {
	db, err := openDB(args[0])
	if err != nil {
		return err
	}
	defer db.Close()

	t, err := db.Table(args[1])
	if err != nil {
		return fmt.Errorf("failed to load table %s: %w", args[1], err)
	}
	o := renderOptions{raw: dumpRaw, adjust: dumpAdjust}

	if jsonOut {
		return printJSON(tableRecords(t, o))
	}
	printInfo("%s", renderTable(t, o))
	printVerbose("\n%d rows\n", t.Len())
	return nil
}
