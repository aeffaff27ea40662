package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/EldooRado/MsiAnalyzer/msi"
)

var extractAdjust bool

func init() {
	cmd := newExtractCmd()
	cmd.Flags().BoolVar(&extractAdjust, "adjust", false, "Strip the declared character count from string cells")
	rootCmd.AddCommand(cmd)
}

func newExtractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract <msi> <dir>",
		Short: "Extract tables, streams, scripts and a report",
		Long: `The extract command writes the whole database to a directory:

  tables/<Table>.idt   every table in IDT layout
  files/<stream>       every non-table stream (Binary.*, Icon.*, ...)
  scripts/<action>.*   JScript, VBScript and PowerShell bodies of custom actions
  actions.txt          decoded custom actions
  report.txt           summary, tool-specific tables and integrity issues

Tables that fail to decode are skipped and listed in the report.

Example:
  msictl extract setup.msi out/`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(args)
		},
	}
	return cmd
}

type extractSummary struct {
	Tables  int `json:"tables"`
	Failed  int `json:"failed"`
	Files   int `json:"files"`
	Scripts int `json:"scripts"`
	Actions int `json:"actions"`
}

func runExtract(args []string) error {
	msiPath, dir := args[0], args[1]
	db, err := openDB(msiPath)
	if err != nil {
		return err
	}
	defer db.Close()

	for _, sub := range []string{"tables", "files", "scripts"} {
		if err := appFs.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	write := func(rel string, data []byte) error {
		path := filepath.Join(dir, rel)
		printVerbose("  %s (%d bytes)\n", path, len(data))
		if err := afero.WriteFile(appFs, path, data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		return nil
	}

	var sum extractSummary
	tables, failed := db.LoadAll()
	o := renderOptions{adjust: extractAdjust}
	for _, name := range db.TableNames() {
		t, ok := tables[name]
		if !ok {
			continue
		}
		if err := write(filepath.Join("tables", safeName(name)+".idt"), []byte(renderTable(t, o))); err != nil {
			return err
		}
		sum.Tables++
	}
	sum.Failed = len(failed)

	for _, e := range db.Streams() {
		data, err := db.ReadStream(e.Name)
		if err != nil {
			log.Warn("stream skipped", "stream", e.Name, "error", err)
			continue
		}
		if err := write(filepath.Join("files", safeName(e.Name)), data); err != nil {
			return err
		}
		sum.Files++
	}

	actions, err := db.CustomActions()
	if err != nil {
		log.Warn("custom actions skipped", "error", err)
	}
	props, err := db.Properties()
	if err != nil {
		log.Warn("properties skipped", "error", err)
	}
	infos := make([]actionInfo, 0, len(actions))
	for _, ca := range actions {
		infos = append(infos, describeAction(ca, props, true))
		if ca.ScriptKind == msi.ScriptNone || ca.Script == "" {
			continue
		}
		if err := write(filepath.Join("scripts", safeName(ca.Name)+ca.ScriptKind.Ext()), []byte(ca.Script)); err != nil {
			return err
		}
		sum.Scripts++
	}
	sum.Actions = len(infos)
	if sum.Actions > 0 {
		if err := write("actions.txt", []byte(formatActions(infos))); err != nil {
			return err
		}
	}

	if err := write("report.txt", []byte(extractReport(msiPath, db, sum, failed))); err != nil {
		return err
	}

	if jsonOut {
		return printJSON(sum)
	}
	printInfo("Extracted %d tables, %d files, %d scripts, %d actions to %s\n",
		sum.Tables, sum.Files, sum.Scripts, sum.Actions, dir)
	if sum.Failed > 0 {
		printError("%d tables could not be decoded, see report.txt\n", sum.Failed)
	}
	return nil
}

func extractReport(msiPath string, db *msi.Database, sum extractSummary, failed map[string]error) string {
	var b strings.Builder
	b.WriteString("----------REPORT----------\n")
	fmt.Fprintf(&b, "Msi path: %s\n", msiPath)
	fmt.Fprintf(&b, "Tables number:  \t%d\tSee \"tables\" directory\n", sum.Tables)
	if sum.Files > 0 {
		fmt.Fprintf(&b, "Files number:   \t%d\tSee \"files\" directory\n", sum.Files)
	}
	if sum.Scripts > 0 {
		fmt.Fprintf(&b, "Scripts number: \t%d\tSee \"scripts\" directory\n", sum.Scripts)
	}
	if sum.Actions > 0 {
		fmt.Fprintf(&b, "Actions number: \t%d\tSee \"actions.txt\" file\n", sum.Actions)
	}

	if vts := db.VendorTables(); len(vts) > 0 {
		b.WriteString("\nTool specific table is present. It can be dangerous:\n")
		for _, vt := range vts {
			fmt.Fprintf(&b, "%s feature that %s. See \"tables/%s.idt\"\n", vt.Vendor, vt.Description, vt.Table)
		}
	}

	if len(failed) > 0 {
		b.WriteString("\nTables that could not be decoded:\n")
		for _, name := range db.TableNames() {
			if err, ok := failed[name]; ok {
				fmt.Fprintf(&b, "  %s: %v\n", name, err)
			}
		}
	}

	b.WriteString("\nIntegrity:\n")
	b.WriteString(db.Diagnostics().FormatTextCompact())
	return b.String()
}
