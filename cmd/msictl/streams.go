package main

import (
	"strings"

	units "github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/EldooRado/MsiAnalyzer/cfb"
)

var streamsAll bool

func init() {
	cmd := newStreamsCmd()
	cmd.Flags().BoolVar(&streamsAll, "all", false, "Include table and catalog streams")
	rootCmd.AddCommand(cmd)
}

func newStreamsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "streams <msi>",
		Short: "List the streams of an MSI container",
		Long: `The streams command lists the decoded directory of the compound file.
By default only non-table streams (Binary.*, Icon.*, summary information) are
shown; --all includes the relational store.

Example:
  msictl streams setup.msi
  msictl streams setup.msi --all --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStreams(args)
		},
	}
	return cmd
}

type streamInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Size uint64 `json:"size"`
	Mini bool   `json:"mini"`
}

func runStreams(args []string) error {
	db, err := openDB(args[0])
	if err != nil {
		return err
	}
	defer db.Close()

	var entries []cfb.Entry
	if streamsAll {
		entries = db.Container().Entries()
	} else {
		entries = db.Streams()
	}

	out := make([]streamInfo, 0, len(entries))
	for _, e := range entries {
		if e.Type == cfb.EntryRoot {
			continue
		}
		out = append(out, streamInfo{
			Name: e.Name,
			Type: e.Type.String(),
			Size: e.Size,
			Mini: e.Type == cfb.EntryStream && e.Size <= 4096,
		})
	}

	if jsonOut {
		return printJSON(out)
	}

	width := 4
	for _, s := range out {
		if n := len(printableName(s.Name)); n > width {
			width = n
		}
	}
	printInfo("%-*s  %-8s  %10s  %s\n", width, "NAME", "TYPE", "SIZE", "LOCATION")
	printInfo("%s\n", strings.Repeat("-", width+34))
	for _, s := range out {
		loc := "regular"
		if s.Mini {
			loc = "mini"
		}
		if s.Type != "stream" {
			loc = "-"
		}
		printInfo("%-*s  %-8s  %10s  %s\n", width, printableName(s.Name), s.Type, units.BytesSize(float64(s.Size)), loc)
	}
	printVerbose("\n%d entries\n", len(out))
	return nil
}
