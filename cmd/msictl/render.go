package main

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/EldooRado/MsiAnalyzer/msi"
)

// renderOptions selects how table cells are printed.
type renderOptions struct {
	raw    bool // print stored values instead of resolved ones
	adjust bool // strip the declared character count from string cells
}

// idtEscaper applies the control-character substitutions of the IDT
// archive format so one row stays on one line.
var idtEscaper = strings.NewReplacer("\t", "\x10", "\r", "\x11", "\n", "\x19")

func renderCell(t *msi.Table, r, c int, o renderOptions) string {
	if o.raw {
		return strconv.FormatUint(uint64(t.Rows[r][c]), 10)
	}
	v := t.Text(r, c)
	if ct := t.Columns[c].Type; o.adjust && ct.Kind.IsString() {
		v = msi.ApplyAdjust(v, ct.Adjust)
	}
	return idtEscaper.Replace(v)
}

// renderTable formats t as an IDT file: column names, column types, the
// table name followed by its key columns, then one line per row.
func renderTable(t *msi.Table, o renderOptions) string {
	var b strings.Builder
	names := make([]string, len(t.Columns))
	typs := make([]string, len(t.Columns))
	keys := []string{t.Name}
	for i, c := range t.Columns {
		names[i] = c.Name
		typs[i] = c.Type.String()
		if c.Type.Key {
			keys = append(keys, c.Name)
		}
	}
	b.WriteString(strings.Join(names, "\t") + "\r\n")
	b.WriteString(strings.Join(typs, "\t") + "\r\n")
	b.WriteString(strings.Join(keys, "\t") + "\r\n")

	cells := make([]string, len(t.Columns))
	for r := 0; r < t.Len(); r++ {
		for c := range t.Columns {
			cells[c] = renderCell(t, r, c, o)
		}
		b.WriteString(strings.Join(cells, "\t") + "\r\n")
	}
	return b.String()
}

// tableRecords returns the rows of t as column-name keyed maps for JSON output.
func tableRecords(t *msi.Table, o renderOptions) []map[string]any {
	out := make([]map[string]any, 0, t.Len())
	for r := 0; r < t.Len(); r++ {
		rec := make(map[string]any, len(t.Columns))
		for c, col := range t.Columns {
			cell := t.Value(r, c)
			switch {
			case o.raw:
				rec[col.Name] = t.Rows[r][c]
			case cell.Kind == msi.CellNull:
				rec[col.Name] = nil
			case cell.Kind == msi.CellInt:
				rec[col.Name] = cell.Int
			default:
				rec[col.Name] = renderCell(t, r, c, o)
			}
		}
		out = append(out, rec)
	}
	return out
}

// safeName turns a stream or action name into a portable file name.
func safeName(name string) string {
	name = strings.TrimLeft(name, "\x05")
	var b strings.Builder
	for _, r := range name {
		switch {
		case r == '/' || r == '\\' || r == ':' || r == '*' || r == '?' ||
			r == '"' || r == '<' || r == '>' || r == '|' || !unicode.IsPrint(r):
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}
	s := b.String()
	if s == "" || s == "." || s == ".." {
		s = "_" + s
	}
	return s
}

// printableName shows control characters such as the \x05 prefix of
// property-set streams.
func printableName(name string) string {
	s := strconv.Quote(name)
	return s[1 : len(s)-1]
}
