package msi

import (
	"fmt"

	"github.com/EldooRado/MsiAnalyzer/internal/buf"
	"github.com/EldooRado/MsiAnalyzer/pkg/types"
)

const (
	columnQuarters  = 4
	ordinalMask     = 0x7FFF
	quarterTable    = 0
	quarterOrdinal  = 1
	quarterName     = 2
	quarterTypeWord = 3
)

// TableInfo locates a table's column descriptors inside !_Columns.
type TableInfo struct {
	Name         string
	NameIndex    uint16
	ColumnCount  int
	ColumnOffset int
}

// Column is one decoded column descriptor.
type Column struct {
	// Ordinal is the 1-based column number with the always-set top bit masked.
	Ordinal uint16
	Name    string
	Type    ColumnType
}

// Schema is the decoded !_Tables and !_Columns catalog.
type Schema struct {
	TableNames   []string
	Tables       map[string]TableInfo
	TotalColumns int

	columns []uint16
	pool    *StringPool

	// Warnings holds label and size mismatches found while scanning.
	Warnings []types.Diagnostic
}

// BuildSchema reads !_Tables and !_Columns from c.
func BuildSchema(c StreamSource, pool *StringPool) (*Schema, error) {
	tables, err := c.ReadStream(TablesStream)
	if err != nil {
		return nil, fmt.Errorf("msi: tables: %w", err)
	}
	columns, err := c.ReadStream(ColumnsStream)
	if err != nil {
		return nil, fmt.Errorf("msi: columns: %w", err)
	}
	return ParseSchema(tables, columns, pool)
}

// ParseSchema decodes the two catalog streams.
//
// The first quarter of !_Columns repeats each table's name index once per
// column, in !_Tables order. Each run becomes that table's (count, offset).
// Mismatched labels and a catalog whose size disagrees with the column
// count are reported in Warnings rather than failing.
func ParseSchema(tables, columns []byte, pool *StringPool) (*Schema, error) {
	s := &Schema{
		Tables:  make(map[string]TableInfo),
		columns: buf.U16s(columns),
		pool:    pool,
	}

	idx := buf.U16s(tables)
	infos := make([]TableInfo, len(idx))
	for i, ni := range idx {
		name, ok := pool.Lookup(int(ni))
		if !ok {
			return nil, types.Wrap(types.ErrCorruptTables,
				fmt.Sprintf("table %d name index %d, pool holds %d strings", i, ni, pool.Len()), nil)
		}
		infos[i] = TableInfo{Name: name, NameIndex: ni}
	}

	// A well-formed catalog holds exactly four quarters, so the labels are
	// the first one. Otherwise scan until the runs stop matching.
	labels := s.columns
	if len(s.columns)%columnQuarters == 0 {
		labels = s.columns[:len(s.columns)/columnQuarters]
	}
	s.TotalColumns = s.scanRuns(infos, labels)

	if s.TotalColumns*columnQuarters*2 != len(columns) {
		s.warn(types.Diagnostic{
			Severity:  types.SevWarning,
			Code:      types.DiagColumnsSize,
			Structure: "COLUMNS",
			Issue:     "column catalog size does not match the column count",
			Expected:  s.TotalColumns * columnQuarters * 2,
			Actual:    len(columns),
			Context:   &types.DiagContext{Stream: ColumnsStream},
		})
	}

	s.TableNames = make([]string, 0, len(infos))
	for _, ti := range infos {
		if _, dup := s.Tables[ti.Name]; dup {
			continue
		}
		s.Tables[ti.Name] = ti
		s.TableNames = append(s.TableNames, ti.Name)
	}
	return s, nil
}

// scanRuns assigns each run of equal labels to a table and returns the
// number of columns consumed. Tables are matched in catalog order. A run
// labelled with a later table's index skips the tables in between; they keep
// zero columns and each gets a warning. A label matching no remaining table
// is assigned to the next table, also with a warning.
func (s *Schema) scanRuns(infos []TableInfo, labels []uint16) int {
	cur, total := 0, 0
	for i := 0; i < len(labels) && cur < len(infos); {
		w := labels[i]
		n := 1
		for i+n < len(labels) && labels[i+n] == w {
			n++
		}

		at := cur
		for j := cur; j < len(infos); j++ {
			if infos[j].NameIndex == w {
				at = j
				break
			}
		}
		if infos[at].NameIndex == w {
			for ; cur < at; cur++ {
				infos[cur].ColumnOffset = total
				s.tableSkipped(infos[cur], infos[at], total)
			}
		} else {
			s.labelMismatch(infos[at], w, total)
		}

		infos[at].ColumnCount = n
		infos[at].ColumnOffset = total
		total += n
		i += n
		cur = at + 1
	}
	for ; cur < len(infos); cur++ {
		infos[cur].ColumnOffset = total
	}
	return total
}

func (s *Schema) tableSkipped(skipped, owner TableInfo, at int) {
	s.warn(types.Diagnostic{
		Severity:  types.SevWarning,
		Code:      types.DiagColumnLabel,
		Structure: "COLUMNS",
		Offset:    uint64(2 * at),
		Issue:     fmt.Sprintf("table %q has no column run, next run belongs to %q", skipped.Name, owner.Name),
		Expected:  skipped.NameIndex,
		Actual:    owner.NameIndex,
		Context:   &types.DiagContext{Stream: ColumnsStream, Table: skipped.Name},
	})
}

func (s *Schema) labelMismatch(ti TableInfo, label uint16, at int) {
	s.warn(types.Diagnostic{
		Severity:  types.SevWarning,
		Code:      types.DiagColumnLabel,
		Structure: "COLUMNS",
		Offset:    uint64(2 * at),
		Issue:     fmt.Sprintf("column run labelled %d, expected table %q", label, ti.Name),
		Expected:  ti.NameIndex,
		Actual:    label,
		Context:   &types.DiagContext{Stream: ColumnsStream, Table: ti.Name},
	})
}

func (s *Schema) warn(d types.Diagnostic) {
	s.Warnings = append(s.Warnings, d)
}

// Table returns the catalog entry for name.
func (s *Schema) Table(name string) (TableInfo, bool) {
	ti, ok := s.Tables[name]
	return ti, ok
}

// Columns decodes the column descriptors of table name.
func (s *Schema) Columns(name string) ([]Column, error) {
	ti, ok := s.Tables[name]
	if !ok {
		return nil, types.Wrap(types.ErrTableNotFound, name, nil)
	}
	cols := make([]Column, 0, ti.ColumnCount)
	for i := 0; i < ti.ColumnCount; i++ {
		ord, err := s.quarter(quarterOrdinal, ti.ColumnOffset+i)
		if err != nil {
			return nil, fmt.Errorf("msi: table %q column %d: %w", name, i, err)
		}
		ni, err := s.quarter(quarterName, ti.ColumnOffset+i)
		if err != nil {
			return nil, fmt.Errorf("msi: table %q column %d: %w", name, i, err)
		}
		tw, err := s.quarter(quarterTypeWord, ti.ColumnOffset+i)
		if err != nil {
			return nil, fmt.Errorf("msi: table %q column %d: %w", name, i, err)
		}
		colName, ok := s.pool.Lookup(int(ni))
		if !ok {
			return nil, types.Wrap(types.ErrCorruptTables,
				fmt.Sprintf("table %q column %d name index %d, pool holds %d strings", name, i, ni, s.pool.Len()), nil)
		}
		cols = append(cols, Column{
			Ordinal: ord & ordinalMask,
			Name:    colName,
			Type:    DecodeColumnType(tw),
		})
	}
	return cols, nil
}

func (s *Schema) quarter(q, i int) (uint16, error) {
	at, ok := buf.MulOverflowSafe(q, s.TotalColumns)
	if ok {
		at, ok = buf.AddOverflowSafe(at, i)
	}
	if !ok || at < 0 || at >= len(s.columns) {
		return 0, types.Wrap(types.ErrOutOfBounds,
			fmt.Sprintf("column word %d of %d", at, len(s.columns)), nil)
	}
	return s.columns[at], nil
}
