package msi

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"

	farm "github.com/dgryski/go-farm"

	"github.com/EldooRado/MsiAnalyzer/internal/buf"
	"github.com/EldooRado/MsiAnalyzer/pkg/types"
)

// Table is a decoded MSI table. Rows are row-major; each cell is the stored
// field zero-extended to 32 bits.
type Table struct {
	Name    string
	Columns []Column
	Rows    [][]uint32
	RowSize int

	pool     *StringPool
	Warnings []types.Diagnostic
}

// LoadTable reads and transposes the rows of table name.
func LoadTable(c StreamSource, schema *Schema, pool *StringPool, name string) (*Table, error) {
	if _, ok := schema.Table(name); !ok {
		return nil, types.Wrap(types.ErrTableNotFound, name, nil)
	}
	cols, err := schema.Columns(name)
	if err != nil {
		return nil, err
	}
	data, err := c.ReadStream(TableStream(name))
	if errors.Is(err, types.ErrStreamNotFound) {
		data, err = nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("msi: table %q: %w", name, err)
	}
	return DecodeTable(name, cols, data, pool)
}

// DecodeTable reshapes a column-major table stream into rows. A stream whose
// size is not a multiple of the row size is truncated to whole rows and the
// remainder is reported in Warnings.
func DecodeTable(name string, cols []Column, data []byte, pool *StringPool) (*Table, error) {
	t := &Table{Name: name, Columns: cols, pool: pool}
	for _, c := range cols {
		t.RowSize += c.Type.PhysicalWidth()
	}
	if t.RowSize == 0 || len(data) == 0 {
		if len(data) > 0 {
			t.Warnings = append(t.Warnings, rowRemainder(name, len(data), 0))
		}
		return t, nil
	}

	rows := len(data) / t.RowSize
	if len(data)%t.RowSize != 0 {
		t.Warnings = append(t.Warnings, rowRemainder(name, len(data), t.RowSize))
	}
	if rows == 0 {
		return t, nil
	}

	cells := make([]uint32, rows*len(cols))
	t.Rows = make([][]uint32, rows)
	for r := range t.Rows {
		t.Rows[r] = cells[r*len(cols) : (r+1)*len(cols) : (r+1)*len(cols)]
	}

	off := 0
	for ci, c := range cols {
		w := c.Type.PhysicalWidth()
		end, err := buf.CheckListBounds(len(data), off, rows, w)
		if err != nil {
			return nil, types.Wrap(types.ErrTruncatedRead,
				fmt.Sprintf("table %q column %q", name, c.Name), err)
		}
		for r := 0; r < rows; r++ {
			at := off + r*w
			t.Rows[r][ci] = buf.UintLE(data[at : at+w])
		}
		off = end
	}
	return t, nil
}

func rowRemainder(name string, size, rowSize int) types.Diagnostic {
	return types.Diagnostic{
		Severity:  types.SevWarning,
		Code:      types.DiagRowRemainder,
		Structure: "TABLE",
		Issue:     "table stream size is not a multiple of the row size",
		Expected:  rowSize,
		Actual:    size,
		Context:   &types.DiagContext{Stream: TableStream(name), Table: name},
	}
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Rows) }

// ColumnIndex returns the position of the named column or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// CellKind distinguishes rendered cell values.
type CellKind uint8

const (
	CellNull CellKind = iota
	CellString
	CellInt
	CellRaw
)

// Cell is a rendered table value.
type Cell struct {
	Kind CellKind
	Raw  uint32
	Int  int32
	Str  string
}

func (c Cell) String() string {
	switch c.Kind {
	case CellString:
		return c.Str
	case CellInt:
		return strconv.FormatInt(int64(c.Int), 10)
	case CellRaw:
		return "0x" + strconv.FormatUint(uint64(c.Raw), 16)
	default:
		return ""
	}
}

// MSI stores integers biased so that zero means NULL.
const (
	shortBias = 0x8000
	longBias  = 0x80000000
)

// Value renders row r, column c. String cells are resolved through the pool
// and decoded from the database codepage. Out-of-range positions render as
// CellNull and unresolvable string references as CellRaw.
func (t *Table) Value(r, c int) Cell {
	if r < 0 || r >= len(t.Rows) || c < 0 || c >= len(t.Columns) {
		return Cell{Kind: CellNull}
	}
	raw := t.Rows[r][c]
	typ := t.Columns[c].Type
	switch {
	case raw == 0:
		return Cell{Kind: CellNull}
	case typ.Kind.IsString():
		if t.pool == nil {
			return Cell{Kind: CellRaw, Raw: raw}
		}
		if _, ok := t.pool.Lookup(int(raw)); !ok {
			return Cell{Kind: CellRaw, Raw: raw}
		}
		return Cell{Kind: CellString, Raw: raw, Str: t.pool.Text(int(raw))}
	case typ.Kind == KindNumber && typ.Width == 2:
		return Cell{Kind: CellInt, Raw: raw, Int: int32(raw) - shortBias}
	case typ.Kind == KindNumber:
		return Cell{Kind: CellInt, Raw: raw, Int: int32(raw - longBias)}
	default:
		return Cell{Kind: CellRaw, Raw: raw}
	}
}

// Text returns the rendered text of row r, column c.
func (t *Table) Text(r, c int) string {
	return t.Value(r, c).String()
}

// Lookup returns the text of the named column in row r.
func (t *Table) Lookup(r int, column string) (string, bool) {
	ci := t.ColumnIndex(column)
	if ci < 0 || r < 0 || r >= len(t.Rows) {
		return "", false
	}
	return t.Text(r, ci), true
}

// Fingerprint hashes the column layout and every raw cell. Two decodes of
// the same stream produce the same value.
func (t *Table) Fingerprint() uint64 {
	b := make([]byte, 0, 16+len(t.Columns)*4+len(t.Rows)*len(t.Columns)*4)
	b = append(b, t.Name...)
	for _, c := range t.Columns {
		b = binary.LittleEndian.AppendUint16(b, c.Ordinal)
		b = append(b, c.Name...)
		b = append(b, byte(c.Type.Kind), c.Type.Adjust, c.Type.Width)
	}
	for _, row := range t.Rows {
		for _, v := range row {
			b = binary.LittleEndian.AppendUint32(b, v)
		}
	}
	return farm.Fingerprint64(b)
}
