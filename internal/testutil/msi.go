package testutil

import (
	"encoding/binary"
	"fmt"
)

// Column type words as stored in !_Columns.
const (
	TypeInt32     uint16 = 0x0104
	TypeInt16     uint16 = 0x0502
	TypeNullable  uint16 = 0x1000
	TypeKey       uint16 = 0x2000
	typeString    uint16 = 0x0D00
	typeLocalized uint16 = 0x0F00
)

// TypeString returns the type word of a string column of width n.
func TypeString(n uint8) uint16 { return typeString | uint16(n) }

// TypeLocalized returns the type word of a localizable string column of width n.
func TypeLocalized(n uint8) uint16 { return typeLocalized | uint16(n) }

// Column is one column of a synthetic MSI table.
type Column struct {
	Name string
	Type uint16
}

// Table is a synthetic MSI table. Row cells are string, int, or nil (NULL).
type Table struct {
	Name    string
	Columns []Column
	Rows    [][]any
}

// MSI builds a minimal Windows Installer database: string pool, !_Tables,
// !_Columns, one stream per table and any extra streams.
type MSI struct {
	Version  uint16
	Codepage uint32
	Tables   []Table
	Extra    []Stream

	// LongStringRefs sets bit 31 of the pool header.
	LongStringRefs bool

	strings []string
	index   map[string]int
	refs    []int
}

// AddTable appends a table definition.
func (m *MSI) AddTable(name string, cols []Column, rows ...[]any) *MSI {
	m.Tables = append(m.Tables, Table{Name: name, Columns: cols, Rows: rows})
	return m
}

// AddStream appends a non-table stream, such as a Binary or Icon payload.
func (m *MSI) AddStream(name string, data []byte) *MSI {
	m.Extra = append(m.Extra, Stream{Name: name, Data: data})
	return m
}

func (m *MSI) intern(s string) uint16 {
	if m.index == nil {
		m.index = map[string]int{}
		m.strings = []string{""}
		m.refs = []int{0}
	}
	if s == "" {
		return 0
	}
	if i, ok := m.index[s]; ok {
		m.refs[i]++
		return uint16(i)
	}
	m.strings = append(m.strings, s)
	m.refs = append(m.refs, 1)
	m.index[s] = len(m.strings) - 1
	return uint16(len(m.strings) - 1)
}

// StringIndex returns the pool index assigned to s by the last Build.
func (m *MSI) StringIndex(s string) int {
	return m.index[s]
}

// Streams encodes the database into named streams without building a container.
func (m *MSI) Streams() ([]Stream, error) {
	m.index, m.strings, m.refs = nil, nil, nil
	m.intern("")
	le := binary.LittleEndian

	var tables, colTab, colNum, colName, colType []uint16
	var out []Stream
	for _, t := range m.Tables {
		ti := m.intern(t.Name)
		tables = append(tables, ti)
		for j, c := range t.Columns {
			colTab = append(colTab, m.intern(t.Name))
			colNum = append(colNum, 0x8000|uint16(j+1))
			colName = append(colName, m.intern(c.Name))
			colType = append(colType, c.Type)
		}
	}
	for _, t := range m.Tables {
		var data []byte
		for j, c := range t.Columns {
			for _, row := range t.Rows {
				if len(row) != len(t.Columns) {
					return nil, fmt.Errorf("testutil: table %s row has %d cells, want %d", t.Name, len(row), len(t.Columns))
				}
				cell, err := m.encodeCell(row[j], c.Type)
				if err != nil {
					return nil, fmt.Errorf("testutil: table %s column %s: %w", t.Name, c.Name, err)
				}
				data = append(data, cell...)
			}
		}
		if len(t.Rows) > 0 {
			out = append(out, Stream{Name: "!" + t.Name, Data: data})
		}
	}

	pool := make([]byte, 4)
	header := m.Codepage
	if m.LongStringRefs {
		header |= 0x80000000
	}
	le.PutUint32(pool, header)
	var strData []byte
	for i := 1; i < len(m.strings); i++ {
		s := m.strings[i]
		if len(s) > 0xFFFF {
			pool = le.AppendUint16(pool, 0)
			pool = le.AppendUint16(pool, uint16(m.refs[i]))
			pool = le.AppendUint32(pool, uint32(len(s)))
		} else {
			pool = le.AppendUint16(pool, uint16(len(s)))
			pool = le.AppendUint16(pool, uint16(m.refs[i]))
		}
		strData = append(strData, s...)
	}

	columns := append(append(append(colTab, colNum...), colName...), colType...)
	out = append([]Stream{
		{Name: "!_StringPool", Data: pool},
		{Name: "!_StringData", Data: strData},
		{Name: "!_Tables", Data: u16Bytes(tables)},
		{Name: "!_Columns", Data: u16Bytes(columns)},
	}, out...)
	out = append(out, m.Extra...)
	return out, nil
}

// Build encodes the database into a compound file image.
func (m *MSI) Build() (*Image, error) {
	streams, err := m.Streams()
	if err != nil {
		return nil, err
	}
	c := &CFB{Version: m.Version, Streams: streams}
	c.AddLiteral("\x05SummaryInformation", make([]byte, 48))
	return c.Build()
}

// MustBuild is Build for tests that cannot proceed without an image.
func (m *MSI) MustBuild(t interface {
	Helper()
	Fatalf(string, ...any)
}) *Image {
	t.Helper()
	img, err := m.Build()
	if err != nil {
		t.Fatalf("build msi: %v", err)
	}
	return img
}

func (m *MSI) encodeCell(v any, typ uint16) ([]byte, error) {
	le := binary.LittleEndian
	isString := typ&0x0800 != 0
	width := 4
	if isString || typ&0x0400 != 0 {
		width = 2
	}
	var raw uint32
	switch x := v.(type) {
	case nil:
		raw = 0
	case string:
		if !isString {
			return nil, fmt.Errorf("string %q in numeric column", x)
		}
		raw = uint32(m.intern(x))
	case int:
		if isString {
			raw = uint32(x)
		} else if width == 2 {
			raw = uint32(int32(x) + 0x8000)
		} else {
			raw = uint32(int64(x) + 0x80000000)
		}
	default:
		return nil, fmt.Errorf("unsupported cell %T", v)
	}
	b := make([]byte, width)
	if width == 2 {
		le.PutUint16(b, uint16(raw))
	} else {
		le.PutUint32(b, raw)
	}
	return b, nil
}

func u16Bytes(words []uint16) []byte {
	b := make([]byte, 2*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint16(b[2*i:], w)
	}
	return b
}
