package msi

import (
	"fmt"

	"github.com/EldooRado/MsiAnalyzer/internal/buf"
	"github.com/EldooRado/MsiAnalyzer/pkg/types"
)

const (
	poolSlotSize     = 4
	longStringRefBit = 0x80000000
)

// StringPool is the ordered list of strings referenced by table cells.
// Index 0 is always the empty string.
type StringPool struct {
	strings []string

	// Codepage is the database codepage from the pool header.
	Codepage uint32
	// LongRefs reports that string columns use 3-byte references.
	LongRefs bool

	Warnings []types.Diagnostic
}

// BuildStringPoolFrom reads !_StringPool and !_StringData from c.
func BuildStringPoolFrom(c StreamSource) (*StringPool, error) {
	pool, err := c.ReadStream(StringPoolStream)
	if err != nil {
		return nil, fmt.Errorf("msi: string pool: %w", err)
	}
	data, err := c.ReadStream(StringDataStream)
	if err != nil {
		return nil, fmt.Errorf("msi: string data: %w", err)
	}
	return BuildStringPool(data, pool)
}

// BuildStringPool decodes the (length, refcount) slot array in pool against
// the concatenated bytes in data.
//
// Slot 0 is the pool header and yields the empty string. Every later slot
// yields exactly one index: a zero refcount gives an empty placeholder, a
// zero length with a non-zero refcount means the following slot holds a
// 32-bit length, and anything else copies length bytes.
func BuildStringPool(data, pool []byte) (*StringPool, error) {
	slots := len(pool) / poolSlotSize
	sp := &StringPool{strings: make([]string, 0, slots)}
	if slots == 0 {
		sp.strings = append(sp.strings, "")
		return sp, nil
	}

	header := buf.U32LE(pool)
	sp.Codepage = header &^ longStringRefBit
	sp.LongRefs = header&longStringRefBit != 0
	sp.strings = append(sp.strings, "")
	if sp.LongRefs {
		sp.Warnings = append(sp.Warnings, types.Diagnostic{
			Severity:  types.SevWarning,
			Code:      types.DiagLongStringRefs,
			Structure: "STRINGPOOL",
			Issue:     "database uses 3-byte string references; tables are decoded with 2-byte references",
		})
	}
	offset := 0
	for slot := 1; slot < slots; slot++ {
		at := slot * poolSlotSize
		length := int(buf.U16LE(pool[at:]))
		refs := buf.U16LE(pool[at+2:])

		switch {
		case refs == 0:
			sp.strings = append(sp.strings, "")
			continue
		case length == 0:
			if slot+1 >= slots {
				return nil, types.Wrap(types.ErrTruncatedRead,
					fmt.Sprintf("string %d: long length slot missing", len(sp.strings)), nil)
			}
			slot++
			l, ok := buf.ToInt(uint64(buf.U32LE(pool[slot*poolSlotSize:])))
			if !ok {
				return nil, types.Wrap(types.ErrTruncatedRead, "string length overflows", nil)
			}
			length = l
		}

		b, ok := buf.Slice(data, offset, length)
		if !ok {
			return nil, types.Wrap(types.ErrTruncatedRead,
				fmt.Sprintf("string %d: %d bytes at offset %d, data holds %d", len(sp.strings), length, offset, len(data)), nil)
		}
		sp.strings = append(sp.strings, string(b))
		offset += length
	}
	return sp, nil
}

// Len returns the number of indices in the pool, including index 0.
func (p *StringPool) Len() int { return len(p.strings) }

// At returns the raw bytes of string i as a Go string, or "" when i is out
// of range.
func (p *StringPool) At(i int) string {
	s, _ := p.Lookup(i)
	return s
}

// Lookup returns string i and whether i is a valid index.
func (p *StringPool) Lookup(i int) (string, bool) {
	if i < 0 || i >= len(p.strings) {
		return "", false
	}
	return p.strings[i], true
}

// Text returns string i decoded from the database codepage to UTF-8.
func (p *StringPool) Text(i int) string {
	return decodeCodepage(p.Codepage, p.At(i))
}

// Strings returns a copy of the raw pool.
func (p *StringPool) Strings() []string {
	out := make([]string, len(p.strings))
	copy(out, p.strings)
	return out
}
