package msi

import (
	"fmt"
	"unicode/utf8"
)

// ColumnKind is the logical type of an MSI column.
type ColumnKind uint8

const (
	KindUnknown ColumnKind = iota
	KindOrdinalString
	KindLocalizedString
	KindNumber
)

func (k ColumnKind) String() string {
	switch k {
	case KindOrdinalString:
		return "string"
	case KindLocalizedString:
		return "localized"
	case KindNumber:
		return "number"
	default:
		return "unknown"
	}
}

// IsString reports whether cells of this kind are string-pool references.
func (k ColumnKind) IsString() bool {
	return k == KindOrdinalString || k == KindLocalizedString
}

// Column type word layout.
const (
	colTypeWidthMask = 0x00FF
	colTypeString    = 0x0100
	colTypeLocalized = 0x0200
	colTypeShort     = 0x0400
	colTypeObject    = 0x0800
	colTypeNullable  = 0x1000
	colTypeKey       = 0x2000
)

// ColumnType is a decoded !_Columns type word.
type ColumnType struct {
	Kind ColumnKind
	// Adjust is the character count carried by string columns. Rendering
	// ignores it unless asked to strip that many leading characters.
	Adjust uint8
	// Width is 2 or 4 for numbers and 0 otherwise.
	Width    uint8
	Nullable bool
	Key      bool
}

// DecodeColumnType decodes a 16-bit column type word.
func DecodeColumnType(word uint16) ColumnType {
	ct := ColumnType{
		Nullable: word&colTypeNullable != 0,
		Key:      word&colTypeKey != 0,
	}
	switch {
	case word&colTypeObject != 0:
		if word&colTypeShort != 0 && word&colTypeString != 0 {
			ct.Kind = KindOrdinalString
			if word&colTypeLocalized != 0 {
				ct.Kind = KindLocalizedString
			}
			ct.Adjust = uint8(word & colTypeWidthMask)
		}
	case word&colTypeShort != 0:
		ct.Kind = KindNumber
		ct.Width = 2
	default:
		ct.Kind = KindNumber
		ct.Width = 4
	}
	return ct
}

// PhysicalWidth is the number of bytes a cell of this type occupies in a
// table stream.
func (ct ColumnType) PhysicalWidth() int {
	if ct.Kind == KindNumber && ct.Width == 4 {
		return 4
	}
	return 2
}

// String renders the type in MSI IDT notation: s72, l0, i2, i4. Nullable
// columns are upper-case.
func (ct ColumnType) String() string {
	var s string
	switch ct.Kind {
	case KindOrdinalString:
		s = fmt.Sprintf("s%d", ct.Adjust)
	case KindLocalizedString:
		s = fmt.Sprintf("l%d", ct.Adjust)
	case KindNumber:
		s = fmt.Sprintf("i%d", ct.Width)
	default:
		return "?"
	}
	if ct.Nullable {
		s = string(s[0]-'a'+'A') + s[1:]
	}
	return s
}

// ApplyAdjust strips the first n characters of s when s is longer than n.
func ApplyAdjust(s string, n uint8) string {
	if n == 0 || utf8.RuneCountInString(s) <= int(n) {
		return s
	}
	for i := range s {
		if n == 0 {
			return s[i:]
		}
		n--
	}
	return ""
}
