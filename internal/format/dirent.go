package format

import (
	"fmt"

	"github.com/EldooRado/MsiAnalyzer/internal/buf"
)

// DirEntry is one 128-byte directory record.
//
//	Offset  Size  Description
//	------  ----  ----------------------------------------------------------
//	 0x00   64    Name, 32 UTF-16LE units
//	 0x40    2    Name length in bytes, including the terminator
//	 0x42    1    Object type (0 unknown, 1 storage, 2 stream, 5 root)
//	 0x43    1    Color flag (red-black tree)
//	 0x44    4    Left sibling id
//	 0x48    4    Right sibling id
//	 0x4C    4    Child id
//	 0x50   16    CLSID
//	 0x60    4    State bits
//	 0x64    8    Creation time (FILETIME)
//	 0x6C    8    Modified time (FILETIME)
//	 0x74    4    Starting sector
//	 0x78    8    Stream size (upper 32 bits unreliable in v3)
type DirEntry struct {
	Name        [DirNameUnits]uint16
	NameLen     uint16
	Type        uint8
	Color       uint8
	Left        uint32
	Right       uint32
	Child       uint32
	CLSID       [16]byte
	StateBits   uint32
	CreatedRaw  uint64
	ModifiedRaw uint64
	Start       uint32
	Size        uint64
}

// ParseDirEntry decodes the directory record at the start of b.
func ParseDirEntry(b []byte) (DirEntry, error) {
	if len(b) < DirEntrySize {
		return DirEntry{}, fmt.Errorf("dir entry: %w", ErrTruncated)
	}
	var e DirEntry
	for i := range e.Name {
		e.Name[i] = buf.U16LE(b[DirNameOffset+2*i:])
	}
	e.NameLen = buf.U16LE(b[DirNameLenOffset:])
	e.Type = b[DirTypeOffset]
	e.Color = b[DirColorOffset]
	e.Left = buf.U32LE(b[DirLeftOffset:])
	e.Right = buf.U32LE(b[DirRightOffset:])
	e.Child = buf.U32LE(b[DirChildOffset:])
	copy(e.CLSID[:], b[DirCLSIDOffset:DirCLSIDOffset+16])
	e.StateBits = buf.U32LE(b[DirStateOffset:])
	e.CreatedRaw = buf.U64LE(b[DirCreatedOffset:])
	e.ModifiedRaw = buf.U64LE(b[DirModifiedOffset:])
	e.Start = buf.U32LE(b[DirStartOffset:])
	e.Size = buf.U64LE(b[DirSizeOffset:])
	return e, nil
}

// NameUnits returns the name units covered by NameLen, capped at the record
// capacity. Odd byte counts round down.
func (e DirEntry) NameUnits() []uint16 {
	n := int(e.NameLen) / 2
	if n > DirNameUnits {
		n = DirNameUnits
	}
	return e.Name[:n]
}

// IsEmpty reports whether the slot is unused: no name and no object type.
// Writers fill the start of unused slots with 0, FREESECT or ENDOFCHAIN, so
// Start and Size are not consulted.
func (e DirEntry) IsEmpty() bool {
	return e.NameLen == 0 && e.Type == ObjUnknown
}

// StreamSize returns the entry size as defined for the given major version.
// Version 3 writers may leave garbage in the upper 32 bits.
func (e DirEntry) StreamSize(major uint16) uint64 {
	if major == 3 {
		return e.Size & 0xFFFFFFFF
	}
	return e.Size
}
