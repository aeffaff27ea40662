package format

import (
	"bytes"
	"fmt"

	"github.com/EldooRado/MsiAnalyzer/internal/buf"
)

// Header is the decoded 512-byte compound file header.
//
//	Offset  Size  Description
//	------  ----  ----------------------------------------------------------
//	 0x000   8    Signature D0 CF 11 E0 A1 B1 1A E1
//	 0x008  16    Header CLSID (must be zero, not enforced)
//	 0x018   2    Minor version
//	 0x01A   2    Major version (3 or 4)
//	 0x01C   2    Byte order (0xFFFE)
//	 0x01E   2    Sector shift (9 for v3, 12 for v4)
//	 0x020   2    Mini sector shift (6)
//	 0x028   4    Number of directory sectors (0 for v3)
//	 0x02C   4    Number of FAT sectors
//	 0x030   4    First directory sector
//	 0x034   4    Transaction signature
//	 0x038   4    Mini stream cutoff (4096)
//	 0x03C   4    First mini FAT sector
//	 0x040   4    Number of mini FAT sectors
//	 0x044   4    First DIFAT sector
//	 0x048   4    Number of DIFAT sectors
//	 0x04C 436    109 inline DIFAT entries
type Header struct {
	MinorVersion     uint16
	MajorVersion     uint16
	ByteOrder        uint16
	SectorShift      uint16
	MiniSectorShift  uint16
	DirSectors       uint32
	FATSectors       uint32
	FirstDirSector   uint32
	Transaction      uint32
	MiniStreamCutoff uint32
	FirstMiniFAT     uint32
	MiniFATSectors   uint32
	FirstDIFAT       uint32
	DIFATSectors     uint32
	DIFAT            [HeaderDIFATEntries]uint32
}

// SectorSize returns 1 << SectorShift, or 0 if the shift is out of range.
func (h Header) SectorSize() uint32 {
	if h.SectorShift > 16 {
		return 0
	}
	return 1 << h.SectorShift
}

// MiniSectorSize returns 1 << MiniSectorShift, or 0 if the shift is out of range.
func (h Header) MiniSectorSize() uint32 {
	if h.MiniSectorShift > 16 {
		return 0
	}
	return 1 << h.MiniSectorShift
}

// ParseHeader decodes the fixed header fields. It checks only the signature
// and length; call Validate for the field-level rules.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("cfb header: %w", ErrTruncated)
	}
	if !bytes.Equal(b[HdrSignatureOffset:HdrSignatureOffset+len(Signature)], Signature) {
		return Header{}, fmt.Errorf("cfb header: %w", ErrSignatureMismatch)
	}
	h := Header{
		MinorVersion:     buf.U16LE(b[HdrMinorVersionOffset:]),
		MajorVersion:     buf.U16LE(b[HdrMajorVersionOffset:]),
		ByteOrder:        buf.U16LE(b[HdrByteOrderOffset:]),
		SectorShift:      buf.U16LE(b[HdrSectorShiftOffset:]),
		MiniSectorShift:  buf.U16LE(b[HdrMiniSectorShiftOffset:]),
		DirSectors:       buf.U32LE(b[HdrDirSectorsOffset:]),
		FATSectors:       buf.U32LE(b[HdrFATSectorsOffset:]),
		FirstDirSector:   buf.U32LE(b[HdrFirstDirSectorOffset:]),
		Transaction:      buf.U32LE(b[HdrTransactionOffset:]),
		MiniStreamCutoff: buf.U32LE(b[HdrMiniCutoffOffset:]),
		FirstMiniFAT:     buf.U32LE(b[HdrFirstMiniFATOffset:]),
		MiniFATSectors:   buf.U32LE(b[HdrMiniFATSectorsOffset:]),
		FirstDIFAT:       buf.U32LE(b[HdrFirstDIFATOffset:]),
		DIFATSectors:     buf.U32LE(b[HdrDIFATSectorsOffset:]),
	}
	for i := range h.DIFAT {
		h.DIFAT[i] = buf.U32LE(b[HdrDIFATOffset+4*i:])
	}
	return h, nil
}

// Validate applies the header rules that do not depend on the file size.
func (h Header) Validate() error {
	switch h.MajorVersion {
	case 3:
		if h.SectorShift != SectorShiftV3 {
			return fmt.Errorf("cfb header: v3 with sector shift %d: %w", h.SectorShift, ErrBadSectorShift)
		}
		if h.DirSectors != 0 {
			return fmt.Errorf("cfb header: %w", ErrBadDirCount)
		}
	case 4:
		if h.SectorShift != SectorShiftV4 {
			return fmt.Errorf("cfb header: v4 with sector shift %d: %w", h.SectorShift, ErrBadSectorShift)
		}
	default:
		return fmt.Errorf("cfb header: major version %d: %w", h.MajorVersion, ErrBadVersion)
	}
	if h.ByteOrder != ByteOrderMark {
		return fmt.Errorf("cfb header: byte order 0x%04x: %w", h.ByteOrder, ErrBadByteOrder)
	}
	if h.MiniSectorShift != MiniSectorShift {
		return fmt.Errorf("cfb header: mini sector shift %d: %w", h.MiniSectorShift, ErrBadMiniSectorShift)
	}
	if h.MiniStreamCutoff != MiniStreamCutoff {
		return fmt.Errorf("cfb header: cutoff %d: %w", h.MiniStreamCutoff, ErrBadCutoff)
	}
	if h.FATSectors == 0 {
		return fmt.Errorf("cfb header: %w", ErrNoFAT)
	}
	if h.FATSectors > HeaderDIFATEntries && h.DIFATSectors == 0 {
		return fmt.Errorf("cfb header: %d FAT sectors: %w", h.FATSectors, ErrMissingDIFAT)
	}
	return nil
}
