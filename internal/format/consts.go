// Package format houses low-level decoders for the Compound File Binary
// (OLE2 structured storage) container format. Decoders here only check that
// a structure is well formed; cross-structure validation belongs to the cfb
// package, which knows the file size and the sector chains.
package format

// Signature is the eight-byte magic at the start of every compound file.
//
//	0x00  D0 CF 11 E0 A1 B1 1A E1
var Signature = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

const (
	// HeaderSize is the size of the fixed CFB header. In version 4 files the
	// header still occupies a full 4096-byte sector, but only the first 512
	// bytes are meaningful.
	HeaderSize = 512

	// DirEntrySize is the size of one directory entry.
	DirEntrySize = 128

	// DirNameUnits is the capacity of a directory entry name in UTF-16 units.
	DirNameUnits = 32

	// HeaderDIFATEntries is the number of DIFAT entries stored inline in the header.
	HeaderDIFATEntries = 109

	// ByteOrderMark is the only byte order value defined by the format.
	ByteOrderMark = 0xFFFE

	// SectorShiftV3 and SectorShiftV4 are the sector shifts required by
	// major versions 3 and 4 (512 and 4096 byte sectors).
	SectorShiftV3 = 9
	SectorShiftV4 = 12

	// MiniSectorShift is the only mini-sector shift defined by the format (64 bytes).
	MiniSectorShift = 6

	// MiniStreamCutoff is the size boundary between mini-stream and regular
	// stream storage. Streams whose size is <= this value live in the mini-stream.
	MiniStreamCutoff = 4096
)

// Sector sentinels stored in FAT, mini-FAT and DIFAT arrays.
const (
	MaxRegSect uint32 = 0xFFFFFFFA
	DIFATSect  uint32 = 0xFFFFFFFC
	FATSect    uint32 = 0xFFFFFFFD
	EndOfChain uint32 = 0xFFFFFFFE
	FreeSect   uint32 = 0xFFFFFFFF
)

// NoStream marks an absent sibling or child id in a directory entry.
const NoStream uint32 = 0xFFFFFFFF

// Directory entry object types.
const (
	ObjUnknown uint8 = 0x00
	ObjStorage uint8 = 0x01
	ObjStream  uint8 = 0x02
	ObjRoot    uint8 = 0x05
)

// Header field offsets.
const (
	HdrSignatureOffset       = 0x00
	HdrCLSIDOffset           = 0x08
	HdrMinorVersionOffset    = 0x18
	HdrMajorVersionOffset    = 0x1A
	HdrByteOrderOffset       = 0x1C
	HdrSectorShiftOffset     = 0x1E
	HdrMiniSectorShiftOffset = 0x20
	HdrDirSectorsOffset      = 0x28
	HdrFATSectorsOffset      = 0x2C
	HdrFirstDirSectorOffset  = 0x30
	HdrTransactionOffset     = 0x34
	HdrMiniCutoffOffset      = 0x38
	HdrFirstMiniFATOffset    = 0x3C
	HdrMiniFATSectorsOffset  = 0x40
	HdrFirstDIFATOffset      = 0x44
	HdrDIFATSectorsOffset    = 0x48
	HdrDIFATOffset           = 0x4C
)

// Directory entry field offsets.
const (
	DirNameOffset     = 0x00
	DirNameLenOffset  = 0x40
	DirTypeOffset     = 0x42
	DirColorOffset    = 0x43
	DirLeftOffset     = 0x44
	DirRightOffset    = 0x48
	DirChildOffset    = 0x4C
	DirCLSIDOffset    = 0x50
	DirStateOffset    = 0x60
	DirCreatedOffset  = 0x64
	DirModifiedOffset = 0x6C
	DirStartOffset    = 0x74
	DirSizeOffset     = 0x78
)
