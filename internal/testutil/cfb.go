// Package testutil builds synthetic compound files and MSI databases for
// tests. Images are produced in memory with exact control over versions,
// sector layout and chain contents, so corruption can be injected at a
// known byte position.
package testutil

import (
	"encoding/binary"
	"fmt"

	"github.com/EldooRado/MsiAnalyzer/cfb"
	"github.com/EldooRado/MsiAnalyzer/internal/format"
)

// Stream describes one directory entry to place in a CFB image.
type Stream struct {
	Name    string
	Data    []byte
	Storage bool     // emit a storage entry instead of a stream
	Literal bool     // store the name as plain UTF-16 instead of the packed MSI form
	RawName []uint16 // exact name units, overrides Name when set
}

// CFB describes a compound file to build.
type CFB struct {
	Version uint16 // 3 (512-byte sectors) or 4 (4096-byte sectors); 0 means 3
	Streams []Stream

	// MinFATSectors pads the FAT to at least this many sectors. Values above
	// 109 force DIFAT sectors.
	MinFATSectors int
}

// Add appends a stream with a packed MSI name.
func (b *CFB) Add(name string, data []byte) *CFB {
	b.Streams = append(b.Streams, Stream{Name: name, Data: data})
	return b
}

// AddLiteral appends a stream whose name is stored as plain UTF-16.
func (b *CFB) AddLiteral(name string, data []byte) *CFB {
	b.Streams = append(b.Streams, Stream{Name: name, Data: data, Literal: true})
	return b
}

// AddStorage appends an empty storage entry.
func (b *CFB) AddStorage(name string) *CFB {
	b.Streams = append(b.Streams, Stream{Name: name, Storage: true, Literal: true})
	return b
}

// Image is a built compound file plus the layout needed to corrupt it.
type Image struct {
	Bytes      []byte
	SectorSize int
	Sectors    int // sectors after the header

	FATSectors      []uint32
	DIFATSectors    []uint32
	DirStart        uint32
	MiniFATStart    uint32
	MiniStreamStart uint32

	// Entries maps a stream name to its directory slot.
	Entries map[string]int
	// Starts maps a stream name to its first sector (mini-sector for mini streams).
	Starts map[string]uint32
	// Mini records which streams live in the mini-stream.
	Mini map[string]bool
}

const miniSectorSize = 64

type placed struct {
	s     Stream
	units []uint16
	start uint32
	mini  bool
}

// Build lays out the image: FAT, DIFAT, directory, mini-FAT, mini-stream,
// then regular streams, each in contiguous sectors.
func (b *CFB) Build() (*Image, error) {
	version := b.Version
	if version == 0 {
		version = 3
	}
	var ss int
	switch version {
	case 3:
		ss = 512
	case 4:
		ss = 4096
	default:
		return nil, fmt.Errorf("testutil: unsupported version %d", version)
	}
	perSector := ss / 4

	entries := make([]placed, 0, len(b.Streams))
	var miniBytes, bigSectors int
	for _, s := range b.Streams {
		p := placed{s: s}
		switch {
		case s.RawName != nil:
			p.units = s.RawName
		case s.Literal:
			for _, r := range s.Name {
				p.units = append(p.units, uint16(r))
			}
		default:
			u, err := cfb.EncodeStreamName(s.Name)
			if err != nil {
				return nil, err
			}
			p.units = u
		}
		if len(p.units) >= format.DirNameUnits {
			return nil, fmt.Errorf("testutil: name %q too long", s.Name)
		}
		if !s.Storage && len(s.Data) > 0 {
			if len(s.Data) <= format.MiniStreamCutoff {
				p.mini = true
				miniBytes += ceil(len(s.Data), miniSectorSize) * miniSectorSize
			} else {
				bigSectors += ceil(len(s.Data), ss)
			}
		}
		entries = append(entries, p)
	}

	miniStreamSectors := ceil(miniBytes, ss)
	miniFATSectors := ceil(miniBytes/miniSectorSize*4, ss)
	dirSectors := ceil((len(entries)+1)*format.DirEntrySize, ss)
	other := dirSectors + miniFATSectors + miniStreamSectors + bigSectors

	fatN, difatN := 1, 0
	for {
		if fatN < b.MinFATSectors {
			fatN = b.MinFATSectors
		}
		difatN = 0
		if fatN > format.HeaderDIFATEntries {
			difatN = ceil(fatN-format.HeaderDIFATEntries, perSector-1)
		}
		if other+fatN+difatN <= fatN*perSector {
			break
		}
		fatN++
	}
	total := other + fatN + difatN

	img := &Image{
		Bytes:      make([]byte, (total+1)*ss),
		SectorSize: ss,
		Sectors:    total,
		Entries:    map[string]int{},
		Starts:     map[string]uint32{},
		Mini:       map[string]bool{},
	}
	fat := make([]uint32, fatN*perSector)
	for i := range fat {
		fat[i] = format.FreeSect
	}
	next := uint32(0)
	alloc := func(n int) uint32 {
		if n == 0 {
			return format.EndOfChain
		}
		start := next
		for i := 0; i < n; i++ {
			fat[next] = next + 1
			next++
		}
		fat[next-1] = format.EndOfChain
		return start
	}

	for i := 0; i < fatN; i++ {
		img.FATSectors = append(img.FATSectors, next)
		fat[next] = format.FATSect
		next++
	}
	for i := 0; i < difatN; i++ {
		img.DIFATSectors = append(img.DIFATSectors, next)
		fat[next] = format.DIFATSect
		next++
	}
	img.DirStart = alloc(dirSectors)
	img.MiniFATStart = alloc(miniFATSectors)
	img.MiniStreamStart = alloc(miniStreamSectors)

	miniStream := make([]byte, miniStreamSectors*ss)
	miniFAT := make([]uint32, miniFATSectors*perSector)
	for i := range miniFAT {
		miniFAT[i] = format.FreeSect
	}
	nextMini := uint32(0)
	for i := range entries {
		p := &entries[i]
		data := p.s.Data
		switch {
		case p.s.Storage || len(data) == 0:
			p.start = format.EndOfChain
		case p.mini:
			n := ceil(len(data), miniSectorSize)
			p.start = nextMini
			for j := 0; j < n; j++ {
				miniFAT[nextMini] = nextMini + 1
				nextMini++
			}
			miniFAT[nextMini-1] = format.EndOfChain
			copy(miniStream[int(p.start)*miniSectorSize:], data)
		default:
			p.start = alloc(ceil(len(data), ss))
			copy(img.Bytes[(int(p.start)+1)*ss:], data)
		}
		img.Entries[p.s.Name] = i + 1
		img.Starts[p.s.Name] = p.start
		img.Mini[p.s.Name] = p.mini
	}

	le := binary.LittleEndian
	out := img.Bytes
	writeU32s := func(sector uint32, words []uint32) {
		off := (int(sector) + 1) * ss
		for i, w := range words {
			le.PutUint32(out[off+4*i:], w)
		}
	}
	for i, s := range img.FATSectors {
		writeU32s(s, fat[i*perSector:(i+1)*perSector])
	}
	for i := 0; i < miniFATSectors; i++ {
		writeU32s(img.MiniFATStart+uint32(i), miniFAT[i*perSector:(i+1)*perSector])
	}
	if miniStreamSectors > 0 {
		copy(out[(int(img.MiniStreamStart)+1)*ss:], miniStream)
	}

	// header
	copy(out, format.Signature)
	le.PutUint16(out[format.HdrMinorVersionOffset:], 0x3E)
	le.PutUint16(out[format.HdrMajorVersionOffset:], version)
	le.PutUint16(out[format.HdrByteOrderOffset:], format.ByteOrderMark)
	if version == 3 {
		le.PutUint16(out[format.HdrSectorShiftOffset:], format.SectorShiftV3)
	} else {
		le.PutUint16(out[format.HdrSectorShiftOffset:], format.SectorShiftV4)
		le.PutUint32(out[format.HdrDirSectorsOffset:], uint32(dirSectors))
	}
	le.PutUint16(out[format.HdrMiniSectorShiftOffset:], format.MiniSectorShift)
	le.PutUint32(out[format.HdrFATSectorsOffset:], uint32(fatN))
	le.PutUint32(out[format.HdrFirstDirSectorOffset:], img.DirStart)
	le.PutUint32(out[format.HdrMiniCutoffOffset:], format.MiniStreamCutoff)
	le.PutUint32(out[format.HdrFirstMiniFATOffset:], img.MiniFATStart)
	le.PutUint32(out[format.HdrMiniFATSectorsOffset:], uint32(miniFATSectors))
	firstDIFAT := format.EndOfChain
	if difatN > 0 {
		firstDIFAT = img.DIFATSectors[0]
	}
	le.PutUint32(out[format.HdrFirstDIFATOffset:], firstDIFAT)
	le.PutUint32(out[format.HdrDIFATSectorsOffset:], uint32(difatN))
	for i := 0; i < format.HeaderDIFATEntries; i++ {
		v := format.FreeSect
		if i < fatN {
			v = img.FATSectors[i]
		}
		le.PutUint32(out[format.HdrDIFATOffset+4*i:], v)
	}

	// DIFAT sectors
	rest := img.FATSectors
	if len(rest) > format.HeaderDIFATEntries {
		rest = rest[format.HeaderDIFATEntries:]
	} else {
		rest = nil
	}
	for i, s := range img.DIFATSectors {
		words := make([]uint32, perSector)
		for j := range words {
			words[j] = format.FreeSect
		}
		for j := 0; j < perSector-1 && len(rest) > 0; j++ {
			words[j] = rest[0]
			rest = rest[1:]
		}
		words[perSector-1] = format.EndOfChain
		if i+1 < len(img.DIFATSectors) {
			words[perSector-1] = img.DIFATSectors[i+1]
		}
		writeU32s(s, words)
	}

	// directory
	dirOff := (int(img.DirStart) + 1) * ss
	rootName := []uint16{}
	for _, r := range "Root Entry" {
		rootName = append(rootName, uint16(r))
	}
	writeDirEntry(out[dirOff:], rootName, format.ObjRoot, img.MiniStreamStart, uint64(miniBytes))
	if len(entries) > 0 {
		le.PutUint32(out[dirOff+format.DirChildOffset:], 1)
	}
	for i, p := range entries {
		typ := format.ObjStream
		if p.s.Storage {
			typ = format.ObjStorage
		}
		writeDirEntry(out[dirOff+(i+1)*format.DirEntrySize:], p.units, typ, p.start, uint64(len(p.s.Data)))
	}
	return img, nil
}

func writeDirEntry(b []byte, name []uint16, typ uint8, start uint32, size uint64) {
	le := binary.LittleEndian
	for i, u := range name {
		le.PutUint16(b[format.DirNameOffset+2*i:], u)
	}
	le.PutUint16(b[format.DirNameLenOffset:], uint16((len(name)+1)*2))
	b[format.DirTypeOffset] = typ
	b[format.DirColorOffset] = 1
	le.PutUint32(b[format.DirLeftOffset:], format.NoStream)
	le.PutUint32(b[format.DirRightOffset:], format.NoStream)
	le.PutUint32(b[format.DirChildOffset:], format.NoStream)
	le.PutUint32(b[format.DirStartOffset:], start)
	le.PutUint64(b[format.DirSizeOffset:], size)
}

func ceil(n, d int) int {
	return (n + d - 1) / d
}

// SetFAT overwrites FAT entry sector with value.
func (im *Image) SetFAT(sector, value uint32) {
	per := uint32(im.SectorSize / 4)
	fs := im.FATSectors[sector/per]
	off := (int(fs)+1)*im.SectorSize + int(sector%per)*4
	binary.LittleEndian.PutUint32(im.Bytes[off:], value)
}

// SetMiniFAT overwrites mini-FAT entry sector with value.
func (im *Image) SetMiniFAT(sector, value uint32) {
	per := uint32(im.SectorSize / 4)
	fs := im.MiniFATStart + sector/per
	off := (int(fs)+1)*im.SectorSize + int(sector%per)*4
	binary.LittleEndian.PutUint32(im.Bytes[off:], value)
}

// DirEntryOffset returns the file offset of directory slot i. Only slots in
// the first directory sector are supported.
func (im *Image) DirEntryOffset(i int) int {
	return (int(im.DirStart)+1)*im.SectorSize + i*format.DirEntrySize
}

// SetHeaderU16 overwrites a 16-bit header field.
func (im *Image) SetHeaderU16(off int, v uint16) {
	binary.LittleEndian.PutUint16(im.Bytes[off:], v)
}

// SetHeaderU32 overwrites a 32-bit header field.
func (im *Image) SetHeaderU32(off int, v uint32) {
	binary.LittleEndian.PutUint32(im.Bytes[off:], v)
}

// MustBuild is Build for tests that cannot proceed without an image.
func (b *CFB) MustBuild(t interface {
	Helper()
	Fatalf(string, ...any)
}) *Image {
	t.Helper()
	img, err := b.Build()
	if err != nil {
		t.Fatalf("build compound file: %v", err)
	}
	return img
}
