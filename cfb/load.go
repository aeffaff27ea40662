package cfb

import (
	"errors"
	"fmt"

	"github.com/EldooRado/MsiAnalyzer/internal/buf"
	"github.com/EldooRado/MsiAnalyzer/internal/format"
	"github.com/EldooRado/MsiAnalyzer/pkg/types"
)

// load runs the strictly sequential load stages. The first failure is
// returned and the container stays in the last state it reached.
func (c *Container) load() error {
	steps := []struct {
		next State
		run  func() error
	}{
		{StateHeaderParsed, c.parseHeader},
		{StateFATLoaded, c.loadFAT},
		{StateMiniFATLoaded, c.loadMiniFAT},
		{StateDirectoryLoaded, c.loadDirectory},
		{StateMiniStreamLoaded, c.loadMiniStream},
		{StateReady, c.resolveNames},
	}
	for _, s := range steps {
		if err := s.run(); err != nil {
			c.log.Debug("load failed", "state", c.state.String(), "next", s.next.String(), "error", err)
			return fmt.Errorf("cfb: %s: %w", s.next, err)
		}
		c.state = s.next
	}
	c.log.Debug("container ready",
		"version", c.head.MajorVersion,
		"sectors", c.sectorCount,
		"entries", len(c.entries),
		"bytes_read", c.bytesRead)
	return nil
}

func wrapFormatErr(err error) error {
	switch {
	case errors.Is(err, format.ErrTruncated):
		return types.Wrap(types.ErrInvalidHeader, "file shorter than the header", err)
	default:
		return types.Wrap(types.ErrInvalidHeader, "", err)
	}
}

func (c *Container) parseHeader() error {
	head, err := format.ParseHeader(c.data)
	if err != nil {
		return wrapFormatErr(err)
	}
	if err := head.Validate(); err != nil {
		return wrapFormatErr(err)
	}
	ss := head.SectorSize()
	count := buf.CeilDiv(uint64(len(c.data)), uint64(ss))
	if count <= 1 {
		return types.Wrap(types.ErrInvalidHeader, "file holds no sectors after the header", nil)
	}
	count--
	if count > uint64(format.MaxRegSect) {
		return types.Wrap(types.ErrInvalidHeader, fmt.Sprintf("%d sectors exceed the addressable range", count), nil)
	}
	sectors := uint32(count)
	if head.FATSectors > sectors {
		return types.Wrap(types.ErrInvalidHeader,
			fmt.Sprintf("%d FAT sectors in a file of %d sectors", head.FATSectors, sectors), nil)
	}
	if head.DIFATSectors > sectors {
		return types.Wrap(types.ErrInvalidHeader,
			fmt.Sprintf("%d DIFAT sectors in a file of %d sectors", head.DIFATSectors, sectors), nil)
	}
	if head.DIFAT[0] >= sectors {
		return types.Wrap(types.ErrInvalidHeader,
			fmt.Sprintf("first FAT sector %d outside a file of %d sectors", head.DIFAT[0], sectors), nil)
	}
	c.head = head
	c.sectorSize = ss
	c.sectorCount = sectors
	return nil
}

// sector returns the bytes of main sector s, charging the read budget.
func (c *Container) sector(s uint32, what string) ([]byte, error) {
	if s >= c.sectorCount {
		return nil, types.Wrap(types.ErrOutOfBounds,
			fmt.Sprintf("%s: sector %d of %d", what, s, c.sectorCount), nil)
	}
	off := (uint64(s) + 1) * uint64(c.sectorSize)
	b, ok := buf.Slice64(c.data, off, uint64(c.sectorSize))
	if !ok {
		return nil, types.Wrap(types.ErrTruncatedRead,
			fmt.Sprintf("%s: sector %d at offset %d", what, s, off), nil)
	}
	if err := c.charge(uint64(c.sectorSize)); err != nil {
		return nil, err
	}
	return b, nil
}

// difat collects the FAT sector list from the header and DIFAT sectors.
func (c *Container) difat() ([]uint32, error) {
	want := c.head.FATSectors
	inline := want
	if inline > format.HeaderDIFATEntries {
		inline = format.HeaderDIFATEntries
	}
	list := make([]uint32, 0, want)
	list = append(list, c.head.DIFAT[:inline]...)

	per := c.sectorSize/4 - 1
	next := c.head.FirstDIFAT
	for i := uint32(0); uint32(len(list)) < want && i < c.head.DIFATSectors; i++ {
		b, err := c.sector(next, "difat")
		if err != nil {
			return nil, err
		}
		words := buf.U32s(b)
		take := want - uint32(len(list))
		if take > per {
			take = per
		}
		list = append(list, words[:take]...)
		next = words[per]
	}
	if uint32(len(list)) < want {
		return nil, types.Wrap(types.ErrInvalidHeader,
			fmt.Sprintf("DIFAT lists %d of %d FAT sectors", len(list), want), nil)
	}
	return list, nil
}

func (c *Container) loadFAT() error {
	sectors, err := c.difat()
	if err != nil {
		return err
	}
	raw := make([]byte, 0, len(sectors)*int(c.sectorSize))
	for _, s := range sectors {
		b, err := c.sector(s, "fat")
		if err != nil {
			return err
		}
		raw = append(raw, b...)
	}
	fat := Chain(buf.U32s(raw))
	if uint64(len(fat)) > uint64(c.sectorCount) {
		fat = fat[:c.sectorCount]
	}
	c.fat = fat
	c.log.Debug("fat loaded", "fat_sectors", len(sectors), "entries", len(fat))
	return nil
}

func (c *Container) loadMiniFAT() error {
	if c.head.MiniFATSectors == 0 {
		c.miniFAT = Chain{}
		return nil
	}
	raw, err := c.readChain(chainRead{
		src:        c.data,
		chain:      c.fat,
		start:      c.head.FirstMiniFAT,
		length:     uint64(c.head.MiniFATSectors) * uint64(c.sectorSize),
		sectorSize: c.sectorSize,
		what:       "minifat",
	})
	if err != nil {
		return err
	}
	c.miniFAT = Chain(buf.U32s(raw))
	return nil
}

func (c *Container) loadDirectory() error {
	count := uint64(c.head.DirSectors)
	if c.head.MajorVersion == 3 || count == 0 {
		sectors, err := c.fat.Walk(c.head.FirstDirSector)
		if err != nil && !errors.Is(err, types.ErrChainNotTerminated) {
			return fmt.Errorf("directory chain: %w", err)
		}
		if err != nil {
			s := c.head.FirstDirSector
			if werr := c.warn(types.Diagnostic{
				Severity:  types.SevWarning,
				Code:      types.DiagChainNotTerminated,
				Structure: "DIRECTORY",
				Issue:     err.Error(),
				Context:   &types.DiagContext{Sector: &s},
			}); werr != nil {
				return werr
			}
		}
		count = uint64(len(sectors))
	}
	if count == 0 {
		return types.Wrap(types.ErrCorruptDirectory, "directory chain is empty", nil)
	}
	raw, err := c.readChain(chainRead{
		src:        c.data,
		chain:      c.fat,
		start:      c.head.FirstDirSector,
		length:     count * uint64(c.sectorSize),
		sectorSize: c.sectorSize,
		what:       "directory",
	})
	if err != nil {
		return err
	}
	n := len(raw) / format.DirEntrySize
	dir := make([]format.DirEntry, 0, n)
	for i := 0; i < n; i++ {
		e, err := format.ParseDirEntry(raw[i*format.DirEntrySize:])
		if err != nil {
			return types.Wrap(types.ErrTruncatedRead, fmt.Sprintf("directory entry %d", i), err)
		}
		dir = append(dir, e)
	}
	if dir[0].Type != format.ObjRoot {
		return types.Wrap(types.ErrCorruptDirectory,
			fmt.Sprintf("entry 0 has type %d, want root storage", dir[0].Type), nil)
	}
	c.dir = dir
	return nil
}

func (c *Container) loadMiniStream() error {
	root := c.dir[0]
	size := root.StreamSize(c.head.MajorVersion)
	ms, err := c.readChain(chainRead{
		src:        c.data,
		chain:      c.fat,
		start:      root.Start,
		length:     size,
		sectorSize: c.sectorSize,
		what:       "ministream",
	})
	if err != nil {
		return err
	}
	c.miniStream = ms
	return nil
}

// resolveNames builds the name index. Unreadable names are recorded as
// diagnostics and left out of the index; they never fail the load.
func (c *Container) resolveNames() error {
	c.entries = make([]Entry, 0, len(c.dir))
	c.byName = make(map[string]int, len(c.dir))
	for i, e := range c.dir {
		if e.IsEmpty() {
			continue
		}
		if e.NameLen == 0 {
			c.skipName(i, "typed slot has no name")
			continue
		}
		if e.Type == format.ObjUnknown {
			c.skipName(i, "named slot is not allocated")
			continue
		}
		name, err := DecodeStreamName(e.NameUnits(), int(e.NameLen))
		if err != nil {
			c.skipName(i, err.Error())
			continue
		}
		if prev, dup := c.byName[name]; dup {
			_ = c.warn(types.Diagnostic{
				Severity:  types.SevWarning,
				Code:      types.DiagDuplicateName,
				Structure: "DIRECTORY",
				Issue:     fmt.Sprintf("entry %d repeats the name of entry %d", i, c.entries[prev].Index),
				Context:   &types.DiagContext{Stream: name, Entry: i},
			})
			continue
		}
		raw := make([]uint16, len(e.NameUnits()))
		copy(raw, e.NameUnits())
		c.byName[name] = len(c.entries)
		c.entries = append(c.entries, Entry{
			Index:    i,
			Name:     name,
			RawName:  raw,
			Type:     EntryType(e.Type),
			Size:     e.StreamSize(c.head.MajorVersion),
			Start:    e.Start,
			CLSID:    e.CLSID,
			Created:  format.FiletimeToTime(e.CreatedRaw),
			Modified: format.FiletimeToTime(e.ModifiedRaw),
		})
	}
	return nil
}

func (c *Container) skipName(i int, why string) {
	_ = c.warn(types.Diagnostic{
		Severity:  types.SevWarning,
		Code:      types.DiagNameSkipped,
		Structure: "DIRECTORY",
		Offset:    uint64(i) * format.DirEntrySize,
		Issue:     fmt.Sprintf("entry %d skipped: %s", i, why),
		Context:   &types.DiagContext{Entry: i},
	})
}
