// Package cfb reads Compound File Binary (OLE2 structured storage) files.
//
// A Container reconstructs the sector-chained virtual filesystem of a
// compound file (FAT, mini-FAT, directory and mini-stream) and serves stream
// contents by their decoded name. Every index taken from the file is bounds
// checked, every chain walk is bounded by the chain length and the total
// amount of data a container reads is capped by types.Limits.
package cfb

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/spf13/afero"

	"github.com/EldooRado/MsiAnalyzer/internal/format"
	"github.com/EldooRado/MsiAnalyzer/internal/mmfile"
	"github.com/EldooRado/MsiAnalyzer/pkg/types"
)

// State is the load stage a container has reached.
type State int

const (
	StateUnopened State = iota
	StateHeaderParsed
	StateFATLoaded
	StateMiniFATLoaded
	StateDirectoryLoaded
	StateMiniStreamLoaded
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnopened:
		return "unopened"
	case StateHeaderParsed:
		return "header-parsed"
	case StateFATLoaded:
		return "fat-loaded"
	case StateMiniFATLoaded:
		return "minifat-loaded"
	case StateDirectoryLoaded:
		return "directory-loaded"
	case StateMiniStreamLoaded:
		return "ministream-loaded"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// EntryType is the object type of a directory entry.
type EntryType uint8

const (
	EntryUnknown EntryType = EntryType(format.ObjUnknown)
	EntryStorage EntryType = EntryType(format.ObjStorage)
	EntryStream  EntryType = EntryType(format.ObjStream)
	EntryRoot    EntryType = EntryType(format.ObjRoot)
)

func (t EntryType) String() string {
	switch t {
	case EntryUnknown:
		return "unknown"
	case EntryStorage:
		return "storage"
	case EntryStream:
		return "stream"
	case EntryRoot:
		return "root"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// Entry is the decoded view of one named directory slot.
type Entry struct {
	Index    int
	Name     string
	RawName  []uint16
	Type     EntryType
	Size     uint64
	Start    uint32
	CLSID    [16]byte
	Created  time.Time
	Modified time.Time
}

// Info summarizes the container geometry.
type Info struct {
	MajorVersion   uint16
	MinorVersion   uint16
	SectorSize     uint32
	MiniSectorSize uint32
	SectorCount    uint32
	FATSectors     uint32
	MiniFATSectors uint32
	DIFATSectors   uint32
	DirEntries     int
	MiniStreamSize uint64
	FileSize       int64
}

// Container is an opened compound file. It is not safe for concurrent use.
type Container struct {
	path    string
	data    []byte
	release func() error
	opts    types.OpenOptions
	log     *slog.Logger
	state   State

	head        format.Header
	sectorSize  uint32
	sectorCount uint32

	fat     Chain // bounded to sectorCount
	miniFAT Chain
	dir     []format.DirEntry

	miniStream []byte

	entries []Entry
	byName  map[string]int

	bytesRead uint64
	diags     *types.DiagnosticReport
}

// Open maps the compound file at path and loads it.
func Open(path string, opts types.OpenOptions) (*Container, error) {
	opts = opts.Normalize()
	if fi, err := os.Stat(path); err == nil && fi.Size() > opts.Limits.MaxFileSize {
		return nil, types.Wrap(types.ErrBudgetExceeded,
			fmt.Sprintf("%s is %d bytes, limit %d", path, fi.Size(), opts.Limits.MaxFileSize), nil)
	}
	data, unmap, err := mmfile.Map(path)
	if err != nil {
		return nil, fmt.Errorf("cfb: open %s: %w", path, err)
	}
	return newContainer(path, data, unmap, opts)
}

// OpenFs reads the compound file at path from fs and loads it.
func OpenFs(fs afero.Fs, path string, opts types.OpenOptions) (*Container, error) {
	opts = opts.Normalize()
	fi, err := fs.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("cfb: stat %s: %w", path, err)
	}
	if fi.Size() > opts.Limits.MaxFileSize {
		return nil, types.Wrap(types.ErrBudgetExceeded,
			fmt.Sprintf("%s is %d bytes, limit %d", path, fi.Size(), opts.Limits.MaxFileSize), nil)
	}
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("cfb: read %s: %w", path, err)
	}
	return newContainer(path, data, nil, opts)
}

// OpenBytes loads a container backed by b. The container never modifies b
// and streams returned by ReadStream never alias it.
func OpenBytes(b []byte, opts types.OpenOptions) (*Container, error) {
	return newContainer("", b, nil, opts.Normalize())
}

func newContainer(path string, data []byte, release func() error, opts types.OpenOptions) (*Container, error) {
	c := &Container{
		path:    path,
		data:    data,
		release: release,
		opts:    opts,
		log:     opts.Logger.With("component", "cfb"),
		diags:   types.NewDiagnosticReport(),
	}
	c.diags.FilePath = path
	c.diags.FileSize = int64(len(data))

	if int64(len(data)) > opts.Limits.MaxFileSize {
		c.abort()
		return nil, types.Wrap(types.ErrBudgetExceeded,
			fmt.Sprintf("input is %d bytes, limit %d", len(data), opts.Limits.MaxFileSize), nil)
	}
	if err := c.load(); err != nil {
		c.abort()
		return nil, err
	}
	return c, nil
}

// abort releases the mapping after a failed load.
func (c *Container) abort() {
	if c.release != nil {
		if err := c.release(); err != nil {
			c.log.Warn("release mapping", "error", err)
		}
		c.release = nil
	}
	c.data = nil
}

// Close releases the mapping. Calling Close more than once is a no-op.
func (c *Container) Close() error {
	if c.state == StateClosed {
		return nil
	}
	c.state = StateClosed
	c.miniStream = nil
	c.data = nil
	if c.release != nil {
		r := c.release
		c.release = nil
		return r()
	}
	return nil
}

func (c *Container) ensureOpen() error {
	if c.state == StateClosed {
		return types.ErrClosed
	}
	return nil
}

// State returns the load stage reached. An opened container is always
// StateReady until Close.
func (c *Container) State() State { return c.state }

// SectorSize returns the main sector size (512 or 4096).
func (c *Container) SectorSize() uint32 { return c.sectorSize }

// Path returns the file the container was opened from, if any.
func (c *Container) Path() string { return c.path }

// Diagnostics returns the issues recorded while loading and reading.
func (c *Container) Diagnostics() *types.DiagnosticReport { return c.diags }

// Info returns the container geometry.
func (c *Container) Info() Info {
	return Info{
		MajorVersion:   c.head.MajorVersion,
		MinorVersion:   c.head.MinorVersion,
		SectorSize:     c.sectorSize,
		MiniSectorSize: c.head.MiniSectorSize(),
		SectorCount:    c.sectorCount,
		FATSectors:     c.head.FATSectors,
		MiniFATSectors: c.head.MiniFATSectors,
		DIFATSectors:   c.head.DIFATSectors,
		DirEntries:     len(c.dir),
		MiniStreamSize: uint64(len(c.miniStream)),
		FileSize:       c.diags.FileSize,
	}
}

// Entries returns every named directory entry in directory order.
func (c *Container) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Entry returns the directory entry whose decoded name is name.
func (c *Container) Entry(name string) (Entry, bool) {
	i, ok := c.byName[name]
	if !ok {
		return Entry{}, false
	}
	return c.entries[i], true
}

// Names returns the decoded names of all entries, sorted.
func (c *Container) Names() []string {
	names := make([]string, 0, len(c.byName))
	for n := range c.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Has reports whether a stream or storage named name exists.
func (c *Container) Has(name string) bool {
	_, ok := c.byName[name]
	return ok
}

// charge accounts n bytes against the read budget.
func (c *Container) charge(n uint64) error {
	c.bytesRead += n
	if c.bytesRead < n || c.bytesRead > c.opts.Limits.MaxTotalRead {
		return types.Wrap(types.ErrBudgetExceeded,
			fmt.Sprintf("%d bytes read, limit %d", c.bytesRead, c.opts.Limits.MaxTotalRead), nil)
	}
	return nil
}

// warn records d and logs it. In strict mode it returns d as an error.
func (c *Container) warn(d types.Diagnostic) error {
	c.diags.Add(d)
	attrs := []any{"code", string(d.Code), "structure", d.Structure}
	if d.Context != nil {
		if d.Context.Stream != "" {
			attrs = append(attrs, "stream", d.Context.Stream)
		}
		if d.Context.Sector != nil {
			attrs = append(attrs, "sector", *d.Context.Sector)
		}
	}
	c.log.Warn(d.Issue, attrs...)
	if c.opts.Strict && d.StrictFatal() {
		return d.Err()
	}
	return nil
}
