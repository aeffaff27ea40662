package format

import "errors"

var (
	// ErrSignatureMismatch indicates the header did not start with the CFB magic.
	ErrSignatureMismatch = errors.New("format: signature mismatch")
	// ErrTruncated indicates the buffer lacked the bytes required for a structure.
	ErrTruncated = errors.New("format: truncated buffer")
	// ErrBadVersion indicates an unknown major version or a version/sector shift mismatch.
	ErrBadVersion = errors.New("format: unsupported version")
	// ErrBadByteOrder indicates a byte order mark other than 0xFFFE.
	ErrBadByteOrder = errors.New("format: bad byte order")
	// ErrBadSectorShift indicates a sector shift other than 9 or 12.
	ErrBadSectorShift = errors.New("format: bad sector shift")
	// ErrBadMiniSectorShift indicates a mini-sector shift other than 6.
	ErrBadMiniSectorShift = errors.New("format: bad mini sector shift")
	// ErrBadCutoff indicates a mini-stream cutoff other than 4096.
	ErrBadCutoff = errors.New("format: bad mini stream cutoff")
	// ErrBadDirCount indicates a version 3 header with a non-zero directory sector count.
	ErrBadDirCount = errors.New("format: directory sector count must be zero in version 3")
	// ErrNoFAT indicates a header that declares no FAT sectors.
	ErrNoFAT = errors.New("format: no FAT sectors")
	// ErrMissingDIFAT indicates more than 109 FAT sectors without any DIFAT sectors.
	ErrMissingDIFAT = errors.New("format: FAT exceeds header DIFAT without DIFAT sectors")
)
