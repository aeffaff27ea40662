package types

const (
	// MaxFileSize2GB is the default ceiling for input files.
	MaxFileSize2GB = 2 << 30

	// MaxFileSize8GB is a relaxed ceiling for unusually large packages.
	MaxFileSize8GB = 8 << 30

	// MaxFileSize256MB is a conservative ceiling for constrained environments.
	MaxFileSize256MB = 256 << 20

	// MaxStreamSize1GB bounds a single stream read by default.
	MaxStreamSize1GB = 1 << 30

	// MaxStreamSize64MB bounds a single stream read in strict environments.
	MaxStreamSize64MB = 64 << 20

	// ReadBudgetFactor multiplies the file size ceiling to obtain the default
	// cumulative read budget. Repeated stream reads legitimately exceed the
	// file size, a cycle-driven read amplification does not stop there.
	ReadBudgetFactor = 4
)

// Limits bounds the work a container may do on untrusted input.
type Limits struct {
	// MaxFileSize rejects inputs larger than this many bytes.
	MaxFileSize int64

	// MaxStreamSize rejects any single stream whose declared size exceeds this.
	MaxStreamSize uint64

	// MaxTotalRead is the cumulative number of bytes all chain reads of one
	// container may produce, including the load sequence.
	MaxTotalRead uint64
}

// DefaultLimits returns limits that accept every real-world installer package.
func DefaultLimits() Limits {
	return Limits{
		MaxFileSize:   MaxFileSize2GB,
		MaxStreamSize: MaxStreamSize1GB,
		MaxTotalRead:  MaxFileSize2GB * ReadBudgetFactor,
	}
}

// RelaxedLimits returns more permissive limits for very large packages.
func RelaxedLimits() Limits {
	return Limits{
		MaxFileSize:   MaxFileSize8GB,
		MaxStreamSize: MaxFileSize8GB,
		MaxTotalRead:  MaxFileSize8GB * ReadBudgetFactor,
	}
}

// StrictLimits returns conservative limits for scanning untrusted uploads.
func StrictLimits() Limits {
	return Limits{
		MaxFileSize:   MaxFileSize256MB,
		MaxStreamSize: MaxStreamSize64MB,
		MaxTotalRead:  MaxFileSize256MB * ReadBudgetFactor,
	}
}

// withDefaults fills zero fields from DefaultLimits.
func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.MaxFileSize <= 0 {
		l.MaxFileSize = d.MaxFileSize
	}
	if l.MaxStreamSize == 0 {
		l.MaxStreamSize = d.MaxStreamSize
	}
	if l.MaxTotalRead == 0 {
		l.MaxTotalRead = d.MaxTotalRead
	}
	return l
}
