package types

import (
	"io"
	"log/slog"
)

// DefaultTableCache is the number of decoded tables a database keeps.
const DefaultTableCache = 64

// OpenOptions controls safety and reporting for opening a container or database.
type OpenOptions struct {
	// Strict turns recoverable inconsistencies (unterminated chains, column
	// metadata mismatches, trailing row bytes) into ErrKindCorrupt errors.
	Strict bool

	// Limits bounds file size and read volume. Zero fields select DefaultLimits.
	Limits Limits

	// Logger receives warnings and progress. Nil discards all output.
	Logger *slog.Logger

	// TableCache is the LRU capacity for decoded tables. Zero selects
	// DefaultTableCache, negative disables caching.
	TableCache int
}

// Normalize returns a copy with every zero field replaced by its default.
func (o OpenOptions) Normalize() OpenOptions {
	o.Limits = o.Limits.withDefaults()
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.TableCache == 0 {
		o.TableCache = DefaultTableCache
	}
	return o
}
