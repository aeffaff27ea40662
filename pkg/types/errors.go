package types

import (
	"errors"
	"fmt"
)

// ErrKind classifies errors so callers can branch on intent rather than text.
type ErrKind int

const (
	ErrKindInvalidHeader ErrKind = iota // header fields fail validation
	ErrKindOutOfBounds                  // sector index or offset outside its table/buffer
	ErrKindTruncated                    // source ended before a required read
	ErrKindNotFound                     // missing stream or table
	ErrKindEncoding                     // stream name outside the known encodings
	ErrKindCorrupt                      // structural inconsistency between streams
	ErrKindLimit                        // resource budget exceeded
	ErrKindState                        // operation invalid for the current state
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindInvalidHeader:
		return "invalid-header"
	case ErrKindOutOfBounds:
		return "out-of-bounds"
	case ErrKindTruncated:
		return "truncated"
	case ErrKindNotFound:
		return "not-found"
	case ErrKindEncoding:
		return "encoding"
	case ErrKindCorrupt:
		return "corrupt"
	case ErrKindLimit:
		return "limit"
	case ErrKindState:
		return "state"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is a typed error with an optional underlying cause.
type Error struct {
	Kind ErrKind
	Msg  string
	Err  error // optional underlying cause
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind and message, so wrapped copies
// of a sentinel still satisfy errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Kind == t.Kind && e.Msg == t.Msg
}

// Sentinels commonly returned by implementations.
var (
	// ErrInvalidHeader indicates the compound file header failed validation.
	ErrInvalidHeader = &Error{Kind: ErrKindInvalidHeader, Msg: "invalid compound file header"}
	// ErrOutOfBounds indicates a sector index outside its chain or a read past a buffer.
	ErrOutOfBounds = &Error{Kind: ErrKindOutOfBounds, Msg: "sector out of bounds"}
	// ErrChainCycle indicates a chain walk that would need more steps than the chain has entries.
	ErrChainCycle = &Error{Kind: ErrKindOutOfBounds, Msg: "sector chain cycle"}
	// ErrTruncatedRead indicates the source ended before a sector or string could be read.
	ErrTruncatedRead = &Error{Kind: ErrKindTruncated, Msg: "truncated read"}
	// ErrStreamNotFound indicates no directory entry decodes to the requested name.
	ErrStreamNotFound = &Error{Kind: ErrKindNotFound, Msg: "stream not found"}
	// ErrTableNotFound indicates the table is not listed in !_Tables.
	ErrTableNotFound = &Error{Kind: ErrKindNotFound, Msg: "table not found"}
	// ErrUnknownEncoding indicates a stream name unit outside every known range.
	ErrUnknownEncoding = &Error{Kind: ErrKindEncoding, Msg: "unknown stream name encoding"}
	// ErrCorruptDirectory indicates a directory array without a root storage in slot 0.
	ErrCorruptDirectory = &Error{Kind: ErrKindCorrupt, Msg: "corrupt directory"}
	// ErrCorruptTables indicates inconsistent !_Tables/!_Columns/string pool data.
	ErrCorruptTables = &Error{Kind: ErrKindCorrupt, Msg: "corrupt table metadata"}
	// ErrChainNotTerminated indicates a chain that did not end in END_OF_CHAIN (strict mode only).
	ErrChainNotTerminated = &Error{Kind: ErrKindCorrupt, Msg: "sector chain not terminated"}
	// ErrBudgetExceeded indicates a configured read limit was exceeded.
	ErrBudgetExceeded = &Error{Kind: ErrKindLimit, Msg: "read budget exceeded"}
	// ErrClosed indicates use of a container after Close.
	ErrClosed = &Error{Kind: ErrKindState, Msg: "container closed"}
)

// Wrap returns a copy of sentinel carrying detail and cause. The result still
// satisfies errors.Is(err, sentinel).
func Wrap(sentinel *Error, detail string, cause error) error {
	e := &Error{Kind: sentinel.Kind, Msg: sentinel.Msg, Err: cause}
	if detail != "" {
		if cause != nil {
			e.Err = fmt.Errorf("%s: %w", detail, cause)
		} else {
			e.Err = detailError(detail)
		}
	}
	return e
}

// KindOf reports the ErrKind of err, if it wraps an *Error.
func KindOf(err error) (ErrKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

type detailError string

func (d detailError) Error() string { return string(d) }
