package types

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Severity classifies how serious a diagnostic issue is.
type Severity int

const (
	SevInfo     Severity = iota // Informational (unusual but valid)
	SevWarning                  // Recoverable inconsistency, parsing continued
	SevError                    // A stream or table could not be decoded
	SevCritical                 // Structural corruption, container unusable
)

func (s Severity) String() string {
	switch s {
	case SevInfo:
		return "INFO"
	case SevWarning:
		return "WARNING"
	case SevError:
		return "ERROR"
	case SevCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// DiagCode identifies the specific condition behind a diagnostic so callers
// and strict mode can act on it without matching text.
type DiagCode string

const (
	DiagChainNotTerminated DiagCode = "chain-not-terminated"
	DiagNameSkipped        DiagCode = "name-skipped"
	DiagDuplicateName      DiagCode = "duplicate-name"
	DiagNotAStream         DiagCode = "not-a-stream"
	DiagColumnLabel        DiagCode = "column-label-mismatch"
	DiagColumnsSize        DiagCode = "columns-size-mismatch"
	DiagRowRemainder       DiagCode = "row-remainder"
	DiagLongStringRefs     DiagCode = "long-string-refs"
	DiagTableFailed        DiagCode = "table-failed"
)

// Diagnostic records a single issue found while parsing.
type Diagnostic struct {
	Severity Severity `json:"severity"`
	Code     DiagCode `json:"code"`

	// Location
	Structure string `json:"structure"`        // "HEADER", "FAT", "DIRECTORY", "STRINGPOOL", "TABLE", ...
	Offset    uint64 `json:"offset,omitempty"` // byte offset within the file or stream, if known

	// Description
	Issue    string `json:"issue"`
	Expected any    `json:"expected,omitempty"`
	Actual   any    `json:"actual,omitempty"`

	Context *DiagContext `json:"context,omitempty"`
}

// DiagContext names the stream, table or sector a diagnostic relates to.
type DiagContext struct {
	Stream string  `json:"stream,omitempty"`
	Table  string  `json:"table,omitempty"`
	Entry  int     `json:"entry,omitempty"`
	Sector *uint32 `json:"sector,omitempty"`
}

// StrictFatal reports whether strict mode treats the diagnostic as an error.
// Skipped or duplicate names stay warnings in every mode.
func (d Diagnostic) StrictFatal() bool {
	switch d.Code {
	case DiagChainNotTerminated, DiagColumnLabel, DiagColumnsSize, DiagRowRemainder:
		return true
	default:
		return false
	}
}

// Err converts the diagnostic into an error for strict mode.
func (d Diagnostic) Err() error {
	sentinel := ErrCorruptTables
	if d.Code == DiagChainNotTerminated {
		sentinel = ErrChainNotTerminated
	}
	return Wrap(sentinel, d.String(), nil)
}

func (d Diagnostic) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s/%s] %s", d.Structure, d.Code, d.Issue)
	if d.Context != nil {
		if d.Context.Stream != "" {
			fmt.Fprintf(&b, " (stream %q)", d.Context.Stream)
		}
		if d.Context.Table != "" {
			fmt.Fprintf(&b, " (table %q)", d.Context.Table)
		}
	}
	return b.String()
}

// DiagnosticReport collects the diagnostics of one container or database.
type DiagnosticReport struct {
	FilePath string `json:"file_path,omitempty"`
	FileSize int64  `json:"file_size"`

	Diagnostics []Diagnostic `json:"diagnostics"`
	Summary     DiagSummary  `json:"summary"`
}

// DiagSummary provides quick statistics.
type DiagSummary struct {
	Critical int `json:"critical"`
	Errors   int `json:"errors"`
	Warnings int `json:"warnings"`
	Info     int `json:"info"`
}

// NewDiagnosticReport creates an empty report.
func NewDiagnosticReport() *DiagnosticReport {
	return &DiagnosticReport{}
}

// Add appends a diagnostic and updates the summary.
func (r *DiagnosticReport) Add(d Diagnostic) {
	r.Diagnostics = append(r.Diagnostics, d)
	switch d.Severity {
	case SevCritical:
		r.Summary.Critical++
	case SevError:
		r.Summary.Errors++
	case SevWarning:
		r.Summary.Warnings++
	case SevInfo:
		r.Summary.Info++
	}
}

// Merge appends every diagnostic of ds.
func (r *DiagnosticReport) Merge(ds []Diagnostic) {
	for _, d := range ds {
		r.Add(d)
	}
}

// HasErrors returns true if any errors or critical issues were found.
func (r *DiagnosticReport) HasErrors() bool {
	return r.Summary.Critical > 0 || r.Summary.Errors > 0
}

// HasAnyIssues returns true if any issues were found (including warnings and info).
func (r *DiagnosticReport) HasAnyIssues() bool {
	return len(r.Diagnostics) > 0
}

// ByCode returns the diagnostics carrying code.
func (r *DiagnosticReport) ByCode(code DiagCode) []Diagnostic {
	var out []Diagnostic
	for _, d := range r.Diagnostics {
		if d.Code == code {
			out = append(out, d)
		}
	}
	return out
}

// FormatJSON returns the report as formatted JSON (2-space indentation).
func (r *DiagnosticReport) FormatJSON() (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// FormatTextCompact returns one line per issue, most severe first.
func (r *DiagnosticReport) FormatTextCompact() string {
	var b strings.Builder
	sorted := make([]Diagnostic, len(r.Diagnostics))
	copy(sorted, r.Diagnostics)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Severity > sorted[j].Severity
	})
	for _, d := range sorted {
		fmt.Fprintf(&b, "%-8s %s\n", d.Severity, d)
	}
	if len(r.Diagnostics) == 0 {
		b.WriteString("No issues found.\n")
	}
	return b.String()
}
