// Package types defines the shared vocabulary of the CFB container reader and
// the MSI table decoder: typed errors with stable categories, diagnostics
// collected while parsing untrusted input, resource limits and open options.
//
// Design goals:
//   - Never panic on malformed input; every offset is bounds checked.
//   - Typed errors that work with errors.Is and errors.As.
//   - Recoverable inconsistencies become diagnostics, not failures, unless
//     the caller opts into strict mode.
package types
