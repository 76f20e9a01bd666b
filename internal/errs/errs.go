/*
 * CapMaster - Cross-Capture TCP Correlation Toolkit
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHORS DISCLAIM ALL WARRANTIES
 * WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF
 * MERCHANTABILITY AND FITNESS.
 */

// Package errs defines the error kinds named in spec.md §7 as sentinel
// types carrying a remedial hint, and wraps underlying causes with
// github.com/pkg/errors so verbose mode can print the full chain.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind identifies one of the error classes spec.md §7 names.
type Kind string

const (
	KindDissectorNotFound     Kind = "DissectorNotFound"
	KindDissectorInvocation   Kind = "DissectorInvocation"
	KindDissectorTimeout      Kind = "DissectorTimeout"
	KindDissectorProtocol     Kind = "DissectorProtocol"
	KindInputNotAccessible    Kind = "InputNotAccessible"
	KindInputWrongCount       Kind = "InputWrongCount"
	KindConfigInvalid         Kind = "ConfigInvalid"
	KindDatabaseUnavailable   Kind = "DatabaseUnavailable"
	KindDatabaseSchemaMismatch Kind = "DatabaseSchemaMismatch"
	KindInternalInvariant     Kind = "InternalInvariant"
)

// hints gives each kind a one-line remedial suggestion for the CLI to print.
var hints = map[Kind]string{
	KindDissectorNotFound:      "install tshark and ensure it is discoverable on PATH",
	KindDissectorInvocation:    "check the dissector binary permissions and the input file path",
	KindDissectorTimeout:       "increase --dissector-timeout or check whether the capture is unusually large",
	KindDissectorProtocol:      "the dissector's field order may have changed; verify the -T fields= invocation",
	KindInputNotAccessible:     "verify the path exists, is readable, and has a valid capture magic number",
	KindInputWrongCount:        "match/compare require exactly two capture files",
	KindConfigInvalid:          "check for out-of-range thresholds or mutually exclusive flags",
	KindDatabaseUnavailable:    "verify the database DSN and that the server is reachable",
	KindDatabaseSchemaMismatch: "the existing table does not match the expected schema; drop or rename it",
	KindInternalInvariant:      "this is a bug; please file a report with the verbose output",
}

// Error is a classified, causal error.
type Error struct {
	Kind Kind
	msg  string
	hint string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.msg)
}

// Unwrap exposes the underlying cause to errors.Is/errors.As and to
// github.com/pkg/errors' Cause().
func (e *Error) Unwrap() error { return e.Err }

// Cause implements the interface github.com/pkg/errors.Cause looks for.
func (e *Error) Cause() error { return e.Err }

// Hint returns the one-line remedial suggestion for this kind.
func (e *Error) Hint() string { return e.hint }

// Summary renders the one-line "kind: message (hint: ...)" form used for
// non-verbose CLI output.
func (e *Error) Summary() string {
	return fmt.Sprintf("%s: %s (hint: %s)", e.Kind, e.msg, e.hint)
}

// Verbose renders the summary plus the full cause chain, one cause per line.
func (e *Error) Verbose() string {
	out := e.Summary()

	for cause := e.Err; cause != nil; {
		out += fmt.Sprintf("\n  caused by: %v", cause)

		type unwrapper interface{ Unwrap() error }
		u, ok := cause.(unwrapper)
		if !ok {
			break
		}

		cause = u.Unwrap()
	}

	return out
}

// New constructs a classified error without an underlying cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, msg: msg, hint: hints[kind]}
}

// Wrap constructs a classified error around an underlying cause, using
// github.com/pkg/errors.Wrap so stack-trace-carrying causes are preserved.
func Wrap(kind Kind, cause error, msg string) *Error {
	return &Error{Kind: kind, msg: msg, hint: hints[kind], Err: errors.Wrap(cause, msg)}
}

// IsKind reports whether err is a *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}

	return false
}
