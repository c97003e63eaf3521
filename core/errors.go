package core

import (
	"fmt"

	"go.uber.org/multierr"
)

// Code categorizes a failure: usage mistakes, storage I/O failures,
// recoverable log corruption, and fatal conditions the caller cannot
// recover from.
type Code string

const (
	// CodeUsage covers map-twice, destroy-while-mapped, modify of a base
	// not in the transaction, and overlapping-segment tx conflicts.
	CodeUsage Code = "USAGE"
	// CodeStorage covers any underlying file operation failure.
	CodeStorage Code = "STORAGE"
	// CodeCorrupt covers a torn trailing log record found during recovery.
	CodeCorrupt Code = "CORRUPT"
	// CodeFatal covers conditions the implementer may choose to abort on.
	CodeFatal Code = "FATAL"
)

// Error wraps an underlying cause with a Code so callers can branch on
// failure category with errors.As instead of string matching.
type Error struct {
	Code Code
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(code Code, op string, err error) *Error {
	return &Error{Code: code, Op: op, Err: err}
}

// sentinels matched with errors.Is by callers that don't need the code.
var (
	ErrAlreadyMapped  = fmt.Errorf("segment already mapped")
	ErrNotMapped      = fmt.Errorf("segment not mapped")
	ErrSegmentMapped  = fmt.Errorf("segment is mapped")
	ErrConflict       = fmt.Errorf("segment already owned by a transaction")
	ErrNotInTx        = fmt.Errorf("base not part of this transaction")
	ErrOutOfRange     = fmt.Errorf("offset+size exceeds segment length")
	ErrTooManyRegions = fmt.Errorf("region limit reached")
	ErrReservedName   = fmt.Errorf("segment name must not end in .log")
)

// joinErrs combines one operation's independent cleanup errors (closing
// multiple handles, say) into a single error.
func joinErrs(errs []error) error {
	var out error
	for _, e := range errs {
		out = multierr.Append(out, e)
	}
	return out
}
