package sheetforge

import "fmt"

// ErrorCode enumerates the fork engine's error categories.
type ErrorCode int

const (
	// Unknown represents an unspecified error condition.
	Unknown ErrorCode = iota
	// NotFound covers a missing fork id, sheet name, checkpoint id, staged
	// change id, or region id.
	NotFound
	// Conflict marks a versioned write that observed a different current
	// version than expected.
	Conflict
	// BaseChanged marks a base workbook whose mtime or content hash differs
	// from the snapshot taken at fork creation.
	BaseChanged
	// Capacity marks a limit violation: max forks, max checkpoints per
	// fork, max staged changes per fork, max checkpoint total bytes, or
	// max file size.
	Capacity
	// PolicyDenied marks a rejected target path, extension, or overwrite
	// policy.
	PolicyDenied
	// MalformedInput marks an unresolvable region id, unknown staged op
	// kind, invalid A1 address, or invalid patch op-mode.
	MalformedInput
	// IO marks a read/write/copy failure during a disk step.
	IO
	// BackendUnavailable marks a recalculation backend that could not be
	// reached.
	BackendUnavailable
	// Timeout marks a recalculation that exceeded its deadline.
	Timeout
)

func (c ErrorCode) String() string {
	switch c {
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case BaseChanged:
		return "base_changed"
	case Capacity:
		return "capacity"
	case PolicyDenied:
		return "policy_denied"
	case MalformedInput:
		return "malformed_input"
	case IO:
		return "io"
	case BackendUnavailable:
		return "backend_unavailable"
	case Timeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error is the fork engine's error type: a category code wrapping the
// underlying cause.
type Error struct {
	Code ErrorCode
	Err  error
}

func (e Error) Error() string {
	if e.Err == nil {
		return e.Code.String()
	}
	return fmt.Errorf("%s: %w", e.Code, e.Err).Error()
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e Error) Unwrap() error {
	return e.Err
}

// NewError builds an Error of the given category wrapping err.
func NewError(code ErrorCode, err error) error {
	return Error{Code: code, Err: err}
}

// NewErrorf builds an Error of the given category from a formatted message.
func NewErrorf(code ErrorCode, format string, args ...any) error {
	return Error{Code: code, Err: fmt.Errorf(format, args...)}
}

// CodeOf returns the ErrorCode of err if it (or something it wraps) is an
// Error, otherwise Unknown.
func CodeOf(err error) ErrorCode {
	var fe Error
	if asError(err, &fe) {
		return fe.Code
	}
	return Unknown
}

// asError walks err's Unwrap chain looking for an Error, kept local so
// callers never need the errors package just to classify a code.
func asError(err error, target *Error) bool {
	for err != nil {
		if fe, ok := err.(Error); ok {
			*target = fe
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
