package envelope

import (
	"fmt"

	"github.com/samsarahq/go/oops"
)

// Kind classifies a mesh error so that transport layers (GraphQL field
// errors, REST status codes) can react uniformly regardless of which
// backend produced it.
type Kind int

const (
	// NotFound means an identity lookup yielded nothing.
	NotFound Kind = iota
	// Unauthorized means the caller's token set did not intersect the
	// version's authorized_tokens.
	Unauthorized
	// Storage means a backend driver failed.
	Storage
	// Validation means an input failed a schema or shape check.
	Validation
	// Template means a query template failed to render.
	Template
	// Parse means a stored value or rendered template was not valid JSON.
	Parse
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "NotFound"
	case Unauthorized:
		return "Unauthorized"
	case Storage:
		return "Storage"
	case Validation:
		return "Validation"
	case Template:
		return "Template"
	case Parse:
		return "Parse"
	default:
		return "Unknown"
	}
}

// Error is the error type every package in this module returns. It carries
// a Kind for callers that branch on it (the REST surface maps Kind to an
// HTTP status, the GraphQL engine decides whether to surface a field error
// or a null) and wraps an inner cause, following the teacher's
// SafeError/ClientError split: Error() includes the inner cause for logs,
// while Sanitized() is what is safe to put on the wire.
type Error struct {
	Kind  Kind
	msg   string
	cause error
}

func NewError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Wrap produces a Storage-kind Error around a backend driver failure,
// attaching an oops-formatted stack trace the way sqlgen/db.go wraps
// explain-query failures.
func Wrap(err error, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Kind:  Storage,
		msg:   fmt.Sprintf(format, args...),
		cause: oops.Wrapf(err, fmt.Sprintf(format, args...)),
	}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.cause.Error()
	}
	return e.msg
}

// Sanitized returns the message safe to return to an external caller,
// without the wrapped internal cause or stack trace.
func (e *Error) Sanitized() string { return e.msg }

func (e *Error) Unwrap() error { return e.cause }

// Is supports errors.Is(err, NewError(NotFound, "")) style checks by
// comparing Kind against another *Error.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	return ok && other.Kind == e.Kind
}

// KindOf extracts the Kind from err, defaulting to Storage for errors this
// module did not itself construct (an unwrapped driver error, for
// instance), since an un-classified backend failure is always surfaced as
// a storage failure rather than silently treated as NotFound.
func KindOf(err error) Kind {
	if e, ok := err.(*Error); ok {
		return e.Kind
	}
	return Storage
}
