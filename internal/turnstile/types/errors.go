package types

import "errors"

// ErrorKind classifies a failure so the orchestrator can branch on what
// went wrong without inspecting concrete error types.
type ErrorKind int

const (
	KindUnknown        ErrorKind = iota
	KindNotFound                 // a required input file is missing
	KindParseFailure             // roster or event data could not be parsed
	KindNetworkFailure           // ping or HTTP transport failure
	KindBadStatus                // the device answered with a non-2xx status
	KindWriteFailure             // a local artifact could not be written
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindParseFailure:
		return "parse_failure"
	case KindNetworkFailure:
		return "network_failure"
	case KindBadStatus:
		return "bad_status"
	case KindWriteFailure:
		return "write_failure"
	default:
		return "unknown"
	}
}

// Error tags an underlying error with a kind and the operation that failed.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// WrapError tags err with a kind and operation description.
func WrapError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first tagged error in err's chain, or
// KindUnknown when the chain carries no tag.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
