package core

import (
	"errors"
	"strings"
)

// Kind classifies a storage failure.
type Kind uint8

const (
	// KindUnknown is reported for errors that did not originate in a backend.
	KindUnknown Kind = iota
	// KindInvalidArgument covers null or malformed paths and blobs, and wrong path arity.
	KindInvalidArgument
	// KindNotFound signals that no entity exists at the given path.
	KindNotFound
	// KindConflict signals that an exclusive create found an existing entity.
	KindConflict
	// KindUnavailable signals the backend resource is not ready (e.g. closed).
	KindUnavailable
	// KindIO covers errors during an otherwise valid read or write.
	KindIO
	// KindInit signals the backend could not be constructed.
	KindInit
)

// String returns the string representation of Kind.
func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid argument"
	case KindNotFound:
		return "not found"
	case KindConflict:
		return "conflict"
	case KindUnavailable:
		return "unavailable"
	case KindIO:
		return "io failure"
	case KindInit:
		return "init failure"
	default:
		return "unknown"
	}
}

// Error is the single typed failure returned by every backend.
type Error struct {
	Kind Kind
	Op   string // contract operation, e.g. "get"
	Msg  string
	Err  error // optional underlying cause
}

// Sentinels usable with errors.Is; matching is by Kind only.
var (
	ErrInvalidArgument = &Error{Kind: KindInvalidArgument}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrConflict        = &Error{Kind: KindConflict}
	ErrUnavailable     = &Error{Kind: KindUnavailable}
	ErrIO              = &Error{Kind: KindIO}
	ErrInit            = &Error{Kind: KindInit}
)

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("blobstore")
	if e.Op != "" {
		b.WriteString(": ")
		b.WriteString(e.Op)
	}
	b.WriteString(": ")
	if e.Msg != "" {
		b.WriteString(e.Msg)
	} else {
		b.WriteString(e.Kind.String())
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// E constructs an *Error.
func E(kind Kind, op, msg string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: cause}
}

// NotFound is shorthand for a KindNotFound error about key.
func NotFound(op, key string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Msg: "blob " + key + " not found"}
}

// KindOf returns the Kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsNotFound reports whether err is a KindNotFound failure.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }
