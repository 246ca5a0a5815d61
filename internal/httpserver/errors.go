package httpserver

// ============================================================================
// HTTP Server Error Definitions
// ============================================================================

import "fmt"

// Kind identifies which branch of the server's error taxonomy an
// error belongs to.
type Kind int

const (
	// KindIO covers any socket, listener, or stream I/O failure.
	KindIO Kind = iota
	// KindMethodNotPresent means the request line had no first
	// whitespace-separated token.
	KindMethodNotPresent
	// KindPathNotPresent means the request line had no second token.
	KindPathNotPresent
	// KindThreadPool means a worker pool join failed.
	KindThreadPool
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io error"
	case KindMethodNotPresent:
		return "method not present"
	case KindPathNotPresent:
		return "path not present"
	case KindThreadPool:
		return "thread pool error"
	default:
		return "unknown"
	}
}

// Error is the server's error type. It carries a Kind from the
// taxonomy in spec.md §7 and, where applicable, the error it wraps.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("httpserver: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("httpserver: %s", e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target has the same Kind, letting callers do
// errors.Is(err, &httpserver.Error{Kind: httpserver.KindIO}) without
// needing to know the wrapped error.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return other.Kind == e.Kind
}

// ErrMethodNotPresent and ErrPathNotPresent are returned directly by
// the request-line parser.
var (
	ErrMethodNotPresent = &Error{Kind: KindMethodNotPresent}
	ErrPathNotPresent   = &Error{Kind: KindPathNotPresent}
)

func ioError(err error) error {
	return &Error{Kind: KindIO, Err: err}
}

func poolError(err error) error {
	return &Error{Kind: KindThreadPool, Err: err}
}
