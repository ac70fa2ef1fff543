package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors, one per ErrorKind. An *Error matches its sentinel through
// errors.Is.
var (
	// ErrCompile indicates a malformed query definition.
	ErrCompile = errors.New("dbal: compile error")

	// ErrConnection indicates pool exhaustion, an acquisition timeout or a
	// network failure.
	ErrConnection = errors.New("dbal: connection error")

	// ErrDriver indicates an error reported by the database server.
	ErrDriver = errors.New("dbal: driver error")

	// ErrNoRows indicates a single() query that returned zero rows.
	ErrNoRows = errors.New("dbal: no rows")

	// ErrUnsupported indicates an operation the backend does not implement.
	ErrUnsupported = errors.New("dbal: unsupported operation")
)

// ErrorKind classifies an Error.
type ErrorKind string

const (
	CompileError              ErrorKind = "CompileError"
	ConnectionError           ErrorKind = "ConnectionError"
	DriverError               ErrorKind = "DriverError"
	NoRowsError               ErrorKind = "NoRowsError"
	UnsupportedOperationError ErrorKind = "UnsupportedOperationError"
)

func (k ErrorKind) sentinel() error {
	switch k {
	case CompileError:
		return ErrCompile
	case ConnectionError:
		return ErrConnection
	case DriverError:
		return ErrDriver
	case NoRowsError:
		return ErrNoRows
	case UnsupportedOperationError:
		return ErrUnsupported
	}
	return nil
}

// NoRowsMessage is the message of the error returned when a single() query
// finds nothing.
const NoRowsMessage = "No rows returned for single() query"

// Error is the normalized error shape returned inside every result envelope.
// Driver specific error types never reach callers; their code, detail and
// hint are copied here.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Code    string    `json:"code,omitempty"`
	Details string    `json:"details,omitempty"`
	Hint    string    `json:"hint,omitempty"`

	// Cause is the underlying error, kept for logging and errors.As within
	// this module.
	Cause error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s [%s]: %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// NewCompileError creates a CompileError.
func NewCompileError(message string) *Error {
	return &Error{Kind: CompileError, Message: message}
}

// NewNoRowsError creates the error returned by single() on zero rows.
func NewNoRowsError() *Error {
	return &Error{Kind: NoRowsError, Message: NoRowsMessage, Code: "PGRST116"}
}

// NewUnsupportedError creates an UnsupportedOperationError for an operation
// a backend does not implement.
func NewUnsupportedError(operation, backend string) *Error {
	return &Error{
		Kind:    UnsupportedOperationError,
		Message: fmt.Sprintf("%s is not implemented on the %s backend", operation, backend),
	}
}

// NewConnectionError wraps cause as a ConnectionError.
func NewConnectionError(message string, cause error) *Error {
	return &Error{Kind: ConnectionError, Message: message, Cause: cause}
}

// AsError returns err as an *Error. Errors that are not already normalized
// become DriverErrors carrying the original message.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: DriverError, Message: err.Error(), Cause: err}
}

// IsCompile reports whether err is a CompileError.
func IsCompile(err error) bool { return errors.Is(err, ErrCompile) }

// IsConnection reports whether err is a ConnectionError.
func IsConnection(err error) bool { return errors.Is(err, ErrConnection) }

// IsNoRows reports whether err is a NoRowsError.
func IsNoRows(err error) bool { return errors.Is(err, ErrNoRows) }

// IsUnsupported reports whether err is an UnsupportedOperationError.
func IsUnsupported(err error) bool { return errors.Is(err, ErrUnsupported) }
