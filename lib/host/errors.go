package host

import (
	"errors"
	"fmt"
)

// Error names follow the DOMException names a browser reports, so code that
// classifies host failures works the same on every engine.
const (
	NameUnknown             = "UnknownError"
	NameConstraint          = "ConstraintError"
	NameVersion             = "VersionError"
	NameAbort               = "AbortError"
	NameData                = "DataError"
	NameNotFound            = "NotFoundError"
	NameInvalidState        = "InvalidStateError"
	NameInvalidAccess       = "InvalidAccessError"
	NameReadOnly            = "ReadOnlyError"
	NameTransactionInactive = "TransactionInactiveError"
	NameBlocked             = "BlockedError"
	NameSyntax              = "SyntaxError"
)

// ErrKeyExists is the cause of a ConstraintError raised because a record
// with the same primary key already exists.
var ErrKeyExists = errors.New("key already exists in the object store")

// Error is a failure reported by the host facility.
type Error struct {
	Name    string
	Message string
	Cause   error
}

// NewError creates an error with the given name and formatted message.
func NewError(name string, format string, args ...interface{}) *Error {
	return &Error{Name: name, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error with the given name that wraps cause.
func Wrap(name string, cause error, format string, args ...interface{}) *Error {
	return &Error{Name: name, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil && e.Cause != ErrKeyExists {
		return fmt.Sprintf("%s: %s: %v", e.Name, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// ErrorName returns the name of the first *Error in err's chain, or "" if
// there is none.
func ErrorName(err error) string {
	var hostErr *Error
	if errors.As(err, &hostErr) {
		return hostErr.Name
	}
	return ""
}

// IsName reports whether err carries a host error with the given name.
func IsName(err error, name string) bool {
	return ErrorName(err) == name
}
