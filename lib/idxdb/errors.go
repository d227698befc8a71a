package idxdb

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ValentinKolb/idxdb/lib/host"
)

// --------------------------------------------------------------------------
// Error Codes
// --------------------------------------------------------------------------

type Code uint64

const (
	CodeUnknown             Code = iota + 1 // 1: Unclassified failure.
	CodeKeyExists                           // 2: A record with the same primary key exists.
	CodeConstraintViolation                 // 3: A unique index or other constraint failed.
	CodeVersionErr                          // 4: The requested version does not match the stored schema.
	CodeTransactionAbort                    // 5: The host aborted the transaction.
)

var codeNames = map[Code]string{
	CodeUnknown:             "UNKNOWN",
	CodeKeyExists:           "KEY_EXISTS",
	CodeConstraintViolation: "CONSTRAINT_VIOLATION",
	CodeVersionErr:          "VERSION_ERR",
	CodeTransactionAbort:    "TRANSACTION_ABORT_ERR",
}

var defaultMessages = map[Code]string{
	CodeUnknown:             "An unknown error occurred during the storage operation.",
	CodeKeyExists:           "The key you are trying to add already exists.",
	CodeConstraintViolation: "A constraint violation occurred (e.g. unique index constraint).",
	CodeVersionErr:          "The database version is incorrect or outdated.",
	CodeTransactionAbort:    "The transaction was aborted.",
}

// Valid reports whether c is a known code
func (c Code) Valid() bool {
	_, ok := codeNames[c]
	return ok
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Code(%d)", uint64(c))
}

// DefaultMessage returns the message used when an error is created without one
func (c Code) DefaultMessage() string {
	if !c.Valid() {
		c = CodeUnknown
	}
	return defaultMessages[c]
}

// --------------------------------------------------------------------------
// Validation Errors
// --------------------------------------------------------------------------

// Causes of errors raised before a transaction is started. They can be
// matched with errors.Is.
var (
	ErrNoSuchStore = errors.New("object store does not exist")
	ErrNoData      = errors.New("no data to store")
	ErrNoKey       = errors.New("no key specified")
	ErrStoreExists = errors.New("object store already exists")
	ErrClosed      = errors.New("database handle is closed")
)

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Details holds free-form context of an error (payload, store, mode, ...)
type Details map[string]any

// Error is the error type returned by every operation of this package.
type Error struct {
	Code    Code      // The classified error code
	Message string    // Human readable message
	Details Details   // Context of the failed operation
	Cause   error     // The underlying error, if any
	Time    time.Time // When the error was raised
}

// NewError creates an error. Unknown codes fall back to CodeUnknown and an
// empty message falls back to the code's default message.
func NewError(code Code, message string, details Details, cause error) *Error {
	if !code.Valid() {
		code = CodeUnknown
	}
	if strings.TrimSpace(message) == "" {
		message = code.DefaultMessage()
	}
	if details == nil {
		details = Details{}
	}
	return &Error{
		Code:    code,
		Message: message,
		Details: details,
		Cause:   cause,
		Time:    time.Now(),
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("IdxDBError (code %s): %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("IdxDBError (code %s): %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// CodeOf returns the code of the first *Error in err's chain, or CodeUnknown.
func CodeOf(err error) Code {
	var idxErr *Error
	if errors.As(err, &idxErr) {
		return idxErr.Code
	}
	return CodeUnknown
}

// --------------------------------------------------------------------------
// Host Error Mapping
// --------------------------------------------------------------------------

// Classify maps a host failure to a code by the host error's name.
// Unmapped names fall back to CodeUnknown.
func Classify(err error) Code {
	switch host.ErrorName(err) {
	case host.NameConstraint:
		if errors.Is(err, host.ErrKeyExists) {
			return CodeKeyExists
		}
		return CodeConstraintViolation
	case host.NameVersion:
		return CodeVersionErr
	case host.NameAbort:
		return CodeTransactionAbort
	}
	return CodeUnknown
}

// FromHost converts a host failure into an *Error. The message of the host
// error is kept; errors that already are an *Error are returned unchanged.
func FromHost(err error, details Details) *Error {
	var idxErr *Error
	if errors.As(err, &idxErr) {
		return idxErr
	}
	message := ""
	var hostErr *host.Error
	if errors.As(err, &hostErr) {
		message = hostErr.Message
	}
	return NewError(Classify(err), message, details, err)
}
