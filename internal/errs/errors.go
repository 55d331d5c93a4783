// Package errs provides the unified error type used across all of relmap.
//
// Every layer (codecs, mapper, builder, validator, repository, pool, drivers)
// returns *errs.Error for expected failure modes. Callers use the Is*
// predicates to branch on the kind without importing driver packages.
//
// Usage:
//
//	// In a driver — wrap native errors:
//	return errs.Database("insert failed", pgErr.Code, 0, pgErr)
//
//	// In a caller — check error kind:
//	if errs.IsNotNullViolation(err) {
//	    log.Warn("row had an unexpected NULL")
//	}
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// ErrKind categorises an error without exposing driver-specific codes.
type ErrKind int

const (
	ErrKindUnknown          ErrKind = iota
	ErrKindNotFound                 // no row matched
	ErrKindConnectionFailed         // not connected / connection lost
	ErrKindTimeout                  // context deadline / cancellation
	ErrKindDatabase                 // failure reported by the server itself
	ErrKindInvalidInput             // bad arguments from the caller
	ErrKindConfiguration            // entity metadata cannot serve the request
	ErrKindColumnNotFound           // result lacks a mapped column
	ErrKindUnmappedColumn           // result has a column the entity does not map
	ErrKindNotNullViolation         // NULL for a non-nullable field
	ErrKindParse                    // text does not match the type's grammar
	ErrKindSchemaValidation         // declared schema disagrees with the catalog
	ErrKindPoolExhausted            // no connection became free before the deadline
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindNotFound:
		return "not_found"
	case ErrKindConnectionFailed:
		return "connection_failed"
	case ErrKindTimeout:
		return "timeout"
	case ErrKindDatabase:
		return "database"
	case ErrKindInvalidInput:
		return "invalid_input"
	case ErrKindConfiguration:
		return "configuration"
	case ErrKindColumnNotFound:
		return "column_not_found"
	case ErrKindUnmappedColumn:
		return "unmapped_column"
	case ErrKindNotNullViolation:
		return "not_null_violation"
	case ErrKindParse:
		return "parse"
	case ErrKindSchemaValidation:
		return "schema_validation"
	case ErrKindPoolExhausted:
		return "pool_exhausted"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by all relmap packages.
type Error struct {
	Kind    ErrKind
	Message string
	Cause   error // original driver-level error, preserved for logging

	// SQLState and Code are set for ErrKindDatabase.
	SQLState string
	Code     int

	// Details carries the individual issue messages of a schema validation failure.
	Details []string
}

func (e *Error) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s", e.Kind, e.Message)
	if e.SQLState != "" {
		fmt.Fprintf(&sb, " (SQLSTATE %s)", e.SQLState)
	}
	if len(e.Details) > 0 {
		sb.WriteString(": ")
		sb.WriteString(strings.Join(e.Details, "; "))
	}
	if e.Cause != nil {
		fmt.Fprintf(&sb, ": %v", e.Cause)
	}
	return sb.String()
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// --- Constructors ---

// New creates an *Error with the given kind and message and no cause.
func New(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf is New with a formatted message.
func Newf(kind ErrKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an *Error with the given kind, message, and an underlying cause.
func Wrap(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// Database creates a pass-through server error carrying its SQLSTATE and code.
func Database(msg, sqlState string, code int, cause error) *Error {
	return &Error{Kind: ErrKindDatabase, Message: msg, SQLState: sqlState, Code: code, Cause: cause}
}

// --- Predicates ---

// IsNotFound reports whether err means no row matched.
func IsNotFound(err error) bool {
	return kindOf(err) == ErrKindNotFound
}

// IsTimeout reports whether err was caused by a deadline or context cancellation.
func IsTimeout(err error) bool {
	return kindOf(err) == ErrKindTimeout
}

// IsConnectionFailed reports whether err is a connectivity failure.
func IsConnectionFailed(err error) bool {
	return kindOf(err) == ErrKindConnectionFailed
}

// IsDatabase reports whether err was reported by the database server.
func IsDatabase(err error) bool {
	return kindOf(err) == ErrKindDatabase
}

// IsInvalidInput reports whether err was caused by bad input from the caller.
func IsInvalidInput(err error) bool {
	return kindOf(err) == ErrKindInvalidInput
}

// IsConfiguration reports whether err is an entity configuration error,
// such as a by-id operation on an entity without a primary key.
func IsConfiguration(err error) bool {
	return kindOf(err) == ErrKindConfiguration
}

func IsColumnNotFound(err error) bool   { return kindOf(err) == ErrKindColumnNotFound }
func IsUnmappedColumn(err error) bool   { return kindOf(err) == ErrKindUnmappedColumn }
func IsNotNullViolation(err error) bool { return kindOf(err) == ErrKindNotNullViolation }
func IsParse(err error) bool            { return kindOf(err) == ErrKindParse }

// IsMapping reports whether err is any of the row mapping kinds.
func IsMapping(err error) bool {
	switch kindOf(err) {
	case ErrKindColumnNotFound, ErrKindUnmappedColumn, ErrKindNotNullViolation, ErrKindParse:
		return true
	}
	return false
}

// IsSchemaValidation reports whether err aggregates schema validation issues.
func IsSchemaValidation(err error) bool {
	return kindOf(err) == ErrKindSchemaValidation
}

// IsPoolExhausted reports whether err is an acquisition timeout.
func IsPoolExhausted(err error) bool {
	return kindOf(err) == ErrKindPoolExhausted
}

// SQLState returns the SQLSTATE carried by err, or "" if none.
func SQLState(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.SQLState
	}
	return ""
}

// kindOf extracts the ErrKind from any error in the chain.
func kindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindUnknown
}
