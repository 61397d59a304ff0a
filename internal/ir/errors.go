package ir

import (
	"errors"
	"fmt"
)

// CaptureError represents a failure of the write-path capture layer.
//
// Every CaptureError aborts the enclosing transaction. None of them are
// retried inside rowlog; retry is the caller's decision.
type CaptureError struct {
	// Code identifies the error category.
	Code CaptureErrorCode

	// Message is a human-readable description.
	Message string

	// Table identifies the acting table, when known.
	Table TableKey

	// Details contains additional context.
	Details map[string]string

	// Cause is the underlying error, if any.
	Cause error
}

// CaptureErrorCode categorizes capture errors.
type CaptureErrorCode string

const (
	// ErrCodeUnknownTable indicates a table absent from the catalog.
	ErrCodeUnknownTable CaptureErrorCode = "UNKNOWN_TABLE"

	// ErrCodePrimaryKeyImmutable indicates an UPDATE that changes a primary-key column.
	ErrCodePrimaryKeyImmutable CaptureErrorCode = "PRIMARY_KEY_IMMUTABLE"

	// ErrCodeCaptureWriteFailure indicates the log entry could not be built or appended.
	ErrCodeCaptureWriteFailure CaptureErrorCode = "CAPTURE_WRITE_FAILURE"

	// ErrCodeToggleReadInconsistency indicates a toggle value that is neither 0 nor 1.
	ErrCodeToggleReadInconsistency CaptureErrorCode = "TOGGLE_READ_INCONSISTENCY"

	// ErrCodeInvalidRow indicates a write naming unknown columns or missing key values.
	ErrCodeInvalidRow CaptureErrorCode = "INVALID_ROW"
)

// Error implements the error interface.
func (e *CaptureError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Table != (TableKey{}) {
		msg = fmt.Sprintf("%s (table=%s)", msg, e.Table)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *CaptureError) Unwrap() error {
	return e.Cause
}

// HasCode reports whether err (or its chain) is a CaptureError with code.
func HasCode(err error, code CaptureErrorCode) bool {
	var ce *CaptureError
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}

// IsUnknownTable returns true if the error is an unknown-table error.
func IsUnknownTable(err error) bool { return HasCode(err, ErrCodeUnknownTable) }

// IsPrimaryKeyImmutable returns true if the error is a primary-key guard rejection.
func IsPrimaryKeyImmutable(err error) bool { return HasCode(err, ErrCodePrimaryKeyImmutable) }

// IsCaptureWriteFailure returns true if the log append failed.
func IsCaptureWriteFailure(err error) bool { return HasCode(err, ErrCodeCaptureWriteFailure) }

// IsToggleReadInconsistency returns true if a toggle value was unreadable.
func IsToggleReadInconsistency(err error) bool {
	return HasCode(err, ErrCodeToggleReadInconsistency)
}

// IsInvalidRow returns true if the write named unknown columns or lacked key values.
func IsInvalidRow(err error) bool { return HasCode(err, ErrCodeInvalidRow) }

// NewUnknownTableError creates a CaptureError for a catalog miss.
func NewUnknownTableError(key TableKey) *CaptureError {
	return &CaptureError{
		Code:    ErrCodeUnknownTable,
		Message: "table is not in the catalog",
		Table:   key,
	}
}

// NewPrimaryKeyImmutableError creates a CaptureError for a rejected key change.
func NewPrimaryKeyImmutableError(key TableKey, column string, from, to IRValue) *CaptureError {
	fromJSON, _ := MarshalIRValue(from)
	toJSON, _ := MarshalIRValue(to)
	return &CaptureError{
		Code:    ErrCodePrimaryKeyImmutable,
		Message: fmt.Sprintf("update would change primary key column %q", column),
		Table:   key,
		Details: map[string]string{
			"column": column,
			"from":   string(fromJSON),
			"to":     string(toJSON),
		},
	}
}

// NewCaptureWriteError creates a CaptureError for a failed log append.
func NewCaptureWriteError(key TableKey, message string, cause error) *CaptureError {
	return &CaptureError{
		Code:    ErrCodeCaptureWriteFailure,
		Message: message,
		Table:   key,
		Cause:   cause,
	}
}

// NewToggleReadError creates a CaptureError for an unreadable toggle value.
func NewToggleReadError(key TableKey, raw int64) *CaptureError {
	return &CaptureError{
		Code:    ErrCodeToggleReadInconsistency,
		Message: fmt.Sprintf("toggle value %d is not 0 or 1", raw),
		Table:   key,
	}
}

// NewInvalidRowError creates a CaptureError for a malformed write.
func NewInvalidRowError(key TableKey, message string) *CaptureError {
	return &CaptureError{
		Code:    ErrCodeInvalidRow,
		Message: message,
		Table:   key,
	}
}
