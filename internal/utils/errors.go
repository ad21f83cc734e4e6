package utils

import (
	"errors"
	"fmt"
)

// Kind classifies an AppError so the orchestration boundary can translate it
// into a structured result without string matching.
type Kind string

const (
	// KindNotFound marks a referenced anomaly or node that does not exist.
	KindNotFound Kind = "not_found"
	// KindValidation marks malformed input (unknown level tag, missing edge endpoint).
	KindValidation Kind = "validation"
	// KindExecution marks an executor failure or timeout.
	KindExecution Kind = "execution"
)

// AppError wraps an operation, a classification, a human-facing message, and an
// underlying error.
type AppError struct {
	Op   string
	Kind Kind
	Msg  string
	Err  error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFoundError constructs a not-found AppError.
func NotFoundError(op, msg string) error {
	return &AppError{Op: op, Kind: KindNotFound, Msg: msg}
}

// ValidationError constructs a validation AppError.
func ValidationError(op, msg string, err error) error {
	return &AppError{Op: op, Kind: KindValidation, Msg: msg, Err: err}
}

// ExecutionError constructs an execution AppError.
func ExecutionError(op, msg string, err error) error {
	return &AppError{Op: op, Kind: KindExecution, Msg: msg, Err: err}
}

func isKind(err error, kind Kind) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}

// IsNotFound reports whether err is a not-found AppError.
func IsNotFound(err error) bool { return isKind(err, KindNotFound) }

// IsValidation reports whether err is a validation AppError.
func IsValidation(err error) bool { return isKind(err, KindValidation) }

// IsExecution reports whether err is an execution AppError.
func IsExecution(err error) bool { return isKind(err, KindExecution) }
