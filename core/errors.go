package core

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ValidationError reports a malformed model construct: wrong arity, a
// missing child, an unknown field or function, a bad literal or a bad cast
// target. It aborts the calculation of the current batch.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError formats a ValidationError
func NewValidationError(format string, args ...interface{}) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// DataIngestError reports input that lacks a field the mining schema needs
type DataIngestError struct {
	Field   string
	Message string
}

func (e *DataIngestError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("input data do not contain required field %q", e.Field)
}

// InvalidValueError is raised by the fatal invalid-value policy
type InvalidValueError struct {
	Field string
	Row   int
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("field %q has an invalid value in row %d", e.Field, e.Row)
}

// PerformanceError reports begin/end spans that were not balanced
type PerformanceError struct {
	Problems []string
}

func (e *PerformanceError) Error() string {
	return "performance table is inconsistent: " + strings.Join(e.Problems, "; ")
}

// IsValidationError reports whether err wraps a ValidationError
func IsValidationError(err error) bool {
	_, ok := errors.Cause(err).(*ValidationError)
	return ok
}

// IsDataIngestError reports whether err wraps a DataIngestError
func IsDataIngestError(err error) bool {
	_, ok := errors.Cause(err).(*DataIngestError)
	return ok
}

// IsInvalidValueError reports whether err wraps an InvalidValueError
func IsInvalidValueError(err error) bool {
	_, ok := errors.Cause(err).(*InvalidValueError)
	return ok
}
