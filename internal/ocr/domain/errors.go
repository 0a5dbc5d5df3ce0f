package domain

import (
	"errors"
	"fmt"
)

// Category classifies a document failure for the error_type wire field
type Category string

const (
	CategoryValidation  Category = "validation_error"
	CategoryDownload    Category = "download_error"
	CategoryProcessing  Category = "processing_error"
	CategoryEmptyResult Category = "empty_result"
)

// DocumentError is implemented by every per-document failure type
type DocumentError interface {
	error
	Category() Category
}

// ValidationError reports malformed input, rejected before any work starts
type ValidationError struct {
	Message string
}

// NewValidationError formats a validation failure
func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Category() Category { return CategoryValidation }

// DownloadError reports a failure to retrieve or accept a remote document.
// Err holds the underlying cause when there is one; HTTP status rejections
// carry only a message.
type DownloadError struct {
	Message string
	Err     error
}

// NewDownloadError builds a download failure, wrapping err when non-nil
func NewDownloadError(message string, err error) *DownloadError {
	return &DownloadError{Message: message, Err: err}
}

func (e *DownloadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DownloadError) Unwrap() error { return e.Err }

func (e *DownloadError) Category() Category { return CategoryDownload }

// ProcessingError reports an engine or pipeline failure after download.
// Stage names the failing step and prefixes the reported message.
type ProcessingError struct {
	Stage string
	Err   error
}

// NewProcessingError wraps err as a failure of the named stage
func NewProcessingError(stage string, err error) *ProcessingError {
	return &ProcessingError{Stage: stage, Err: err}
}

func (e *ProcessingError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return e.Err.Error()
}

func (e *ProcessingError) Unwrap() error { return e.Err }

func (e *ProcessingError) Category() Category { return CategoryProcessing }

// EmptyResultError reports a run that finished without extracting any text,
// distinct from engine failure so callers can tell "nothing found" from
// "engine failed"
type EmptyResultError struct {
	Message string
}

// NewEmptyResultError builds an empty-result failure with the given message
func NewEmptyResultError(message string) *EmptyResultError {
	return &EmptyResultError{Message: message}
}

func (e *EmptyResultError) Error() string { return e.Message }

func (e *EmptyResultError) Category() Category { return CategoryEmptyResult }

// CategoryOf classifies err, defaulting to processing for untyped failures
func CategoryOf(err error) Category {
	var de DocumentError
	if errors.As(err, &de) {
		return de.Category()
	}
	return CategoryProcessing
}
