package domain

import (
	"errors"
	"fmt"
)

// Error types for domain-specific errors
type ErrorType string

const (
	ErrorTypeSource        ErrorType = "source_document"
	ErrorTypeMalformedPage ErrorType = "malformed_page"
	ErrorTypeRender        ErrorType = "render"
	ErrorTypeGeneration    ErrorType = "generation"
	ErrorTypeAssembly      ErrorType = "assembly"
	ErrorTypeConfig        ErrorType = "config"
	ErrorTypeIO            ErrorType = "io"
)

// DomainError represents a domain-specific error with context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewError creates a new domain error
func NewError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

// IsType reports whether err carries the given domain error type.
func IsType(err error, errType ErrorType) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Type == errType
	}
	return false
}

// Common error constructors

// SourceDocumentError marks a fatal document-level failure: the source cannot
// be opened, is empty, or a page index is out of range.
func SourceDocumentError(message string, err error) *DomainError {
	return NewError(ErrorTypeSource, message, err)
}

// MalformedPageError marks a page whose geometry violates preconditions
// (a zero-sized page and the like). Treated as a per-page failure.
func MalformedPageError(message string, err error) *DomainError {
	return NewError(ErrorTypeMalformedPage, message, err)
}

// RenderError marks a failed page rasterization.
func RenderError(message string, err error) *DomainError {
	return NewError(ErrorTypeRender, message, err)
}

// GenerationError marks a failed content-generation call (network failure,
// rate limit, malformed response).
func GenerationError(message string, err error) *DomainError {
	return NewError(ErrorTypeGeneration, message, err)
}

// AssemblyError marks an ambiguous artifact store; fatal at assembly time
// because silently skipping a page would corrupt ordering invisibly.
func AssemblyError(message string, err error) *DomainError {
	return NewError(ErrorTypeAssembly, message, err)
}

func ConfigError(message string, err error) *DomainError {
	return NewError(ErrorTypeConfig, message, err)
}

func IOError(message string, err error) *DomainError {
	return NewError(ErrorTypeIO, message, err)
}
