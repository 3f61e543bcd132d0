package domain

import (
	"errors"
	"fmt"
	"time"
)

// Base error types (sentinel errors).
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
	ErrUnavailable  = errors.New("service unavailable")
)

// Specific errors.
var (
	ErrResourceNotFound   = fmt.Errorf("resource: %w", ErrNotFound)
	ErrObjectNotFound     = fmt.Errorf("object: %w", ErrNotFound)
	ErrIncompleteTransfer = fmt.Errorf("incomplete transfer: %w", ErrInternal)
	ErrStorageUnavailable = fmt.Errorf("storage: %w", ErrUnavailable)
	ErrSizeUnknown        = fmt.Errorf("remote size: %w", ErrNotFound)
)

// ErrorKind classifies failures that are reported through LastError.
type ErrorKind int

// Error kinds. StateError never surfaces: invalid operations are no-ops.
const (
	NetworkError ErrorKind = iota + 1
	IOError
)

// String returns the string representation of the kind.
func (k ErrorKind) String() string {
	switch k {
	case NetworkError:
		return "network"
	case IOError:
		return "io"
	default:
		return "unknown"
	}
}

// TransferError is a failure of a transfer or of local file handling.
type TransferError struct {
	Kind ErrorKind // NetworkError or IOError
	Key  string    // Resource key
	Err  error     // Underlying error
}

// Error implements the error interface.
func (e *TransferError) Error() string {
	return fmt.Sprintf("%s error for %s: %v", e.Kind, e.Key, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransferError) Unwrap() error {
	return e.Err
}

// ErrorInfo describes the last failure of a resource.
type ErrorInfo struct {
	Kind    ErrorKind
	Message string
	Time    time.Time
}

// NewErrorInfo builds an ErrorInfo from a transfer error.
func NewErrorInfo(err *TransferError) ErrorInfo {
	return ErrorInfo{
		Kind:    err.Kind,
		Message: err.Error(),
		Time:    time.Now(),
	}
}

// StorageError represents an error during storage operations.
type StorageError struct {
	Operation string // Operation that failed (list, stat, read)
	Key       string // Object key
	Err       error  // Underlying error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("storage error during %s for %s: %v",
			e.Operation, e.Key, e.Err)
	}
	return fmt.Sprintf("storage error during %s: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Field   string // Configuration field
	Message string // Error message
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error for %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying error type.
func (e *ConfigError) Unwrap() error {
	return ErrInvalidInput
}
