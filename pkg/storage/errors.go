package storage

import (
	"errors"
	"fmt"
)

// Common storage errors
var (
	// ErrNotFound indicates the requested object or store was not found
	ErrNotFound = errors.New("storage: object not found")

	// ErrAccessDenied indicates the backend refused the request
	ErrAccessDenied = errors.New("storage: access denied")

	// ErrInvalidPath indicates an invalid path was provided
	ErrInvalidPath = errors.New("storage: invalid path")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("storage: invalid configuration")

	// ErrNotSupported indicates the operation is not supported
	ErrNotSupported = errors.New("storage: operation not supported")
)

// Error represents a storage error with additional context
type Error struct {
	Op       string // Operation that failed
	Path     string // Path involved in the operation
	Provider string // Storage provider type
	Err      error  // Underlying error
}

// Error returns the string representation of the error
func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("storage %s: %s failed for %s: %v", e.Provider, e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("storage %s: %s failed: %v", e.Provider, e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is checks if the error matches the target error
func (e *Error) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewError creates a new storage error. An error that is already a
// *Error is returned unchanged so context is not stacked twice.
func NewError(op string, path string, provider string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) && se.Op == op {
		return err
	}
	return &Error{
		Op:       op,
		Path:     path,
		Provider: provider,
		Err:      err,
	}
}

// ConstructionError is returned when a facade cannot be bound to its store:
// the store does not exist, is unreachable, or access is denied.
type ConstructionError struct {
	Provider Provider
	Store    string
	Err      error
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("storage %s: cannot bind store %q: %v", e.Provider, e.Store, e.Err)
}

func (e *ConstructionError) Unwrap() error {
	return e.Err
}

// TransformError is returned when a caller-supplied encrypt or decrypt hook
// fails. Op is "encrypt" or "decrypt".
type TransformError struct {
	Op   string
	Path string
	Err  error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("storage: %s transform failed for %s: %v", e.Op, e.Path, e.Err)
}

func (e *TransformError) Unwrap() error {
	return e.Err
}

// PartialMoveError reports a move whose copy succeeded but whose delete
// failed. The object exists at both From and To.
type PartialMoveError struct {
	From string
	To   string
	Err  error
}

func (e *PartialMoveError) Error() string {
	return fmt.Sprintf("copied %s to %s but failed to delete source: %v", e.From, e.To, e.Err)
}

func (e *PartialMoveError) Unwrap() error {
	return e.Err
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAccessDenied checks if an error is an access denied error
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}

// IsInvalidPath checks if an error is an invalid path error
func IsInvalidPath(err error) bool {
	return errors.Is(err, ErrInvalidPath)
}

// IsNotSupported checks if an error is a not supported error
func IsNotSupported(err error) bool {
	return errors.Is(err, ErrNotSupported)
}

// IsConstructionError checks if an error came from binding a facade
func IsConstructionError(err error) bool {
	var ce *ConstructionError
	return errors.As(err, &ce)
}

// IsTransformError checks if an error came from an encrypt or decrypt hook
func IsTransformError(err error) bool {
	var te *TransformError
	return errors.As(err, &te)
}

// IsPartialMove checks if a move left the object at both paths
func IsPartialMove(err error) bool {
	var pe *PartialMoveError
	return errors.As(err, &pe)
}
