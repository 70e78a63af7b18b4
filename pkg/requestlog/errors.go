package requestlog

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no entry has the requested ID.
	ErrNotFound = errors.New("request log entry not found")

	// ErrAlreadyTerminal is returned when patching an entry that has already
	// completed. It signals a programming error in the caller.
	ErrAlreadyTerminal = errors.New("request log entry already terminal")

	// ErrDuplicate is returned when creating an entry whose ID exists.
	ErrDuplicate = errors.New("duplicate request id")

	// ErrInvalidEntry is returned for entries or patches that fail validation.
	ErrInvalidEntry = errors.New("invalid request log entry")
)

// StorageError represents an error from a storage backend.
type StorageError struct {
	Backend   string // "sqlite", "memory"
	Operation string // "create", "update", "query", ...
	Cause     error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// NewStorageError creates a new StorageError.
func NewStorageError(backend, operation string, cause error) *StorageError {
	return &StorageError{
		Backend:   backend,
		Operation: operation,
		Cause:     cause,
	}
}

// ValidateEntry checks an entry before it is created.
func ValidateEntry(e *Entry) error {
	if e == nil {
		return fmt.Errorf("%w: entry is nil", ErrInvalidEntry)
	}
	if e.RequestID == "" {
		return fmt.Errorf("%w: request id is required", ErrInvalidEntry)
	}
	if e.Service == "" {
		return fmt.Errorf("%w: service is required", ErrInvalidEntry)
	}
	if !e.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidEntry, e.Status)
	}
	return nil
}

// ValidatePatch checks that a patch moves an entry to a terminal status.
func ValidatePatch(p *Patch) error {
	if p == nil {
		return fmt.Errorf("%w: patch is nil", ErrInvalidEntry)
	}
	if !p.Status.IsTerminal() {
		return fmt.Errorf("%w: patch status %q is not terminal", ErrInvalidEntry, p.Status)
	}
	return nil
}
