package store

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by all store implementations. The entity-specific
// not-found errors all wrap ErrNotFound, so callers can match either the
// broad class (IsNotFoundError) or the exact entity (errors.Is).
var (
	// ErrNotFound is the generic form of the entity-specific not-found errors.
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate is returned when an insert would violate a uniqueness
	// constraint, such as two subtasks sharing a step index.
	ErrDuplicate = errors.New("entity already exists")

	// ErrTaskNotFound indicates the requested task does not exist.
	ErrTaskNotFound = fmt.Errorf("%w: task", ErrNotFound)

	// ErrSubtaskNotFound indicates no subtask exists for the requested
	// (task ID, step index) pair.
	ErrSubtaskNotFound = fmt.Errorf("%w: subtask", ErrNotFound)

	// ErrJobNotFound indicates the requested job does not exist, typically
	// because it was already pruned.
	ErrJobNotFound = fmt.Errorf("%w: job", ErrNotFound)
)

// IsNotFoundError reports whether err is ErrNotFound or any entity-specific
// not-found error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// StoreError carries the entity and operation alongside the underlying
// database error, keeping driver details out of callers' error matching.
type StoreError struct {
	Entity    string
	Operation string
	Message   string
	Err       error
}

func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s operation on %s failed: %s: %v", e.Operation, e.Entity, e.Message, e.Err)
	}
	return fmt.Sprintf("%s operation on %s failed: %s", e.Operation, e.Entity, e.Message)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError wraps err with entity and operation context.
func NewStoreError(entity, operation, message string, err error) *StoreError {
	return &StoreError{
		Entity:    entity,
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
