package strata

import (
	"errors"
	"fmt"

	"github.com/syssam/strata/dialect/sql/sqlgraph"
)

// Standard sentinel errors.
var (
	// ErrNotFound is returned when a loaded identity has no row.
	ErrNotFound = errors.New("strata: entity not found")

	// ErrNotLoaded is returned when a relation is read before it was loaded.
	ErrNotLoaded = errors.New("strata: relation not loaded")
)

// NotFoundError represents an error when an entity is not found.
type NotFoundError struct {
	label string
	id    int64
}

// Error returns the error string.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("strata: %s not found (id=%d)", e.label, e.id)
}

// Is reports whether the target error matches NotFoundError.
// This allows errors.Is(notFoundErr, ErrNotFound) to return true.
func (e *NotFoundError) Is(err error) bool {
	return err == ErrNotFound
}

// Label returns the entity label.
func (e *NotFoundError) Label() string { return e.label }

// ID returns the identity that was searched for.
func (e *NotFoundError) ID() int64 { return e.id }

// NewNotFoundError returns a new NotFoundError for the given entity type and identity.
func NewNotFoundError(label string, id int64) *NotFoundError {
	return &NotFoundError{label: label, id: id}
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *NotFoundError
	return errors.As(err, &e) || errors.Is(err, ErrNotFound)
}

// NotLoadedError represents an error when a reference or collection is
// read with Get before its data was materialized. Call Load first.
type NotLoadedError struct {
	entity string
	field  string
}

// Error returns the error string.
func (e *NotLoadedError) Error() string {
	return fmt.Sprintf("strata: %s.%s was not loaded", e.entity, e.field)
}

// Is reports whether the target error matches ErrNotLoaded.
func (e *NotLoadedError) Is(err error) bool {
	return err == ErrNotLoaded
}

// Field returns the relation field name.
func (e *NotLoadedError) Field() string { return e.field }

// NewNotLoadedError returns a new NotLoadedError for the given relation field.
func NewNotLoadedError(entity, field string) *NotLoadedError {
	return &NotLoadedError{entity: entity, field: field}
}

// IsNotLoaded returns true if the error is a NotLoadedError.
func IsNotLoaded(err error) bool {
	if err == nil {
		return false
	}
	var e *NotLoadedError
	return errors.As(err, &e)
}

// InvariantError reports a broken usage contract, such as a reference to
// an entity of another unit of work or a foreign key whose target has no
// identity at flush time. It is never retried.
type InvariantError struct {
	Entity string
	Msg    string
}

// Error returns the error string.
func (e *InvariantError) Error() string {
	return fmt.Sprintf("strata: invariant violated on %s: %s", e.Entity, e.Msg)
}

// NewInvariantError returns a new InvariantError with a formatted message.
func NewInvariantError(entity, format string, args ...any) *InvariantError {
	return &InvariantError{Entity: entity, Msg: fmt.Sprintf(format, args...)}
}

// IsInvariant returns true if the error is an InvariantError.
func IsInvariant(err error) bool {
	if err == nil {
		return false
	}
	var e *InvariantError
	return errors.As(err, &e)
}

// Op is the kind of statement a flush batch issues.
type Op string

// Flush operations.
const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpLink   Op = "link"
	OpUnlink Op = "unlink"
)

// PersistError wraps a failed flush batch with the context needed to
// diagnose it. Batches flushed before the failing one stay written.
type PersistError struct {
	Entity string // Entity type, or the join table for link operations
	Table  string
	Rank   int
	Op     Op
	Rows   int // Rows in the failed batch
	Err    error
}

// Error returns the error string.
func (e *PersistError) Error() string {
	return fmt.Sprintf("strata: %s %d %s row(s) into %s (rank %d): %v", e.Op, e.Rows, e.Entity, e.Table, e.Rank, e.Err)
}

// Unwrap returns the underlying error.
func (e *PersistError) Unwrap() error {
	return e.Err
}

// Constraint classifies the underlying driver error.
func (e *PersistError) Constraint() sqlgraph.ConstraintKind {
	return sqlgraph.Classify(e.Err)
}

// IsPersistError returns true if the error is a PersistError.
func IsPersistError(err error) bool {
	if err == nil {
		return false
	}
	var e *PersistError
	return errors.As(err, &e)
}

// RollbackError wraps an error that occurred during a transaction rollback.
type RollbackError struct {
	Err error // Original error that triggered rollback
}

// Error returns the error string.
func (e *RollbackError) Error() string {
	return fmt.Sprintf("strata: rollback failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *RollbackError) Unwrap() error {
	return e.Err
}
