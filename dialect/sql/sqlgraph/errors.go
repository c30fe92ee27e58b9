// Package sqlgraph classifies errors returned by the SQL drivers strata
// supports into constraint-violation kinds.
package sqlgraph

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

// ConstraintKind identifies the kind of constraint a statement violated.
type ConstraintKind int

// Constraint kinds.
const (
	NoConstraint ConstraintKind = iota
	UniqueConstraint
	ForeignKeyConstraint
	CheckConstraint
	NotNullConstraint
)

// String returns the constraint kind name.
func (k ConstraintKind) String() string {
	switch k {
	case UniqueConstraint:
		return "unique"
	case ForeignKeyConstraint:
		return "foreign key"
	case CheckConstraint:
		return "check"
	case NotNullConstraint:
		return "not null"
	}
	return "none"
}

// PostgreSQL SQLSTATE codes for constraint violations (Class 23).
const (
	pgNotNullViolation    = "23502"
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
	pgCheckViolation      = "23514"
)

// MySQL error numbers for constraint violations.
const (
	mysqlBadNull                = 1048
	mysqlDuplicateEntry         = 1062
	mysqlForeignKeyParent       = 1451 // Cannot delete or update a parent row
	mysqlForeignKeyChild        = 1452 // Cannot add or update a child row
	mysqlCheckConstraintViolate = 3819
)

// sqlStateError is implemented by pgx's PgError and other drivers
// exposing SQLSTATE codes.
type sqlStateError interface {
	SQLState() string
}

// Classify reports which constraint, if any, err resulted from.
func Classify(err error) ConstraintKind {
	if err == nil {
		return NoConstraint
	}
	if pqErr, ok := asError[*pq.Error](err); ok {
		return fromSQLState(string(pqErr.Code))
	}
	if myErr, ok := asError[*mysql.MySQLError](err); ok {
		switch myErr.Number {
		case mysqlDuplicateEntry:
			return UniqueConstraint
		case mysqlForeignKeyParent, mysqlForeignKeyChild:
			return ForeignKeyConstraint
		case mysqlCheckConstraintViolate:
			return CheckConstraint
		case mysqlBadNull:
			return NotNullConstraint
		}
		return NoConstraint
	}
	if e, ok := asError[sqlStateError](err); ok {
		if k := fromSQLState(e.SQLState()); k != NoConstraint {
			return k
		}
	}
	// Fallback to message matching for drivers without typed errors (SQLite).
	msg := err.Error()
	switch {
	case containsAny(msg, "UNIQUE constraint failed", "violates unique constraint", "Error 1062"):
		return UniqueConstraint
	case containsAny(msg, "FOREIGN KEY constraint failed", "violates foreign key constraint", "Error 1451", "Error 1452"):
		return ForeignKeyConstraint
	case containsAny(msg, "CHECK constraint failed", "violates check constraint", "Error 3819"):
		return CheckConstraint
	case containsAny(msg, "NOT NULL constraint failed", "violates not-null constraint", "Error 1048"):
		return NotNullConstraint
	}
	return NoConstraint
}

// IsConstraintError returns true if the error resulted from a database constraint violation.
func IsConstraintError(err error) bool {
	return Classify(err) != NoConstraint
}

// IsUniqueConstraintError reports if the error resulted from a DB uniqueness constraint violation.
func IsUniqueConstraintError(err error) bool {
	return Classify(err) == UniqueConstraint
}

// IsForeignKeyConstraintError reports if the error resulted from a foreign-key constraint violation.
func IsForeignKeyConstraintError(err error) bool {
	return Classify(err) == ForeignKeyConstraint
}

func fromSQLState(code string) ConstraintKind {
	switch code {
	case pgUniqueViolation:
		return UniqueConstraint
	case pgForeignKeyViolation:
		return ForeignKeyConstraint
	case pgCheckViolation:
		return CheckConstraint
	case pgNotNullViolation:
		return NotNullConstraint
	}
	return NoConstraint
}

// asError attempts to extract an error of type T from the error chain.
func asError[T any](err error) (T, bool) {
	var target T
	for err != nil {
		if e, ok := err.(T); ok {
			return e, true
		}
		err = errors.Unwrap(err)
	}
	return target, false
}

func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
