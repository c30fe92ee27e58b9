package strata_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/strata"
	"github.com/syssam/strata/dialect/sql/sqlgraph"
)

func TestNotFoundError(t *testing.T) {
	t.Run("Error", func(t *testing.T) {
		err := strata.NewNotFoundError("Author", 7)
		assert.Equal(t, "strata: Author not found (id=7)", err.Error())
		assert.Equal(t, "Author", err.Label())
		assert.Equal(t, int64(7), err.ID())
	})

	t.Run("IsNotFound", func(t *testing.T) {
		err := strata.NewNotFoundError("Book", 1)
		assert.True(t, errors.Is(err, strata.ErrNotFound))
		assert.True(t, strata.IsNotFound(fmt.Errorf("wrapper: %w", err)))
		assert.True(t, strata.IsNotFound(strata.ErrNotFound))
		assert.False(t, strata.IsNotFound(errors.New("other error")))
		assert.False(t, strata.IsNotFound(nil))
	})
}

func TestNotLoadedError(t *testing.T) {
	t.Run("Error", func(t *testing.T) {
		err := strata.NewNotLoadedError("Author", "books")
		assert.Equal(t, "strata: Author.books was not loaded", err.Error())
		assert.Equal(t, "books", err.Field())
	})

	t.Run("IsNotLoaded", func(t *testing.T) {
		err := strata.NewNotLoadedError("Book", "author")
		assert.True(t, strata.IsNotLoaded(err))
		assert.True(t, strata.IsNotLoaded(fmt.Errorf("wrapper: %w", err)))
		assert.True(t, errors.Is(err, strata.ErrNotLoaded))
		assert.False(t, strata.IsNotLoaded(errors.New("other error")))
		assert.False(t, strata.IsNotLoaded(nil))
	})
}

func TestInvariantError(t *testing.T) {
	err := strata.NewInvariantError("Book", "%s references %s which has no identity", "author", "Author#new")
	assert.Equal(t, "strata: invariant violated on Book: author references Author#new which has no identity", err.Error())
	assert.True(t, strata.IsInvariant(fmt.Errorf("wrapper: %w", err)))
	assert.False(t, strata.IsInvariant(errors.New("other error")))
	assert.False(t, strata.IsInvariant(nil))
}

func TestPersistError(t *testing.T) {
	cause := &pq.Error{Code: "23503", Message: "insert or update on table violates foreign key constraint"}
	err := &strata.PersistError{
		Entity: "Book",
		Table:  "books",
		Rank:   1,
		Op:     strata.OpInsert,
		Rows:   2,
		Err:    cause,
	}
	assert.Contains(t, err.Error(), "strata: insert 2 Book row(s) into books (rank 1): ")
	assert.Contains(t, err.Error(), "violates foreign key constraint")
	assert.True(t, strata.IsPersistError(fmt.Errorf("wrapper: %w", err)))
	assert.False(t, strata.IsPersistError(errors.New("other error")))
	assert.False(t, strata.IsPersistError(nil))
	assert.Equal(t, sqlgraph.ForeignKeyConstraint, err.Constraint())

	var pqErr *pq.Error
	require.True(t, errors.As(err, &pqErr))
	assert.Same(t, cause, pqErr)
}

func TestRollbackError(t *testing.T) {
	underlying := errors.New("connection reset")
	err := &strata.RollbackError{Err: underlying}
	assert.Equal(t, "strata: rollback failed: connection reset", err.Error())
	assert.True(t, errors.Is(err, underlying))
}
